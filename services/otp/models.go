package otp

import (
	"time"
)

// Record is a single issued passcode. It is never soft-deleted; cleanup
// removes rows outright once they fall past the retention boundary.
type Record struct {
	ID            string     `json:"id" gorm:"primaryKey;size:36"`
	Email         string     `json:"email" gorm:"size:320;not null;index:idx_otp_lookup,priority:1"`
	Purpose       string     `json:"purpose" gorm:"size:64;not null;index:idx_otp_lookup,priority:2"`
	Code          string     `json:"-" gorm:"size:32;not null;index:idx_otp_lookup,priority:3"`
	CreatedAt     time.Time  `json:"created_at" gorm:"not null"`
	ExpiresAt     time.Time  `json:"expires_at" gorm:"not null;index"`
	IsUsed        bool       `json:"is_used" gorm:"not null;default:false"`
	UsedAt        *time.Time `json:"used_at,omitempty"`
	InvalidatedAt *time.Time `json:"invalidated_at,omitempty"`
}

func (Record) TableName() string {
	return "otp_records"
}

// IsLive reports whether the record may still be consumed at now.
func (r *Record) IsLive(now time.Time) bool {
	return !r.IsUsed && r.InvalidatedAt == nil && now.Before(r.ExpiresAt)
}
