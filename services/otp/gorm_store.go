package otp

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gorm.io/gorm"
)

const liveCondition = "is_used = ? AND invalidated_at IS NULL AND expires_at > ?"

// GormStore keeps records in a relational database through gorm. The
// schema is Record's, migrated by the database package.
type GormStore struct {
	db     *gorm.DB
	txOpts []*sql.TxOptions
}

func NewGormStore(db *gorm.DB) *GormStore {
	store := &GormStore{db: db}

	// SQLite serialises writers on its own and its driver rejects
	// non-default isolation levels.
	if db.Dialector.Name() != "sqlite" {
		store.txOpts = []*sql.TxOptions{{Isolation: sql.LevelSerializable}}
	}

	return store
}

func (g *GormStore) InvalidateLive(ctx context.Context, email, purpose string, now time.Time) (int64, error) {
	return invalidateLive(g.db.WithContext(ctx), email, purpose, now)
}

func (g *GormStore) Insert(ctx context.Context, rec *Record) error {
	return g.db.WithContext(ctx).Create(rec).Error
}

func (g *GormStore) SwapLive(ctx context.Context, rec *Record, now time.Time) (int64, error) {
	var invalidated int64
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		invalidated, err = invalidateLive(tx, rec.Email, rec.Purpose, now)
		if err != nil {
			return err
		}
		return tx.Create(rec).Error
	}, g.txOpts...)
	if err != nil {
		return 0, err
	}
	return invalidated, nil
}

func (g *GormStore) FindLive(ctx context.Context, email, code, purpose string, now time.Time) (*Record, error) {
	var rec Record
	err := g.db.WithContext(ctx).
		Where("email = ? AND code = ? AND purpose = ?", email, code, purpose).
		Where(liveCondition, false, now).
		Order("created_at DESC").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// MarkUsed is a compare-and-set: the update only matches while the row is
// still live, so concurrent callers see exactly one affected row between them.
func (g *GormStore) MarkUsed(ctx context.Context, rec *Record, now time.Time) (bool, error) {
	result := g.db.WithContext(ctx).
		Model(&Record{}).
		Where("id = ?", rec.ID).
		Where(liveCondition, false, now).
		Updates(map[string]any{
			"is_used": true,
			"used_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected != 1 {
		return false, nil
	}

	usedAt := now
	rec.IsUsed = true
	rec.UsedAt = &usedAt
	return true, nil
}

func (g *GormStore) FindExpiredBefore(ctx context.Context, cutoff time.Time) ([]Record, error) {
	var records []Record
	err := g.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Order("expires_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (g *GormStore) Delete(ctx context.Context, rec *Record) (bool, error) {
	result := g.db.WithContext(ctx).Where("id = ?", rec.ID).Delete(&Record{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func invalidateLive(db *gorm.DB, email, purpose string, now time.Time) (int64, error) {
	result := db.Model(&Record{}).
		Where("email = ? AND purpose = ?", email, purpose).
		Where(liveCondition, false, now).
		Update("invalidated_at", now)
	return result.RowsAffected, result.Error
}
