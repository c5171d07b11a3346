package otp

import (
	"context"
	"time"

	"github.com/tech-arch1tect/passcode/services/logging"
	"go.uber.org/zap"
)

type EventKind string

const (
	EventGenerated     EventKind = "generated"
	EventValidated     EventKind = "validated"
	EventRejected      EventKind = "rejected"
	EventCleanedUp     EventKind = "cleaned_up"
	EventStorageFailed EventKind = "storage_failed"
)

// RejectReason is only ever reported to observers. Callers of Validate see
// a plain false.
type RejectReason string

const (
	ReasonNoLiveMatch   RejectReason = "no_live_match"
	ReasonMalformedCode RejectReason = "malformed_code"
	ReasonLostRace      RejectReason = "lost_race"
)

// Event never carries the plaintext code.
type Event struct {
	Kind        EventKind
	At          time.Time
	Email       string
	Purpose     string
	RecordID    string
	ExpiresAt   time.Time
	Invalidated int64
	Reason      RejectReason
	Removed     int
	Cutoff      time.Time
	Op          string
	Err         error
}

type Observer interface {
	Observe(ctx context.Context, event Event)
}

type ObserverFunc func(ctx context.Context, event Event)

func (f ObserverFunc) Observe(ctx context.Context, event Event) {
	f(ctx, event)
}

type NopObserver struct{}

func (NopObserver) Observe(context.Context, Event) {}

type LoggingObserver struct {
	logger *logging.Service
}

func NewLoggingObserver(logger *logging.Service) *LoggingObserver {
	return &LoggingObserver{logger: logger}
}

func (o *LoggingObserver) Observe(_ context.Context, event Event) {
	if o.logger == nil {
		return
	}

	switch event.Kind {
	case EventGenerated:
		o.logger.Info("otp generated",
			zap.String("email", event.Email),
			zap.String("purpose", event.Purpose),
			zap.String("record_id", event.RecordID),
			zap.Time("expires_at", event.ExpiresAt),
			zap.Int64("invalidated", event.Invalidated))
	case EventValidated:
		o.logger.Info("otp validated",
			zap.String("email", event.Email),
			zap.String("purpose", event.Purpose),
			zap.String("record_id", event.RecordID))
	case EventRejected:
		o.logger.Warn("otp rejected",
			zap.String("email", event.Email),
			zap.String("purpose", event.Purpose),
			zap.String("reason", string(event.Reason)))
	case EventCleanedUp:
		o.logger.Info("otp cleanup completed",
			zap.Int("removed", event.Removed),
			zap.Time("cutoff", event.Cutoff))
	case EventStorageFailed:
		o.logger.Error("otp store operation failed",
			zap.String("op", event.Op),
			zap.String("email", event.Email),
			zap.String("purpose", event.Purpose),
			zap.Error(event.Err))
	default:
		o.logger.Debug("otp event", zap.String("kind", string(event.Kind)))
	}
}
