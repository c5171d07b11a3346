package otp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/tech-arch1tect/passcode/config"
)

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

type Option func(*Service)

func WithObserver(observer Observer) Option {
	return func(s *Service) {
		if observer != nil {
			s.observer = observer
		}
	}
}

func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// Issued is the result of a successful generation. Code must be handed to
// the delivery channel and dropped.
type Issued struct {
	Code      string
	RecordID  string
	ExpiresAt time.Time
}

type subject struct {
	Email   string `validate:"required,email,max=320"`
	Purpose string `validate:"required,printascii,max=64"`
}

// Service runs the passcode lifecycle against a Store. It keeps no mutable
// state of its own and is safe for concurrent use.
type Service struct {
	cfg      config.OTPConfig
	store    Store
	observer Observer
	clock    Clock
	validate *validator.Validate
}

func NewService(cfg config.OTPConfig, store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("otp store is required")
	}
	if cfg.CodeLength <= 0 || cfg.CodeLength > config.MaxCodeLength {
		return nil, fmt.Errorf("%w: code length must be between 1 and %d, got %d", ErrInvalidInput, config.MaxCodeLength, cfg.CodeLength)
	}
	if cfg.Expiry <= 0 {
		return nil, fmt.Errorf("%w: expiry must be positive, got %s", ErrInvalidInput, cfg.Expiry)
	}
	if cfg.Retention < 0 {
		return nil, fmt.Errorf("%w: retention must not be negative, got %s", ErrInvalidInput, cfg.Retention)
	}

	s := &Service{
		cfg:      cfg,
		store:    store,
		observer: NopObserver{},
		clock:    systemClock{},
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *Service) Config() config.OTPConfig {
	return s.cfg
}

// Generate issues a new code for the pair, superseding any live one.
func (s *Service) Generate(ctx context.Context, email, purpose string) (string, error) {
	issued, err := s.Issue(ctx, email, purpose)
	if err != nil {
		return "", err
	}
	return issued.Code, nil
}

// Issue is Generate returning the record id and expiry with the code.
// Emails are matched case-insensitively.
func (s *Service) Issue(ctx context.Context, email, purpose string) (*Issued, error) {
	email = normalizeEmail(email)
	if err := s.checkSubject(email, purpose); err != nil {
		return nil, err
	}

	code, err := GenerateCode(s.cfg.CodeLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate code: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate record id: %w", err)
	}

	now := s.now()
	rec := &Record{
		ID:        id.String(),
		Email:     email,
		Purpose:   purpose,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.Expiry),
	}

	var invalidated int64
	if swapper, ok := s.store.(LiveSwapper); ok {
		invalidated, err = swapper.SwapLive(ctx, rec, now)
		if err != nil {
			return nil, s.storageFailure(ctx, "swap_live", email, purpose, err)
		}
	} else {
		invalidated, err = s.store.InvalidateLive(ctx, email, purpose, now)
		if err != nil {
			return nil, s.storageFailure(ctx, "invalidate_live", email, purpose, err)
		}
		if err := s.store.Insert(ctx, rec); err != nil {
			return nil, s.storageFailure(ctx, "insert", email, purpose, err)
		}
	}

	s.observer.Observe(ctx, Event{
		Kind:        EventGenerated,
		At:          now,
		Email:       email,
		Purpose:     purpose,
		RecordID:    rec.ID,
		ExpiresAt:   rec.ExpiresAt,
		Invalidated: invalidated,
	})

	return &Issued{Code: code, RecordID: rec.ID, ExpiresAt: rec.ExpiresAt}, nil
}

// Validate consumes the code if it is live for the pair. Wrong, expired,
// superseded and already used codes all yield false with a nil error.
func (s *Service) Validate(ctx context.Context, email, code, purpose string) (bool, error) {
	email = normalizeEmail(email)
	if err := s.checkSubject(email, purpose); err != nil {
		return false, err
	}

	now := s.now()

	if !isDigits(code, s.cfg.CodeLength) {
		s.reject(ctx, now, email, purpose, "", ReasonMalformedCode)
		return false, nil
	}

	rec, err := s.store.FindLive(ctx, email, code, purpose, now)
	if err != nil {
		return false, s.storageFailure(ctx, "find_live", email, purpose, err)
	}
	if rec == nil || !rec.IsLive(now) {
		s.reject(ctx, now, email, purpose, "", ReasonNoLiveMatch)
		return false, nil
	}

	marked, err := s.store.MarkUsed(ctx, rec, now)
	if err != nil {
		return false, s.storageFailure(ctx, "mark_used", email, purpose, err)
	}
	if !marked {
		s.reject(ctx, now, email, purpose, rec.ID, ReasonLostRace)
		return false, nil
	}

	s.observer.Observe(ctx, Event{
		Kind:     EventValidated,
		At:       now,
		Email:    email,
		Purpose:  purpose,
		RecordID: rec.ID,
	})

	return true, nil
}

// Cleanup deletes records that expired more than the retention window ago.
// On a mid-batch failure it returns the number removed so far.
func (s *Service) Cleanup(ctx context.Context) (int, error) {
	now := s.now()
	cutoff := now.Add(-s.cfg.Retention)

	expired, err := s.store.FindExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, s.storageFailure(ctx, "find_expired_before", "", "", err)
	}

	removed := 0
	for i := range expired {
		rec := &expired[i]
		if !rec.ExpiresAt.Before(cutoff) {
			continue
		}

		deleted, err := s.store.Delete(ctx, rec)
		if err != nil {
			return removed, s.storageFailure(ctx, "delete", rec.Email, rec.Purpose, err)
		}
		if deleted {
			removed++
		}
	}

	s.observer.Observe(ctx, Event{
		Kind:    EventCleanedUp,
		At:      now,
		Removed: removed,
		Cutoff:  cutoff,
	})

	return removed, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(email)
}

func (s *Service) checkSubject(email, purpose string) error {
	if err := s.validate.Struct(subject{Email: email, Purpose: purpose}); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed %q check", ErrInvalidInput, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func (s *Service) reject(ctx context.Context, now time.Time, email, purpose, recordID string, reason RejectReason) {
	s.observer.Observe(ctx, Event{
		Kind:     EventRejected,
		At:       now,
		Email:    email,
		Purpose:  purpose,
		RecordID: recordID,
		Reason:   reason,
	})
}

func (s *Service) storageFailure(ctx context.Context, op, email, purpose string, err error) error {
	wrapped := storageError(op, err)
	s.observer.Observe(ctx, Event{
		Kind:    EventStorageFailed,
		At:      s.now(),
		Email:   email,
		Purpose: purpose,
		Op:      op,
		Err:     err,
	})
	return wrapped
}

// now is UTC at millisecond precision so every store round-trips it exactly.
func (s *Service) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Millisecond)
}
