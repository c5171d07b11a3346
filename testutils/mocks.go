package testutils

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/tech-arch1tect/passcode/services/otp"
)

type MockPasscodes struct {
	mock.Mock
}

func (m *MockPasscodes) Issue(ctx context.Context, email, purpose string) (*otp.Issued, error) {
	args := m.Called(ctx, email, purpose)
	issued, _ := args.Get(0).(*otp.Issued)
	return issued, args.Error(1)
}

func (m *MockPasscodes) Validate(ctx context.Context, email, code, purpose string) (bool, error) {
	args := m.Called(ctx, email, code, purpose)
	return args.Bool(0), args.Error(1)
}

type MockDeliverer struct {
	mock.Mock
}

func (m *MockDeliverer) SendCode(ctx context.Context, to, purpose, code string, expiresAt time.Time) error {
	args := m.Called(ctx, to, purpose, code, expiresAt)
	return args.Error(0)
}

type MockObserver struct {
	mock.Mock
}

func (m *MockObserver) Observe(ctx context.Context, event otp.Event) {
	m.Called(ctx, event)
}
