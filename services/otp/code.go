package otp

import (
	"crypto/rand"
	"fmt"
	"io"
)

// largest multiple of 10 that fits in a byte; bytes at or above it are
// discarded so every digit is equally likely.
const digitRejectThreshold = 250

func GenerateCode(length int) (string, error) {
	return GenerateCodeFrom(rand.Reader, length)
}

// GenerateCodeFrom draws length decimal digits from r. r must be a
// cryptographically secure source in production.
func GenerateCodeFrom(r io.Reader, length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("%w: code length must be positive, got %d", ErrInvalidInput, length)
	}

	code := make([]byte, 0, length)
	buf := make([]byte, length+length/4+1)

	for len(code) < length {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= digitRejectThreshold {
				continue
			}
			code = append(code, '0'+b%10)
			if len(code) == length {
				break
			}
		}
	}

	return string(code), nil
}

func isDigits(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
