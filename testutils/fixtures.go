package testutils

import (
	"time"

	"github.com/tech-arch1tect/passcode/config"
)

// GetTestConfig returns a valid configuration backed by an in-memory
// sqlite database with background cleanup and the HTTP extras switched off.
func GetTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name: "Test App",
			URL:  "http://localhost:8080",
		},
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            "0",
			ShutdownTimeout: time.Second,
		},
		Log: config.LogConfig{
			Level:  "error",
			Format: "console",
			Output: "stdout",
		},
		Database: config.DatabaseConfig{
			Driver:      "sqlite",
			DSN:         ":memory:",
			AutoMigrate: true,
		},
		Redis: config.RedisConfig{
			URL:    "redis://localhost:6379/0",
			Prefix: "otp-test",
		},
		OTP: config.OTPConfig{
			CodeLength: 6,
			Expiry:     5 * time.Minute,
			Retention:  time.Hour,
			Store:      config.StoreDatabase,
		},
		Mail: config.MailConfig{
			Host:        "localhost",
			Port:        1025,
			Encryption:  "none",
			FromAddress: "noreply@example.com",
			FromName:    "Test App",
		},
		RateLimit: config.RateLimitConfig{
			Rate:   10,
			Period: time.Minute,
			Store:  config.StoreMemory,
		},
	}
}

