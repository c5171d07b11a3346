package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const (
	StoreDatabase = "database"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// MaxCodeLength bounds OTP_CODE_LENGTH so codes fit the store columns.
const MaxCodeLength = 32

type Config struct {
	App       AppConfig       `envPrefix:"APP_"`
	Server    ServerConfig    `envPrefix:"SERVER_"`
	Log       LogConfig       `envPrefix:"LOG_"`
	Database  DatabaseConfig  `envPrefix:"DATABASE_"`
	Redis     RedisConfig     `envPrefix:"REDIS_"`
	OTP       OTPConfig       `envPrefix:"OTP_"`
	Mail      MailConfig      `envPrefix:"MAIL_"`
	RateLimit RateLimitConfig `envPrefix:"RATELIMIT_"`
}

type AppConfig struct {
	Name string `env:"NAME" envDefault:"passcode"`
	URL  string `env:"URL" envDefault:"http://localhost:8080"`
}

type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"localhost"`
	Port            string        `env:"PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	TrustedProxies  []string      `env:"TRUSTED_PROXIES" envSeparator:","`
}

type LogConfig struct {
	Level      string `env:"LEVEL" envDefault:"info"`
	Format     string `env:"FORMAT" envDefault:"json"`
	Output     string `env:"OUTPUT" envDefault:"stdout"`
	MaxSizeMB  int    `env:"MAX_SIZE_MB" envDefault:"100"`
	MaxBackups int    `env:"MAX_BACKUPS" envDefault:"5"`
	MaxAgeDays int    `env:"MAX_AGE_DAYS" envDefault:"28"`
}

type DatabaseConfig struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"passcode.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

type RedisConfig struct {
	URL    string `env:"URL" envDefault:"redis://localhost:6379/0"`
	Prefix string `env:"PREFIX" envDefault:"otp"`
}

// OTPConfig drives the passcode lifecycle. Retention is how long an expired
// record is kept for audit before cleanup removes it.
type OTPConfig struct {
	CodeLength      int           `env:"CODE_LENGTH" envDefault:"6"`
	Expiry          time.Duration `env:"EXPIRY" envDefault:"5m"`
	Retention       time.Duration `env:"RETENTION" envDefault:"168h"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`
	Store           string        `env:"STORE" envDefault:"database"`
}

type MailConfig struct {
	Enabled     bool   `env:"ENABLED" envDefault:"false"`
	Host        string `env:"HOST" envDefault:"localhost"`
	Port        int    `env:"PORT" envDefault:"587"`
	Username    string `env:"USERNAME"`
	Password    string `env:"PASSWORD"`
	Encryption  string `env:"ENCRYPTION" envDefault:"tls"`
	FromAddress string `env:"FROM_ADDRESS"`
	FromName    string `env:"FROM_NAME"`

	// TemplatesDir may hold otp_code.txt and otp_code.html overrides.
	TemplatesDir string `env:"TEMPLATES_DIR"`
}

// RateLimitConfig throttles the OTP endpoints per client IP. It is off by
// default; the OTP service itself applies no lockout.
type RateLimitConfig struct {
	Enabled bool          `env:"ENABLED" envDefault:"false"`
	Rate    int           `env:"RATE" envDefault:"10"`
	Period  time.Duration `env:"PERIOD" envDefault:"1m"`
	Store   string        `env:"STORE" envDefault:"memory"`
}

func LoadConfig(cfg *Config) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}

	return cfg.Validate()
}

func (c *Config) Validate() error {
	var errs []error

	if err := c.OTP.Validate(); err != nil {
		errs = append(errs, err)
	}

	switch c.Database.Driver {
	case "sqlite", "postgres", "postgresql", "mysql":
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver: %s", c.Database.Driver))
	}

	if c.Mail.Enabled && c.Mail.FromAddress == "" {
		errs = append(errs, errors.New("MAIL_FROM_ADDRESS is required when mail is enabled"))
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Rate <= 0 || c.RateLimit.Period <= 0 {
			errs = append(errs, errors.New("rate limit rate and period must be positive"))
		}
		switch c.RateLimit.Store {
		case StoreMemory, StoreRedis:
		default:
			errs = append(errs, fmt.Errorf("unsupported rate limit store: %s (supported: memory, redis)", c.RateLimit.Store))
		}
	}

	return errors.Join(errs...)
}

func (c OTPConfig) Validate() error {
	var errs []error

	if c.CodeLength <= 0 || c.CodeLength > MaxCodeLength {
		errs = append(errs, fmt.Errorf("OTP code length must be between 1 and %d, got %d", MaxCodeLength, c.CodeLength))
	}
	if c.Expiry <= 0 {
		errs = append(errs, fmt.Errorf("OTP expiry must be positive, got %s", c.Expiry))
	}
	if c.Retention < 0 {
		errs = append(errs, fmt.Errorf("OTP retention must not be negative, got %s", c.Retention))
	}
	if c.CleanupInterval < 0 {
		errs = append(errs, fmt.Errorf("OTP cleanup interval must not be negative, got %s", c.CleanupInterval))
	}

	switch c.Store {
	case StoreDatabase, StoreRedis, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unsupported OTP store: %s (supported: database, redis, memory)", c.Store))
	}

	return errors.Join(errs...)
}
