package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	LogLevel string
	Env      string

	// DatabaseURL empty means the in-process store is used.
	DatabaseURL string
	RedisURL    string

	JWTSecret string
	JWTTTL    time.Duration

	PushBatchSize      int
	PushTTL            time.Duration
	PushFreshness      time.Duration
	PushAttemptTimeout time.Duration

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string

	BroadcastRatePerMinute int
	AuditQueueSize         int

	ShutdownTimeout time.Duration
}

// PushEnabled reports whether web push credentials are configured.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPrivateKey != "" && c.VAPIDSubject != ""
}

// LoadConfig reads the environment, after loading an optional .env file
// from the working directory.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return fromEnv()
}

func fromEnv() (*Config, error) {
	var p parser
	cfg := &Config{
		Port:        GetEnv("PORT", "8081"),
		DatabaseURL: GetEnv("DATABASE_URL", ""),
		RedisURL:    GetEnv("REDIS_URL", ""),
		Env:         GetEnv("ENV", "development"),
		LogLevel:    GetEnv("LOG_LEVEL", "info"),

		JWTSecret: GetEnv("JWT_SECRET", ""),
		JWTTTL:    p.durationVal("JWT_TTL", 24*time.Hour),

		PushBatchSize:      p.intVal("PUSH_BATCH_SIZE", 10),
		PushTTL:            p.durationVal("PUSH_TTL", 24*time.Hour),
		PushFreshness:      p.durationVal("PUSH_FRESHNESS", 30*24*time.Hour),
		PushAttemptTimeout: p.durationVal("PUSH_ATTEMPT_TIMEOUT", 10*time.Second),

		VAPIDPublicKey:  GetEnv("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: GetEnv("VAPID_PRIVATE_KEY", ""),
		VAPIDSubject:    GetEnv("VAPID_SUBJECT", ""),

		BroadcastRatePerMinute: p.intVal("BROADCAST_RATE_PER_MINUTE", 20),
		AuditQueueSize:         p.intVal("AUDIT_QUEUE_SIZE", 256),

		ShutdownTimeout: p.durationVal("SHUTDOWN_TIMEOUT", 15*time.Second),
	}
	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.JWTSecret == "" {
		if c.Env == "production" {
			errs = append(errs, errors.New("JWT_SECRET is required in production"))
		}
		c.JWTSecret = "dev-secret-change-me"
	}
	for name, v := range map[string]int{
		"PUSH_BATCH_SIZE":           c.PushBatchSize,
		"BROADCAST_RATE_PER_MINUTE": c.BroadcastRatePerMinute,
		"AUDIT_QUEUE_SIZE":          c.AuditQueueSize,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	if c.PushFreshness <= 0 || c.PushAttemptTimeout <= 0 {
		errs = append(errs, errors.New("PUSH_FRESHNESS and PUSH_ATTEMPT_TIMEOUT must be positive"))
	}
	if (c.VAPIDPrivateKey == "") != (c.VAPIDSubject == "") {
		errs = append(errs, errors.New("VAPID_PRIVATE_KEY and VAPID_SUBJECT must be set together"))
	}
	return errors.Join(errs...)
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// parser keeps the first conversion error so LoadConfig reports it once.
type parser struct {
	err error
}

func (p *parser) intVal(key string, def int) int {
	raw := GetEnv(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	return v
}

func (p *parser) durationVal(key string, def time.Duration) time.Duration {
	raw := GetEnv(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	return v
}
