package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"curaledger/internal/ledger/models"
	strs "curaledger/pkg/platform/strings"
)

// Config is the full process configuration.
type Config struct {
	Server   Server
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Ledger   models.Policy
	LogLevel string
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// DatabaseConfig selects the Postgres store. An empty URL keeps state in memory.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig enables the case report cache. An empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ReportTTL    time.Duration
}

// KafkaConfig enables the event publisher and transfer outbox. No brokers
// means both fall back to log-only implementations.
type KafkaConfig struct {
	Brokers        []string
	EventsTopic    string
	TransfersTopic string
	ClientID       string
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSigningKey string
	Issuer        string
	Audience      string
}

// FromEnv loads an optional .env file and builds the configuration from the
// environment. Unset variables fall back to development defaults.
func FromEnv() (Config, error) {
	// Missing .env is fine; real deployments set variables directly.
	_ = godotenv.Load()

	policy := models.DefaultPolicy()
	e := &envReader{}

	cfg := Config{
		Server: Server{
			Addr:            e.str("CURA_ADDR", ":8080"),
			ShutdownTimeout: e.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    e.integer("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    e.integer("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: e.duration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     e.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: e.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  e.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: e.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			ReportTTL:    e.duration("REPORT_CACHE_TTL", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:        strs.SplitList(os.Getenv("KAFKA_BROKERS")),
			EventsTopic:    e.str("KAFKA_EVENTS_TOPIC", "cura.events"),
			TransfersTopic: e.str("KAFKA_TRANSFERS_TOPIC", "cura.transfers"),
			ClientID:       e.str("KAFKA_CLIENT_ID", "curaledger"),
		},
		Auth: AuthConfig{
			// Development default; production must override.
			JWTSigningKey: e.str("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:        e.str("JWT_ISSUER", "curaledger"),
			Audience:      e.str("JWT_AUDIENCE", "curaledger-api"),
		},
		Ledger: models.Policy{
			VerificationWindow:   e.duration("LEDGER_VERIFICATION_WINDOW", policy.VerificationWindow),
			OverrideDelay:        e.duration("LEDGER_OVERRIDE_DELAY", policy.OverrideDelay),
			ParticipationPercent: e.unsigned("LEDGER_PARTICIPATION_PERCENT", policy.ParticipationPercent),
			ApprovalPercent:      e.unsigned("LEDGER_APPROVAL_PERCENT", policy.ApprovalPercent),
			FundingSlack:         e.unsigned("LEDGER_FUNDING_SLACK", policy.FundingSlack),
			ReserveFloor:         e.unsigned("LEDGER_RESERVE_FLOOR", policy.ReserveFloor),
			MaxTokenAssets:       e.integer("LEDGER_MAX_TOKEN_ASSETS", policy.MaxTokenAssets),
			MaxVotesPerCase:      e.integer("LEDGER_MAX_VOTES_PER_CASE", policy.MaxVotesPerCase),
			MaxDonorCases:        e.integer("LEDGER_MAX_DONOR_CASES", policy.MaxDonorCases),
			RequiredCoSigners:    e.integer("LEDGER_REQUIRED_COSIGNERS", policy.RequiredCoSigners),
		},
		LogLevel: e.str("LOG_LEVEL", "info"),
	}
	if e.err != nil {
		return Config{}, e.err
	}
	if err := cfg.Ledger.Validate(); err != nil {
		return Config{}, fmt.Errorf("ledger policy: %w", err)
	}
	return cfg, nil
}

// envReader records the first parse failure so FromEnv reads as a flat list.
type envReader struct {
	err error
}

func (e *envReader) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return d
}

func (e *envReader) integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return n
}

func (e *envReader) unsigned(key string, def uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return n
}

func (e *envReader) fail(key string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("parse %s: %w", key, err)
	}
}
