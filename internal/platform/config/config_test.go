package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curaledger/internal/ledger/models"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Empty(t, cfg.Database.URL)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "cura.events", cfg.Kafka.EventsTopic)
	assert.Equal(t, models.DefaultPolicy(), cfg.Ledger)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("CURA_ADDR", ":9090")
	t.Setenv("KAFKA_BROKERS", " broker-1:9092, ,broker-2:9092 ")
	t.Setenv("REPORT_CACHE_TTL", "45s")
	t.Setenv("LEDGER_VERIFICATION_WINDOW", "72h")
	t.Setenv("LEDGER_RESERVE_FLOOR", "1000")
	t.Setenv("LEDGER_REQUIRED_COSIGNERS", "5")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 45*time.Second, cfg.Redis.ReportTTL)
	assert.Equal(t, 72*time.Hour, cfg.Ledger.VerificationWindow)
	assert.Equal(t, uint64(1000), cfg.Ledger.ReserveFloor)
	assert.Equal(t, 5, cfg.Ledger.RequiredCoSigners)
}

func TestFromEnvErrors(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{name: "bad duration", key: "LEDGER_OVERRIDE_DELAY", value: "ten days", want: "parse LEDGER_OVERRIDE_DELAY"},
		{name: "bad integer", key: "LEDGER_MAX_VOTES_PER_CASE", value: "many", want: "parse LEDGER_MAX_VOTES_PER_CASE"},
		{name: "negative amount", key: "LEDGER_FUNDING_SLACK", value: "-1", want: "parse LEDGER_FUNDING_SLACK"},
		{name: "policy out of range", key: "LEDGER_APPROVAL_PERCENT", value: "101", want: "ledger policy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
