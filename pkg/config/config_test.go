package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Port      int             `env:"TEST_CFG_PORT" envDefault:"8080"`
	LogLevel  string          `env:"TEST_CFG_LOG_LEVEL" envDefault:"info"`
	TTL       time.Duration   `env:"TEST_CFG_TTL" envDefault:"30m"`
	Brokers   []string        `env:"TEST_CFG_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	Threshold decimal.Decimal `env:"TEST_CFG_THRESHOLD" envDefault:"50"`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg testConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*time.Minute, cfg.TTL)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
	assert.True(t, cfg.Threshold.Equal(decimal.NewFromInt(50)))
}

func TestLoad_FromEnvVars(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "9090")
	t.Setenv("TEST_CFG_TTL", "2h")
	t.Setenv("TEST_CFG_BROKERS", "k1:9092,k2:9092")
	t.Setenv("TEST_CFG_THRESHOLD", "75.50")

	var cfg testConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 2*time.Hour, cfg.TTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers)
	assert.Equal(t, "75.5", cfg.Threshold.String())
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("TEST_CFG_THRESHOLD", "fifty")

	var cfg testConfig
	err := Load(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

type requiredConfig struct {
	Secret string `env:"TEST_CFG_SECRET,required"`
}

func TestLoad_Required(t *testing.T) {
	var missing requiredConfig
	require.Error(t, Load(&missing))

	t.Setenv("TEST_CFG_SECRET", "s3cret")
	var present requiredConfig
	require.NoError(t, Load(&present))
	assert.Equal(t, "s3cret", present.Secret)
}

func TestLoadWithPrefix(t *testing.T) {
	t.Setenv("CANARY_TEST_CFG_PORT", "7070")

	var cfg testConfig
	require.NoError(t, LoadWithPrefix(&cfg, "CANARY_"))
	assert.Equal(t, 7070, cfg.Port)
}
