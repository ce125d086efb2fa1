package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, []string{"localhost:19092"}, cfg.KafkaBrokers)
	require.Equal(t, int64(70), cfg.IntentThreshold)
	require.Equal(t, 72*time.Hour, cfg.RFQSpikeWindow)
	require.Equal(t, 30*time.Minute, cfg.CaptureCooldown)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("INTENT_THRESHOLD", "85")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, int64(85), cfg.IntentThreshold)
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	base, err := Load()
	require.NoError(t, err)

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative intent threshold", func(c *Config) { c.IntentThreshold = -1 }},
		{"intent threshold above scale", func(c *Config) { c.IntentThreshold = 150 }},
		{"zero rfq spike count", func(c *Config) { c.RFQSpikeCount = 0 }},
		{"negative spike window", func(c *Config) { c.RFQSpikeWindow = -time.Hour }},
		{"cross-country below two", func(c *Config) { c.CrossCountryMin = 1 }},
		{"decay factor above one", func(c *Config) { c.DecayFactor = 1.5 }},
		{"zero alert ttl", func(c *Config) { c.AlertTTL = 0 }},
		{"zero capture cooldown", func(c *Config) { c.CaptureCooldown = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFailsFastOnBadEnv(t *testing.T) {
	t.Setenv("INTENT_THRESHOLD", "-5")
	_, err := Load()
	require.Error(t, err)
}
