package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	for _, k := range []string{"DATABASE_URL", "ENV", "JWT_SECRET", "PUSH_BATCH_SIZE", "PUSH_FRESHNESS", "VAPID_PRIVATE_KEY", "VAPID_SUBJECT"} {
		t.Setenv(k, "")
	}
	t.Setenv("ENV", "development")

	cfg, err := fromEnv()
	require.NoError(t, err)
	require.Equal(t, 10, cfg.PushBatchSize)
	require.Equal(t, 30*24*time.Hour, cfg.PushFreshness)
	require.Equal(t, 20, cfg.BroadcastRatePerMinute)
	require.NotEmpty(t, cfg.JWTSecret)
	require.False(t, cfg.PushEnabled())
}

func TestOverrides(t *testing.T) {
	t.Setenv("PUSH_BATCH_SIZE", "25")
	t.Setenv("PUSH_FRESHNESS", "48h")
	t.Setenv("VAPID_PRIVATE_KEY", "k")
	t.Setenv("VAPID_SUBJECT", "mailto:ops@example.org")

	cfg, err := fromEnv()
	require.NoError(t, err)
	require.Equal(t, 25, cfg.PushBatchSize)
	require.Equal(t, 48*time.Hour, cfg.PushFreshness)
	require.True(t, cfg.PushEnabled())
}

func TestInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"not a number":  {"PUSH_BATCH_SIZE", "ten"},
		"zero":          {"BROADCAST_RATE_PER_MINUTE", "0"},
		"bad duration":  {"PUSH_TTL", "soon"},
		"half of vapid": {"VAPID_SUBJECT", "mailto:ops@example.org"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("VAPID_PRIVATE_KEY", "")
			t.Setenv(kv[0], kv[1])
			_, err := fromEnv()
			require.Error(t, err)
		})
	}
}

func TestProductionNeedsSecret(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "")
	_, err := fromEnv()
	require.ErrorContains(t, err, "JWT_SECRET")
}
