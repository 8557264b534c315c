package observ

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger("development", "chatty")
	require.NoError(t, err)
	require.True(t, logger.Core().Enabled(0))
	require.False(t, logger.Core().Enabled(-1))
}

func TestNewMetricsRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.PushAttempts.WithLabelValues("delivered").Add(2)
	require.Equal(t, 2.0, testutil.ToFloat64(m.PushAttempts.WithLabelValues("delivered")))

	require.Panics(t, func() { NewMetrics(reg) })
}
