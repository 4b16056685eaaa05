package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	rec.IncCounter(EventIssued, ChainLabels("base-sepolia"))
	rec.IncCounter(EventIssued, ChainLabels("base-sepolia"))
	rec.ObserveLatency("issue", 150*time.Millisecond, ChainLabels("base-sepolia"))

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.counters.WithLabelValues(EventIssued, "base-sepolia")))
	assert.Equal(t, 1, testutil.CollectAndCount(rec.histogram))

	_, err = NewPrometheusRecorder(reg)
	assert.Error(t, err, "registering twice on one registry must fail")
}
