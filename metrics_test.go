package mediacore

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsNilIsNoOp(t *testing.T) {
	t.Parallel()
	var m *Metrics
	assert.NotPanics(t, func() {
		m.setQueueDepth("decode", 3)
		m.incDrop("overflow")
	})
}

func TestMetricsSetQueueDepth(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.setQueueDepth("decode", 5)
	assert.Equal(t, 5.0, testutil.ToFloat64(m.QueueDepth.WithLabelValues("decode")))
}

func TestMetricsIncDrop(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.incDrop("queue_full")
	m.incDrop("queue_full")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DecodeDrops.WithLabelValues("queue_full")))
}
