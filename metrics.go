package mediacore

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the prometheus collectors shared across readers,
// composers, and the snapshot generator. A nil *Metrics is safe to use
// (all methods are no-ops), so metrics stay strictly opt-in.
type Metrics struct {
	QueueDepth    *prometheus.GaugeVec
	DecodeDrops   *prometheus.CounterVec
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	WorkerLatency *prometheus.HistogramVec
}

// NewMetrics constructs and registers the engine's collectors against
// reg. Pass prometheus.NewRegistry() for test isolation.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mediacore",
			Name:      "queue_depth",
			Help:      "Pending items in a bounded worker queue.",
		}, []string{"queue"}),
		DecodeDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediacore",
			Name:      "decode_drops_total",
			Help:      "Frames or packets dropped during decode/convert.",
		}, []string{"reason"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mediacore",
			Name:      "snapshot_cache_hits_total",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mediacore",
			Name:      "snapshot_cache_misses_total",
		}),
		WorkerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mediacore",
			Name:      "worker_iteration_seconds",
			Help:      "Duration of one worker-loop iteration.",
		}, []string{"worker"}),
	}
	if reg != nil {
		reg.MustRegister(m.QueueDepth, m.DecodeDrops, m.CacheHits, m.CacheMisses, m.WorkerLatency)
	}
	return m
}

func (m *Metrics) setQueueDepth(queue string, n int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(queue).Set(float64(n))
}

func (m *Metrics) incDrop(reason string) {
	if m == nil {
		return
	}
	m.DecodeDrops.WithLabelValues(reason).Inc()
}
