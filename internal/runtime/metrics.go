package runtime

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// QueueMetrics tracks per-queue traffic statistics and exports them as
// Prometheus collectors.
type QueueMetrics struct {
	mu sync.RWMutex

	// Per-queue counts
	queueCounts map[string]*QueueTrafficMetrics

	// Prometheus collectors
	sentTotal          *prometheus.CounterVec
	sendFailuresTotal  *prometheus.CounterVec
	batchFailuresTotal *prometheus.CounterVec
	receivedTotal      *prometheus.CounterVec
	purgesTotal        *prometheus.CounterVec
	depthCurrent       *prometheus.GaugeVec
	sendSecondsHist    *prometheus.HistogramVec

	registerer prometheus.Registerer
	registered bool
}

// QueueTrafficMetrics holds counters for one queue.
type QueueTrafficMetrics struct {
	MessagesSent       uint64    `json:"messages_sent"`
	SendFailures       uint64    `json:"send_failures"`
	BatchEntryFailures uint64    `json:"batch_entry_failures"`
	MessagesReceived   uint64    `json:"messages_received"`
	Purges             uint64    `json:"purges"`
	LastDepth          int64     `json:"last_depth"`
	LastUpdatedAt      time.Time `json:"last_updated_at"`
}

// QueueMetricsSnapshot provides a point-in-time view of all queue metrics.
type QueueMetricsSnapshot struct {
	TotalSent     uint64                          `json:"total_sent"`
	TotalReceived uint64                          `json:"total_received"`
	TotalPurges   uint64                          `json:"total_purges"`
	QueueMetrics  map[string]*QueueTrafficMetrics `json:"queue_metrics"`
	CollectedAt   time.Time                       `json:"collected_at"`
}

func newQueueCounterVec(name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "queueflow",
			Subsystem: "broker",
			Name:      name,
			Help:      help,
		},
		[]string{"queue"},
	)
}

// NewQueueMetrics creates a new queue metrics collector.
func NewQueueMetrics(registerer prometheus.Registerer) *QueueMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &QueueMetrics{
		queueCounts:        make(map[string]*QueueTrafficMetrics),
		registerer:         registerer,
		sentTotal:          newQueueCounterVec("sent_total", "Total number of messages accepted by the broker"),
		sendFailuresTotal:  newQueueCounterVec("send_failures_total", "Total number of sends rejected by the broker"),
		batchFailuresTotal: newQueueCounterVec("batch_entry_failures_total", "Total number of failed batch entries"),
		receivedTotal:      newQueueCounterVec("received_total", "Total number of messages handed to receivers"),
		purgesTotal:        newQueueCounterVec("purges_total", "Total number of purge operations"),
		depthCurrent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "queueflow",
				Subsystem: "broker",
				Name:      "depth_current",
				Help:      "Last observed queue depth",
			},
			[]string{"queue"},
		),
		sendSecondsHist: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "queueflow",
				Subsystem: "broker",
				Name:      "send_duration_seconds",
				Help:      "Broker send latency",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"queue"},
		),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *QueueMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.sentTotal,
		m.sendFailuresTotal,
		m.batchFailuresTotal,
		m.receivedTotal,
		m.purgesTotal,
		m.depthCurrent,
		m.sendSecondsHist,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			// Already registered is not an error
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// RecordSend records one send attempt and its latency.
func (m *QueueMetrics) RecordSend(queue string, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := m.getOrCreateQueueMetrics(queue)
	metrics.LastUpdatedAt = time.Now()
	if err != nil {
		metrics.SendFailures++
		m.sendFailuresTotal.WithLabelValues(queue).Inc()
	} else {
		metrics.MessagesSent++
		m.sentTotal.WithLabelValues(queue).Inc()
	}
	m.sendSecondsHist.WithLabelValues(queue).Observe(duration.Seconds())
}

// RecordBatch records the outcome of one batch send.
func (m *QueueMetrics) RecordBatch(queue string, accepted, failed int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := m.getOrCreateQueueMetrics(queue)
	metrics.MessagesSent += uint64(accepted)
	metrics.BatchEntryFailures += uint64(failed)
	metrics.LastUpdatedAt = time.Now()

	m.sentTotal.WithLabelValues(queue).Add(float64(accepted))
	m.batchFailuresTotal.WithLabelValues(queue).Add(float64(failed))
	m.sendSecondsHist.WithLabelValues(queue).Observe(duration.Seconds())
}

// RecordReceive records messages handed to a receiver.
func (m *QueueMetrics) RecordReceive(queue string, count int) {
	if count == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := m.getOrCreateQueueMetrics(queue)
	metrics.MessagesReceived += uint64(count)
	metrics.LastUpdatedAt = time.Now()

	m.receivedTotal.WithLabelValues(queue).Add(float64(count))
}

// RecordPurge records one purge operation.
func (m *QueueMetrics) RecordPurge(queue string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := m.getOrCreateQueueMetrics(queue)
	metrics.Purges++
	metrics.LastDepth = 0
	metrics.LastUpdatedAt = time.Now()

	m.purgesTotal.WithLabelValues(queue).Inc()
	m.depthCurrent.WithLabelValues(queue).Set(0)
}

// SetDepth records the last observed depth (from statistics polling).
func (m *QueueMetrics) SetDepth(queue string, depth int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := m.getOrCreateQueueMetrics(queue)
	metrics.LastDepth = depth
	metrics.LastUpdatedAt = time.Now()

	m.depthCurrent.WithLabelValues(queue).Set(float64(depth))
}

// GetSnapshot returns a point-in-time snapshot of all queue metrics.
func (m *QueueMetrics) GetSnapshot() QueueMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := QueueMetricsSnapshot{
		QueueMetrics: make(map[string]*QueueTrafficMetrics),
		CollectedAt:  time.Now(),
	}

	for queue, metrics := range m.queueCounts {
		copied := *metrics
		snapshot.QueueMetrics[queue] = &copied
		snapshot.TotalSent += metrics.MessagesSent
		snapshot.TotalReceived += metrics.MessagesReceived
		snapshot.TotalPurges += metrics.Purges
	}

	return snapshot
}

// GetQueueMetrics returns metrics for a specific queue, or nil when the
// queue has seen no traffic.
func (m *QueueMetrics) GetQueueMetrics(queue string) *QueueTrafficMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if metrics, ok := m.queueCounts[queue]; ok {
		copied := *metrics
		return &copied
	}
	return nil
}

func (m *QueueMetrics) getOrCreateQueueMetrics(queue string) *QueueTrafficMetrics {
	if metrics, ok := m.queueCounts[queue]; ok {
		return metrics
	}
	metrics := &QueueTrafficMetrics{}
	m.queueCounts[queue] = metrics
	return metrics
}

// Reset resets all metrics (useful for testing).
func (m *QueueMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queueCounts = make(map[string]*QueueTrafficMetrics)
	m.sentTotal.Reset()
	m.sendFailuresTotal.Reset()
	m.batchFailuresTotal.Reset()
	m.receivedTotal.Reset()
	m.purgesTotal.Reset()
	m.depthCurrent.Reset()
	m.sendSecondsHist.Reset()
}
