package report

import (
	"errors"
	"sync"

	"github.com/adamwoolhether/downloader/batch"
	"github.com/adamwoolhether/downloader/client"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a batch.Observer that records Prometheus metrics.
type Metrics struct {
	transfers *prometheus.CounterVec
	failures  *prometheus.CounterVec
	retries   prometheus.Counter
	bytes     prometheus.Counter
	duration  prometheus.Histogram
	size      prometheus.Histogram
	inFlight  prometheus.Gauge

	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

// NewMetrics creates the downloader metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, errors.New("registerer must not be nil")
	}

	m := Metrics{
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "downloader_transfers_total",
			Help: "Finished downloads by status.",
		}, []string{"status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "downloader_failures_total",
			Help: "Failed or cancelled downloads by failure kind.",
		}, []string{"kind"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "downloader_retries_total",
			Help: "Download attempts after the first.",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "downloader_bytes_total",
			Help: "Bytes written by completed downloads.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "downloader_transfer_duration_seconds",
			Help:    "Time from start to finish of completed downloads, retries included.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}),
		size: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "downloader_file_size_bytes",
			Help:    "Size of completed downloads.",
			Buckets: prometheus.ExponentialBuckets(1024, 10, 7), // 1KiB .. ~1GB
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "downloader_in_flight",
			Help: "Downloads currently running.",
		}),
		running: make(map[uuid.UUID]struct{}),
	}

	for _, c := range []prometheus.Collector{m.transfers, m.failures, m.retries, m.bytes, m.duration, m.size, m.inFlight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return &m, nil
}

func (m *Metrics) TaskStarted(t batch.Task) {
	m.mu.Lock()
	m.running[t.ID] = struct{}{}
	m.mu.Unlock()

	m.inFlight.Inc()
}

func (m *Metrics) TaskRetried(batch.Task, error) {
	m.retries.Inc()
}

func (m *Metrics) TaskFinished(r batch.Result) {
	m.mu.Lock()
	_, ok := m.running[r.TaskID]
	delete(m.running, r.TaskID)
	m.mu.Unlock()

	if ok {
		m.inFlight.Dec()
	}

	m.transfers.WithLabelValues(r.Status.String()).Inc()

	if r.Kind != client.FailureNone {
		m.failures.WithLabelValues(r.Kind.String()).Inc()
	}

	if r.Status == batch.StatusCompleted {
		m.bytes.Add(float64(r.Bytes))
		m.duration.Observe(r.Duration.Seconds())
		m.size.Observe(float64(r.Bytes))
	}
}
