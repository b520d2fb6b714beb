package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the Prometheus implementation of the container and store
// observation hooks. One value is shared by every container a process opens.
type Metrics struct {
	appendedBytes prometheus.Counter
	appends       prometheus.Counter
	readBytes     prometheus.Counter
	reads         prometheus.Counter
	truncations   *prometheus.CounterVec
	rebuilds      *prometheus.CounterVec
	freeExtents   *prometheus.GaugeVec
	fsyncDuration prometheus.Summary

	storeWrites  prometheus.Summary
	storeReads   prometheus.Summary
	batchCommits prometheus.Summary
	batchOps     prometheus.Counter
	batchBytes   prometheus.Counter
}

// New builds the collectors and registers them under the sharedlog_ prefix.
func New(registerer prometheus.Registerer) *Metrics {
	reg := prometheus.WrapRegistererWithPrefix("sharedlog_", registerer)
	m := &Metrics{}

	m.appendedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "appended_bytes_total",
		Help: "Total number of bytes appended to logical streams.",
	})

	m.appends = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "appends_total",
		Help: "Total number of append calls.",
	})

	m.readBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "read_bytes_total",
		Help: "Total number of bytes returned by stream reads.",
	})

	m.reads = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reads_total",
		Help: "Total number of read calls.",
	})

	m.truncations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "truncations_total",
		Help: "Total number of truncations by end.",
	}, []string{"kind"})

	m.rebuilds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "metadata_rebuilds_total",
		Help: "Total number of metadata rebuilds by outcome.",
	}, []string{"outcome"})

	m.freeExtents = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "free_extents",
		Help: "Number of unallocated extents per container.",
	}, []string{"container"})

	m.fsyncDuration = prometheus.NewSummary(prometheus.SummaryOpts{
		Name:       "fsync_duration_seconds",
		Help:       "Duration of extent file fsync.",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	})

	m.storeWrites = prometheus.NewSummary(prometheus.SummaryOpts{
		Name:       "meta_write_duration_seconds",
		Help:       "Duration of single metadata writes.",
		Objectives: map[float64]float64{0.5: 0.05, 0.99: 0.001},
	})

	m.storeReads = prometheus.NewSummary(prometheus.SummaryOpts{
		Name:       "meta_read_duration_seconds",
		Help:       "Duration of metadata point reads.",
		Objectives: map[float64]float64{0.5: 0.05, 0.99: 0.001},
	})

	m.batchCommits = prometheus.NewSummary(prometheus.SummaryOpts{
		Name:       "meta_batch_commit_duration_seconds",
		Help:       "Duration of metadata batch commits.",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	})

	m.batchOps = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meta_batch_ops_total",
		Help: "Total number of operations committed in metadata batches.",
	})

	m.batchBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meta_batch_bytes_total",
		Help: "Total size of committed metadata batches.",
	})

	reg.MustRegister(
		m.appendedBytes, m.appends, m.readBytes, m.reads,
		m.truncations, m.rebuilds, m.freeExtents, m.fsyncDuration,
		m.storeWrites, m.storeReads, m.batchCommits, m.batchOps, m.batchBytes,
	)
	return m
}

func (m *Metrics) ObserveAppend(bytes int) {
	m.appends.Inc()
	m.appendedBytes.Add(float64(bytes))
}

func (m *Metrics) ObserveRead(bytes int) {
	m.reads.Inc()
	m.readBytes.Add(float64(bytes))
}

func (m *Metrics) ObserveTruncate(kind string) {
	m.truncations.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveSync(elapsed time.Duration) {
	m.fsyncDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRebuild(outcome string) {
	m.rebuilds.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetFreeExtents(container string, free int) {
	m.freeExtents.WithLabelValues(container).Set(float64(free))
}

// Store adapts m to the metadata store hook.
func (m *Metrics) Store() *StoreMetrics { return &StoreMetrics{m: m} }

// StoreMetrics implements the Pebble store hook. Its ObserveRead has a
// different shape from the container one, hence the separate type.
type StoreMetrics struct{ m *Metrics }

func (s *StoreMetrics) ObserveWrite(elapsed time.Duration, _ int) {
	s.m.storeWrites.Observe(elapsed.Seconds())
}

func (s *StoreMetrics) ObserveRead(elapsed time.Duration, _ int) {
	s.m.storeReads.Observe(elapsed.Seconds())
}

func (s *StoreMetrics) ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int) {
	s.m.batchCommits.Observe(elapsed.Seconds())
	s.m.batchOps.Add(float64(numOps))
	s.m.batchBytes.Add(float64(bytes))
}
