// Package metrics exports container and metadata store observations to
// Prometheus.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	m := metrics.New(reg)
//	opts := physlog.Options{Metrics: m, StoreMetrics: m.Store()}
package metrics
