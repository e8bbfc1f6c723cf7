// Package metric provides Prometheus metrics management for the substrate.
//
// A MetricsRegistry owns a private prometheus.Registry (with Go runtime and
// process collectors pre-registered) plus the core substrate metrics, and
// lets individual components register their own metrics under a
// service/metric key with duplicate detection.
//
// Components that accept a registry through a functional option (the task
// executor, data streams, backlogs) work identically with a nil registry;
// metrics are strictly additive observability.
//
//	registry := metric.NewMetricsRegistry()
//	exec := task.NewExecutor(cfg, task.WithMetricsRegistry(registry))
//	http.Handle("/metrics", registry.Handler())
package metric
