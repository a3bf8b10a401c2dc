// Package prometheus exposes goIdentity engine metrics as a Prometheus
// collector.
//
// [NewExporter] wraps an engine. Counters are named goidentity_*_total; the
// single histogram is goidentity_resolve_latency_seconds. The collector never
// touches the default registry: use [Exporter.Handler] or register it
// yourself.
package prometheus
