// Package otel binds goIdentity engine metrics to OpenTelemetry observable
// instruments.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and
// one Int64ObservableGauge per histogram bucket. The caller owns the
// MeterProvider and supplies the Meter.
package otel
