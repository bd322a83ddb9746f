// Package otel publishes engine metrics through an OpenTelemetry meter.
//
// [NewOTelExporter] registers one Int64ObservableCounter per engine counter.
// Each latency histogram becomes a "_bucket" gauge with an "le" attribute per
// bound and a "_count" gauge. A single callback reads the engine snapshot on
// each collection. The caller owns the MeterProvider.
package otel
