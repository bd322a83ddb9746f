// Package prometheus renders engine counters and latency histograms in the
// Prometheus text exposition format. It registers nothing globally; callers
// mount Handler wherever they serve metrics.
package prometheus
