// Package metrics defines the Prometheus collectors for recording sessions,
// pipeline stages, and the presentation server. All recording methods are
// safe on a nil *Metrics so callers can run without a registry.
package metrics
