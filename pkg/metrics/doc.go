// Package metrics defines the Prometheus counters for dispatch, batch, and
// audit trail activity, and exposes the /metrics handler.
package metrics
