// Package audit provides the dispatch audit trail, capturing send, retry,
// throttle, and batch events and forwarding them to configurable sinks
// (Kafka, log) with queued, non-blocking delivery.
package audit
