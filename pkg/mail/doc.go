// Package mail is the delivery layer: the transport-agnostic envelope, the
// SMTP mailer with per-account dialers, provider error code extraction, and
// template rendering for rich message bodies.
package mail
