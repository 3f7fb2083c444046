// Package account holds the sender account pool: the immutable registry
// loaded at startup, per-account daily usage tracking with rollover, and
// round-robin selection that skips rate-limited or quota-exhausted accounts.
package account
