// Package dispatch is the multi-account dispatch scheduler core: the engine
// that resolves a sender account, classifies provider failures, and retries
// with exponential backoff, plus the batch coordinator that fans one request
// out into per-recipient sends with partial-failure isolation.
package dispatch
