// Package api implements the HTTP API server (Gin-based) for the email
// dispatch service, providing REST endpoints for single sends, template
// batches, CSV batch uploads, and sender account status.
package api
