// Package apiresponses provides standardized HTTP API response helpers
// (error, not-found, rate-limited, etc.) shared between api and dispatch
// packages without import cycles.
package apiresponses
