// Package storage persists the drafting session and a bounded history of
// saved sessions.
//
// Drivers:
//   - "file": JSON snapshot of the session plus a JSON Lines history
//   - "sqlite": a single SQLite database (modernc.org/sqlite, no cgo)
package storage
