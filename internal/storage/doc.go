// Package storage is the digest queue: events waiting to be compiled into
// the next digest, grouped by recipient.
//
// Four backends are available:
//   - memory: process-local
//   - file: JSON Lines journal compacted into a snapshot on every clear
//   - sqlite: a single table in a SQLite database (modernc, no cgo)
//   - redis: a sorted set scored by sequence number
//
// All backends hand out sequence numbers that only ever increase. GetAll
// reports the highest one it saw and ClearAll removes up to that watermark,
// so an event queued while a digest is being sent is kept for the next one.
package storage
