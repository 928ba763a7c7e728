// Package store persists the working set with a degrading recovery ladder.
//
// The write path tries three strategies in order: normal (full chunked write
// plus individually keyed records with secondary indexes), recovery (much
// smaller chunks, no keyed copies), and last-resort (only the highest-risk
// records in a single chunk, flagged partial). The read path returns whatever
// can be recovered, skipping corrupt chunks instead of failing.
//
// Two backends exist behind the Backend interface: SQLite for real use and
// an in-memory backend for tests and failure injection.
package store

import (
	"errors"
	"time"
)

// FormatVersion is the persistent layout version.
const FormatVersion = 1

// Recovery levels recorded in the metadata.
const (
	LevelNormal = iota
	LevelRecovery
	LevelLastResort
)

// recoveryDivisor shrinks the chunk size when falling to LevelRecovery.
const recoveryDivisor = 10

// LastResortCap is how many top-risk records the final ladder rung keeps.
const LastResortCap = 100

var (
	// ErrExhausted is returned when every rung of the recovery ladder failed.
	ErrExhausted = errors.New("store: all storage strategies failed")

	// ErrChunkMissing is returned by backends for absent chunk indexes.
	ErrChunkMissing = errors.New("store: chunk not found")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store: closed")
)

// Metadata is the versioned layout descriptor written before any data.
type Metadata struct {
	// Count is the number of records the write attempted to persist.
	Count int `json:"count"`

	// ChunkSize is the chunk size the data was written with.
	ChunkSize int `json:"chunk_size"`

	// FormatVersion is the layout version.
	FormatVersion int `json:"format_version"`

	// RecoveryLevel records which ladder rung produced the data.
	RecoveryLevel int `json:"recovery_level"`

	// Partial is set by the last-resort rung: only the top records by risk
	// survive.
	Partial bool `json:"partial"`

	// UpdatedAt is when the metadata was last written.
	UpdatedAt time.Time `json:"updated_at"`
}

// Stats counts write/read outcomes since the store was created.
type Stats struct {
	Writes         int
	WriteFallbacks int
	WriteFailures  int
	Reads          int
	SkippedChunks  int
}
