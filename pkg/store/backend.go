package store

import (
	"time"

	"riskscope/pkg/record"
)

// Backend is the persistence surface the recovery ladder drives. Encoding,
// compression and integrity digests happen above this interface; a backend
// stores and returns opaque chunk payloads plus structured keyed records.
//
// Backends are safe for one writer at a time; the Store serializes access.
type Backend interface {
	// PutMetadata overwrites the single metadata row.
	PutMetadata(m Metadata) error

	// GetMetadata returns the metadata and whether any was present.
	GetMetadata() (Metadata, bool, error)

	// PutChunk stores one chunk payload. count is the number of records the
	// payload holds.
	PutChunk(index, count int, payload, digest []byte) error

	// GetChunk returns a chunk payload, or ErrChunkMissing.
	GetChunk(index int) (payload, digest []byte, err error)

	// ChunkIndexes returns the stored chunk indexes in ascending order.
	ChunkIndexes() ([]int, error)

	// PutRecords stores individually keyed records with secondary indexes
	// by risk score, date, actor and integration.
	PutRecords(records []record.ActivityRecord) error

	// KeyedCount returns how many keyed records are stored.
	KeyedCount() (int, error)

	// AllKeyed returns every keyed record ordered by timestamp then ID.
	AllKeyed() ([]record.ActivityRecord, error)

	// ByActor returns the actor's keyed records ordered by timestamp.
	ByActor(actor string) ([]record.ActivityRecord, error)

	// ByIntegration returns keyed records for one integration channel.
	ByIntegration(integration string) ([]record.ActivityRecord, error)

	// ByRiskAbove returns keyed records with risk score above the threshold,
	// highest risk first.
	ByRiskAbove(threshold float64) ([]record.ActivityRecord, error)

	// ByDay returns keyed records on the given UTC calendar date.
	ByDay(day time.Time) ([]record.ActivityRecord, error)

	// Clear removes metadata, chunks and keyed records.
	Clear() error

	// Close releases backend resources.
	Close() error
}
