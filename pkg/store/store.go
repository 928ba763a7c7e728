package store

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"riskscope/pkg/adaptive"
	"riskscope/pkg/logging"
	"riskscope/pkg/record"
)

// Sample categories reported to the tuner.
const (
	categoryWrite = "store.write"
	categoryRead  = "store.read"
)

// Options configure a Store.
type Options struct {
	// ChunkSize overrides the tuner's recommended chunk size when positive.
	ChunkSize int
}

// Store drives the recovery ladder over a Backend. One writer at a time;
// callers must not interleave Save and Clear, and the Store serializes its
// own methods.
type Store struct {
	mu      sync.Mutex
	backend Backend
	tuner   *adaptive.Tuner
	log     *logging.Logger
	opts    Options
	stats   Stats
}

// New creates a Store over backend. tuner and logger may be nil.
func New(backend Backend, tuner *adaptive.Tuner, logger *logging.Logger, opts Options) *Store {
	if logger == nil {
		logger = logging.Nop()
	}
	if tuner == nil {
		tuner = adaptive.NewTuner(nil)
	}
	return &Store{
		backend: backend,
		tuner:   tuner,
		log:     logger.WithComponent("store"),
		opts:    opts,
	}
}

// Save persists the working set, degrading through the recovery ladder on
// failure: full chunked write with keyed records, then a retry at a much
// smaller chunk size, then a single partial chunk of the top records by
// risk. Only when the last rung fails does Save return ErrExhausted.
//
// Cancellation aborts immediately and is returned as the context's error,
// not as a storage failure.
func (s *Store) Save(ctx context.Context, records []record.ActivityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalSize := s.opts.ChunkSize
	if normalSize <= 0 {
		normalSize = s.tuner.RecommendedChunkSize(len(records))
	}
	recoverySize := normalSize / recoveryDivisor
	if recoverySize < 1 {
		recoverySize = 1
	}

	rungs := []struct {
		level     int
		chunkSize int
	}{
		{LevelNormal, normalSize},
		{LevelRecovery, recoverySize},
		{LevelLastResort, LastResortCap},
	}

	var lastErr error
	for _, rung := range rungs {
		toWrite := records
		if rung.level == LevelLastResort {
			toWrite = topByRisk(records, LastResortCap)
		}

		start := time.Now()
		err := s.writeLevel(ctx, toWrite, rung.level, rung.chunkSize)
		s.tuner.RecordSample(adaptive.Sample{
			Category:  categoryWrite,
			Duration:  time.Since(start),
			Success:   err == nil,
			DataSize:  len(toWrite),
			ChunkSize: rung.chunkSize,
		})

		if err == nil {
			s.stats.Writes++
			if rung.level != LevelNormal {
				s.log.Warn("stored with degraded strategy",
					"recovery_level", rung.level,
					"records", len(toWrite))
			}
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		lastErr = err
		s.stats.WriteFallbacks++
		s.log.Warn("storage strategy failed, degrading",
			"recovery_level", rung.level,
			"chunk_size", rung.chunkSize,
			"error", err)
	}

	s.stats.WriteFailures++
	return fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}

// writeLevel performs one ladder rung: clear, metadata, chunks, and at the
// normal level the keyed copies.
func (s *Store) writeLevel(ctx context.Context, records []record.ActivityRecord, level, chunkSize int) error {
	if err := s.backend.Clear(); err != nil {
		return fmt.Errorf("clear before write: %w", err)
	}

	meta := Metadata{
		Count:         len(records),
		ChunkSize:     chunkSize,
		FormatVersion: FormatVersion,
		RecoveryLevel: level,
		Partial:       level == LevelLastResort,
		UpdatedAt:     time.Now().UTC(),
	}
	if err := s.backend.PutMetadata(meta); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	compression := s.tuner.Params().CompressionLevel
	for index, offset := 0, 0; offset < len(records); index, offset = index+1, offset+chunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := offset + chunkSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[offset:end]

		payload, digest, err := encodeChunk(chunk, compression)
		if err != nil {
			return err
		}
		if err := s.backend.PutChunk(index, len(chunk), payload, digest); err != nil {
			return err
		}

		// Yield between chunk writes so a cooperative host stays responsive.
		runtime.Gosched()
	}

	if level == LevelNormal {
		if err := s.backend.PutRecords(records); err != nil {
			return fmt.Errorf("write keyed records: %w", err)
		}
	}
	return nil
}

// Load retrieves whatever can be recovered. The keyed representation is
// preferred when its count matches the metadata; otherwise chunks are read
// in order and unreadable chunks are skipped, never fatal.
func (s *Store) Load(ctx context.Context) ([]record.ActivityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	records, err := s.load(ctx)
	s.tuner.RecordSample(adaptive.Sample{
		Category: categoryRead,
		Duration: time.Since(start),
		Success:  err == nil,
		DataSize: len(records),
	})
	if err == nil {
		s.stats.Reads++
	}
	return records, err
}

func (s *Store) load(ctx context.Context) ([]record.ActivityRecord, error) {
	meta, ok, err := s.backend.GetMetadata()
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	if !ok {
		return nil, nil
	}

	if meta.RecoveryLevel == LevelNormal {
		count, err := s.backend.KeyedCount()
		if err == nil && count == meta.Count {
			records, err := s.backend.AllKeyed()
			if err == nil {
				return records, nil
			}
			s.log.Warn("keyed read failed, reconstructing from chunks", "error", err)
		}
	}

	indexes, err := s.backend.ChunkIndexes()
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}

	var out []record.ActivityRecord
	for _, index := range indexes {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		payload, digest, err := s.backend.GetChunk(index)
		if err != nil {
			s.stats.SkippedChunks++
			s.log.Warn("skipping unreadable chunk", "chunk", index, "error", err)
			continue
		}
		chunk, err := decodeChunk(payload, digest)
		if err != nil {
			s.stats.SkippedChunks++
			s.log.Warn("skipping corrupt chunk", "chunk", index, "error", err)
			continue
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// Metadata returns the stored layout descriptor, if any.
func (s *Store) Metadata() (Metadata, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.GetMetadata()
}

// ByActor returns the actor's records from the keyed index.
func (s *Store) ByActor(actor string) ([]record.ActivityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.ByActor(actor)
}

// ByIntegration returns records for one integration channel.
func (s *Store) ByIntegration(integration string) ([]record.ActivityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.ByIntegration(integration)
}

// ByRiskAbove returns records above the risk threshold, highest first.
func (s *Store) ByRiskAbove(threshold float64) ([]record.ActivityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.ByRiskAbove(threshold)
}

// ByDay returns records on one UTC calendar date.
func (s *Store) ByDay(day time.Time) ([]record.ActivityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.ByDay(day)
}

// Clear removes all persisted data.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Clear()
}

// Stats returns outcome counters since the store was created.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close releases the backend.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Close()
}

// topByRisk keeps the n highest-risk records; risk ties resolve by ID so the
// partial set is deterministic.
func topByRisk(records []record.ActivityRecord, n int) []record.ActivityRecord {
	sorted := make([]record.ActivityRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].RiskScore != sorted[j].RiskScore {
			return sorted[i].RiskScore > sorted[j].RiskScore
		}
		return sorted[i].ID < sorted[j].ID
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
