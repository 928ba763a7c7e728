package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskscope/pkg/record"
)

var errInjected = errors.New("injected write failure")

func makeRecords(n int) []record.ActivityRecord {
	base := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	out := make([]record.ActivityRecord, n)
	for i := 0; i < n; i++ {
		out[i] = record.ActivityRecord{
			ID:          fmt.Sprintf("rec-%05d", i),
			Actor:       fmt.Sprintf("actor-%d", i%7),
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
			Action:      "file access",
			Integration: fmt.Sprintf("channel-%d", i%3),
			RiskScore:   float64(i % 3000),
		}
	}
	return out
}

func idSet(records []record.ActivityRecord) map[string]struct{} {
	out := make(map[string]struct{}, len(records))
	for _, r := range records {
		out[r.ID] = struct{}{}
	}
	return out
}

func TestSaveLoadRoundTripAcrossChunkSizes(t *testing.T) {
	for _, chunkSize := range []int{50, 500, 5000} {
		t.Run(fmt.Sprintf("chunk_%d", chunkSize), func(t *testing.T) {
			records := makeRecords(1200)
			s := New(NewMemoryBackend(), nil, nil, Options{ChunkSize: chunkSize})

			require.NoError(t, s.Save(context.Background(), records))

			loaded, err := s.Load(context.Background())
			require.NoError(t, err)
			assert.Equal(t, idSet(records), idSet(loaded),
				"same record ids regardless of chunk size")
		})
	}
}

func TestSaveWritesNormalMetadata(t *testing.T) {
	backend := NewMemoryBackend()
	s := New(backend, nil, nil, Options{ChunkSize: 100})
	require.NoError(t, s.Save(context.Background(), makeRecords(250)))

	meta, ok, err := s.Metadata()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 250, meta.Count)
	assert.Equal(t, 100, meta.ChunkSize)
	assert.Equal(t, FormatVersion, meta.FormatVersion)
	assert.Equal(t, LevelNormal, meta.RecoveryLevel)
	assert.False(t, meta.Partial)
}

func TestSaveFallsBackToRecoveryChunkSize(t *testing.T) {
	backend := NewMemoryBackend()
	backend.FailWrite = func(op string, n int, meta Metadata) error {
		if op == "chunk" && meta.RecoveryLevel == LevelNormal {
			return errInjected
		}
		return nil
	}

	s := New(backend, nil, nil, Options{ChunkSize: 200})
	records := makeRecords(400)
	require.NoError(t, s.Save(context.Background(), records))

	meta, ok, err := s.Metadata()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, LevelRecovery, meta.RecoveryLevel)
	assert.Equal(t, 20, meta.ChunkSize, "recovery rung uses a tenth of the chunk size")
	assert.False(t, meta.Partial)

	loaded, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, idSet(records), idSet(loaded), "recovery level keeps every record")
	assert.Equal(t, 1, s.Stats().WriteFallbacks)
}

func TestSaveFallsBackToLastResort(t *testing.T) {
	backend := NewMemoryBackend()
	backend.FailWrite = func(op string, n int, meta Metadata) error {
		if op == "chunk" && meta.RecoveryLevel != LevelLastResort {
			return errInjected
		}
		return nil
	}

	s := New(backend, nil, nil, Options{ChunkSize: 200})
	records := makeRecords(500)
	require.NoError(t, s.Save(context.Background(), records))

	meta, ok, err := s.Metadata()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, LevelLastResort, meta.RecoveryLevel)
	assert.True(t, meta.Partial)
	assert.Equal(t, LastResortCap, meta.Count)

	loaded, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, LastResortCap)

	// The survivors must be the highest-risk records.
	kept := idSet(loaded)
	for _, r := range topByRisk(records, LastResortCap) {
		assert.Contains(t, kept, r.ID)
	}
}

func TestSaveExhaustedWhenEveryRungFails(t *testing.T) {
	backend := NewMemoryBackend()
	backend.FailWrite = func(op string, n int, meta Metadata) error {
		if op == "chunk" {
			return errInjected
		}
		return nil
	}

	s := New(backend, nil, nil, Options{ChunkSize: 100})
	err := s.Save(context.Background(), makeRecords(300))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, s.Stats().WriteFailures)
}

func TestLoadSkipsCorruptChunks(t *testing.T) {
	backend := NewMemoryBackend()
	// Fail the keyed write so the data lands at the recovery level and the
	// read path has to reconstruct from chunks.
	backend.FailWrite = func(op string, n int, meta Metadata) error {
		if op == "records" {
			return errInjected
		}
		return nil
	}

	s := New(backend, nil, nil, Options{ChunkSize: 100})
	records := makeRecords(400)
	require.NoError(t, s.Save(context.Background(), records))

	meta, _, err := s.Metadata()
	require.NoError(t, err)
	require.Equal(t, LevelRecovery, meta.RecoveryLevel)

	require.True(t, backend.CorruptChunk(1))
	backend.DropChunk(3)

	loaded, err := s.Load(context.Background())
	require.NoError(t, err, "partial corruption must not fail retrieval")
	// Recovery chunk size is 10, so two bad chunks cost 20 records.
	assert.Len(t, loaded, 380)
	assert.Equal(t, 2, s.Stats().SkippedChunks)
}

func TestLoadPrefersKeyedRecords(t *testing.T) {
	backend := NewMemoryBackend()
	s := New(backend, nil, nil, Options{ChunkSize: 100})
	records := makeRecords(300)
	require.NoError(t, s.Save(context.Background(), records))

	// Wreck every chunk; the keyed representation still satisfies reads.
	for i := 0; i < 3; i++ {
		backend.CorruptChunk(i)
	}

	loaded, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, idSet(records), idSet(loaded))
	assert.Zero(t, s.Stats().SkippedChunks)
}

func TestLoadEmptyStore(t *testing.T) {
	s := New(NewMemoryBackend(), nil, nil, Options{})
	loaded, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestSaveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(NewMemoryBackend(), nil, nil, Options{ChunkSize: 100})
	err := s.Save(ctx, makeRecords(300))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrExhausted, "cancellation is not a storage failure")
}

func TestClear(t *testing.T) {
	s := New(NewMemoryBackend(), nil, nil, Options{ChunkSize: 100})
	require.NoError(t, s.Save(context.Background(), makeRecords(150)))
	require.NoError(t, s.Clear())

	loaded, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded)

	_, ok, err := s.Metadata()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTopByRisk(t *testing.T) {
	records := []record.ActivityRecord{
		{ID: "low", RiskScore: 10},
		{ID: "high", RiskScore: 900},
		{ID: "mid-b", RiskScore: 500},
		{ID: "mid-a", RiskScore: 500},
	}

	top := topByRisk(records, 3)
	require.Len(t, top, 3)
	assert.Equal(t, "high", top[0].ID)
	assert.Equal(t, "mid-a", top[1].ID, "risk ties resolve by id")
	assert.Equal(t, "mid-b", top[2].ID)
}

func TestCodecRoundTrip(t *testing.T) {
	records := makeRecords(25)
	records[0].Breaches = []string{"dlp", "sharing"}
	records[0].Attributes = map[string]string{"ip": "10.0.0.7", "device": "laptop"}

	payload, digest, err := encodeChunk(records, 5)
	require.NoError(t, err)

	decoded, err := decodeChunk(payload, digest)
	require.NoError(t, err)
	require.Len(t, decoded, len(records))

	assert.Equal(t, records[0].ID, decoded[0].ID)
	assert.Equal(t, records[0].Breaches, decoded[0].Breaches)
	assert.Equal(t, records[0].Attributes, decoded[0].Attributes)
	assert.True(t, records[0].Timestamp.Equal(decoded[0].Timestamp))
	assert.Equal(t, records[3].RiskScore, decoded[3].RiskScore)
}

func TestDecodeChunkRejectsDigestMismatch(t *testing.T) {
	payload, digest, err := encodeChunk(makeRecords(5), 1)
	require.NoError(t, err)

	payload[len(payload)/2] ^= 0xFF
	_, err = decodeChunk(payload, digest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "digest mismatch")
}
