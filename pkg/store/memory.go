package store

import (
	"sort"
	"sync"
	"time"

	"riskscope/pkg/record"
)

// MemoryBackend keeps everything in maps. It backs tests and small embedded
// uses, and carries an optional write-failure hook so the recovery ladder
// can be exercised deterministically.
type MemoryBackend struct {
	mu     sync.Mutex
	meta   *Metadata
	chunks map[int]memoryChunk
	keyed  map[string]record.ActivityRecord
	closed bool

	// FailWrite, when set, is consulted before every write. op is one of
	// "metadata", "chunk" or "records"; n is the record count involved and
	// meta is the metadata in effect for the write, which carries the
	// recovery level. Returning a non-nil error makes the write fail.
	FailWrite func(op string, n int, meta Metadata) error
}

type memoryChunk struct {
	count   int
	payload []byte
	digest  []byte
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		chunks: make(map[int]memoryChunk),
		keyed:  make(map[string]record.ActivityRecord),
	}
}

// Metadata returns the currently stored metadata, if any. Exposed so
// failure hooks can decide based on the recovery level in effect.
func (b *MemoryBackend) Metadata() (Metadata, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.meta == nil {
		return Metadata{}, false
	}
	return *b.meta, true
}

// CorruptChunk flips bytes in a stored chunk payload without touching its
// digest, simulating on-disk corruption.
func (b *MemoryBackend) CorruptChunk(index int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.chunks[index]
	if !ok || len(c.payload) == 0 {
		return false
	}
	mangled := make([]byte, len(c.payload))
	copy(mangled, c.payload)
	mangled[len(mangled)/2] ^= 0xFF
	c.payload = mangled
	b.chunks[index] = c
	return true
}

// DropChunk removes a stored chunk outright.
func (b *MemoryBackend) DropChunk(index int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.chunks, index)
}

// failCheck runs the injection hook with the metadata in effect. Callers
// hold b.mu.
func (b *MemoryBackend) failCheck(op string, n int, meta Metadata) error {
	if b.FailWrite != nil {
		return b.FailWrite(op, n, meta)
	}
	return nil
}

// PutMetadata implements Backend.
func (b *MemoryBackend) PutMetadata(m Metadata) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if err := b.failCheck("metadata", m.Count, m); err != nil {
		return err
	}
	b.meta = &m
	return nil
}

// GetMetadata implements Backend.
func (b *MemoryBackend) GetMetadata() (Metadata, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Metadata{}, false, ErrClosed
	}
	if b.meta == nil {
		return Metadata{}, false, nil
	}
	return *b.meta, true, nil
}

// PutChunk implements Backend.
func (b *MemoryBackend) PutChunk(index, count int, payload, digest []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if err := b.failCheck("chunk", count, b.currentMeta()); err != nil {
		return err
	}
	b.chunks[index] = memoryChunk{
		count:   count,
		payload: append([]byte(nil), payload...),
		digest:  append([]byte(nil), digest...),
	}
	return nil
}

// GetChunk implements Backend.
func (b *MemoryBackend) GetChunk(index int) ([]byte, []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, nil, ErrClosed
	}
	c, ok := b.chunks[index]
	if !ok {
		return nil, nil, ErrChunkMissing
	}
	return c.payload, c.digest, nil
}

// ChunkIndexes implements Backend.
func (b *MemoryBackend) ChunkIndexes() ([]int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	indexes := make([]int, 0, len(b.chunks))
	for idx := range b.chunks {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	return indexes, nil
}

// PutRecords implements Backend.
func (b *MemoryBackend) PutRecords(records []record.ActivityRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if err := b.failCheck("records", len(records), b.currentMeta()); err != nil {
		return err
	}
	for _, r := range records {
		b.keyed[r.ID] = r
	}
	return nil
}

// KeyedCount implements Backend.
func (b *MemoryBackend) KeyedCount() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrClosed
	}
	return len(b.keyed), nil
}

// AllKeyed implements Backend.
func (b *MemoryBackend) AllKeyed() ([]record.ActivityRecord, error) {
	return b.selectKeyed(func(r *record.ActivityRecord) bool { return true })
}

// ByActor implements Backend.
func (b *MemoryBackend) ByActor(actor string) ([]record.ActivityRecord, error) {
	return b.selectKeyed(func(r *record.ActivityRecord) bool { return r.Actor == actor })
}

// ByIntegration implements Backend.
func (b *MemoryBackend) ByIntegration(integration string) ([]record.ActivityRecord, error) {
	return b.selectKeyed(func(r *record.ActivityRecord) bool { return r.Integration == integration })
}

// ByRiskAbove implements Backend.
func (b *MemoryBackend) ByRiskAbove(threshold float64) ([]record.ActivityRecord, error) {
	out, err := b.selectKeyed(func(r *record.ActivityRecord) bool { return r.RiskScore > threshold })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RiskScore > out[j].RiskScore })
	return out, nil
}

// ByDay implements Backend.
func (b *MemoryBackend) ByDay(day time.Time) ([]record.ActivityRecord, error) {
	target := day.UTC().Format("2006-01-02")
	return b.selectKeyed(func(r *record.ActivityRecord) bool {
		return r.Timestamp.UTC().Format("2006-01-02") == target
	})
}

func (b *MemoryBackend) selectKeyed(keep func(*record.ActivityRecord) bool) ([]record.ActivityRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	var out []record.ActivityRecord
	for _, r := range b.keyed {
		if keep(&r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// currentMeta returns the stored metadata or its zero value. Callers hold
// b.mu.
func (b *MemoryBackend) currentMeta() Metadata {
	if b.meta == nil {
		return Metadata{}
	}
	return *b.meta
}

// Clear implements Backend.
func (b *MemoryBackend) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.meta = nil
	b.chunks = make(map[int]memoryChunk)
	b.keyed = make(map[string]record.ActivityRecord)
	return nil
}

// Close implements Backend.
func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
