package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"riskscope/pkg/record"
)

// Schema for the analytics working-set store. The meta table holds a single
// row; chunks and records have independent lifecycles so a failed chunked
// write never corrupts the keyed representation of an older snapshot beyond
// the Clear that precedes it.
const schema = `
CREATE TABLE IF NOT EXISTS meta (
    id              INTEGER PRIMARY KEY CHECK (id = 1),
    count           INTEGER NOT NULL,
    chunk_size      INTEGER NOT NULL,
    format_version  INTEGER NOT NULL,
    recovery_level  INTEGER NOT NULL,
    partial         INTEGER NOT NULL,
    updated_ns      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
    idx             INTEGER PRIMARY KEY,
    record_count    INTEGER NOT NULL,
    payload         BLOB NOT NULL,
    digest          BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
    id              TEXT PRIMARY KEY,
    actor           TEXT NOT NULL,
    day             TEXT NOT NULL,
    integration     TEXT NOT NULL,
    risk_score      REAL NOT NULL,
    timestamp_ns    INTEGER NOT NULL,
    payload         BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_risk ON records(risk_score);
CREATE INDEX IF NOT EXISTS idx_records_day ON records(day);
CREATE INDEX IF NOT EXISTS idx_records_actor ON records(actor, timestamp_ns);
CREATE INDEX IF NOT EXISTS idx_records_integration ON records(integration);
`

// SQLiteBackend persists the working set in a SQLite database.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

// Close implements Backend.
func (b *SQLiteBackend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// PutMetadata implements Backend.
func (b *SQLiteBackend) PutMetadata(m Metadata) error {
	partial := 0
	if m.Partial {
		partial = 1
	}
	_, err := b.db.Exec(`
		INSERT OR REPLACE INTO meta (id, count, chunk_size, format_version, recovery_level, partial, updated_ns)
		VALUES (1, ?, ?, ?, ?, ?, ?)`,
		m.Count, m.ChunkSize, m.FormatVersion, m.RecoveryLevel, partial, m.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("put metadata: %w", err)
	}
	return nil
}

// GetMetadata implements Backend.
func (b *SQLiteBackend) GetMetadata() (Metadata, bool, error) {
	var m Metadata
	var partial int
	var updatedNs int64

	err := b.db.QueryRow(`
		SELECT count, chunk_size, format_version, recovery_level, partial, updated_ns
		FROM meta WHERE id = 1`,
	).Scan(&m.Count, &m.ChunkSize, &m.FormatVersion, &m.RecoveryLevel, &partial, &updatedNs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Metadata{}, false, nil
		}
		return Metadata{}, false, fmt.Errorf("get metadata: %w", err)
	}

	m.Partial = partial != 0
	m.UpdatedAt = time.Unix(0, updatedNs).UTC()
	return m, true, nil
}

// PutChunk implements Backend.
func (b *SQLiteBackend) PutChunk(index, count int, payload, digest []byte) error {
	_, err := b.db.Exec(`
		INSERT OR REPLACE INTO chunks (idx, record_count, payload, digest)
		VALUES (?, ?, ?, ?)`,
		index, count, payload, digest,
	)
	if err != nil {
		return fmt.Errorf("put chunk %d: %w", index, err)
	}
	return nil
}

// GetChunk implements Backend.
func (b *SQLiteBackend) GetChunk(index int) ([]byte, []byte, error) {
	var payload, digest []byte
	err := b.db.QueryRow(`SELECT payload, digest FROM chunks WHERE idx = ?`, index).
		Scan(&payload, &digest)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrChunkMissing
		}
		return nil, nil, fmt.Errorf("get chunk %d: %w", index, err)
	}
	return payload, digest, nil
}

// ChunkIndexes implements Backend.
func (b *SQLiteBackend) ChunkIndexes() ([]int, error) {
	rows, err := b.db.Query(`SELECT idx FROM chunks ORDER BY idx ASC`)
	if err != nil {
		return nil, fmt.Errorf("query chunk indexes: %w", err)
	}
	defer rows.Close()

	var indexes []int
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, fmt.Errorf("scan chunk index: %w", err)
		}
		indexes = append(indexes, idx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk indexes: %w", err)
	}
	return indexes, nil
}

// PutRecords implements Backend.
func (b *SQLiteBackend) PutRecords(records []record.ActivityRecord) error {
	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO records (id, actor, day, integration, risk_score, timestamp_ns, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		r := &records[i]
		payload, err := encodeRecord(r)
		if err != nil {
			return err
		}
		day := r.Timestamp.UTC().Format("2006-01-02")
		if _, err := stmt.Exec(r.ID, r.Actor, day, r.Integration, r.RiskScore, r.Timestamp.UnixNano(), payload); err != nil {
			return fmt.Errorf("insert record %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// KeyedCount implements Backend.
func (b *SQLiteBackend) KeyedCount() (int, error) {
	var count int
	if err := b.db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

// AllKeyed implements Backend.
func (b *SQLiteBackend) AllKeyed() ([]record.ActivityRecord, error) {
	return b.queryRecords(`SELECT payload FROM records ORDER BY timestamp_ns ASC, id ASC`)
}

// ByActor implements Backend.
func (b *SQLiteBackend) ByActor(actor string) ([]record.ActivityRecord, error) {
	return b.queryRecords(`
		SELECT payload FROM records
		WHERE actor = ?
		ORDER BY timestamp_ns ASC, id ASC`, actor)
}

// ByIntegration implements Backend.
func (b *SQLiteBackend) ByIntegration(integration string) ([]record.ActivityRecord, error) {
	return b.queryRecords(`
		SELECT payload FROM records
		WHERE integration = ?
		ORDER BY timestamp_ns ASC, id ASC`, integration)
}

// ByRiskAbove implements Backend.
func (b *SQLiteBackend) ByRiskAbove(threshold float64) ([]record.ActivityRecord, error) {
	return b.queryRecords(`
		SELECT payload FROM records
		WHERE risk_score > ?
		ORDER BY risk_score DESC, timestamp_ns ASC`, threshold)
}

// ByDay implements Backend.
func (b *SQLiteBackend) ByDay(day time.Time) ([]record.ActivityRecord, error) {
	return b.queryRecords(`
		SELECT payload FROM records
		WHERE day = ?
		ORDER BY timestamp_ns ASC, id ASC`, day.UTC().Format("2006-01-02"))
}

func (b *SQLiteBackend) queryRecords(query string, args ...any) ([]record.ActivityRecord, error) {
	rows, err := b.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []record.ActivityRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r, err := decodeRecord(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// Clear implements Backend.
func (b *SQLiteBackend) Clear() error {
	for _, table := range []string{"meta", "chunks", "records"} {
		if _, err := b.db.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}
