package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/valyala/fastjson"
	"golang.org/x/crypto/blake2b"

	"riskscope/pkg/record"
)

// encodeChunk serializes records to gzipped JSON at the given compression
// level and returns the payload with its integrity digest.
func encodeChunk(records []record.ActivityRecord, level int) (payload, digest []byte, err error) {
	raw, err := json.Marshal(records)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal chunk: %w", err)
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, nil, fmt.Errorf("gzip level %d: %w", level, err)
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, nil, fmt.Errorf("compress chunk: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, nil, fmt.Errorf("finish chunk: %w", err)
	}

	payload = buf.Bytes()
	sum := blake2b.Sum256(payload)
	return payload, sum[:], nil
}

// decodeChunk verifies the digest, decompresses and parses a chunk payload.
// Any mismatch or parse failure is reported so the caller can skip the chunk.
func decodeChunk(payload, digest []byte) ([]record.ActivityRecord, error) {
	sum := blake2b.Sum256(payload)
	if !bytes.Equal(sum[:], digest) {
		return nil, fmt.Errorf("chunk digest mismatch")
	}

	zr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("open chunk: %w", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress chunk: %w", err)
	}
	if err := zr.Close(); err != nil {
		return nil, fmt.Errorf("close chunk reader: %w", err)
	}

	return parseRecords(raw)
}

// parseRecords parses a JSON array of records. fastjson keeps the hot read
// path allocation-light compared to encoding/json.
func parseRecords(raw []byte) ([]record.ActivityRecord, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("parse chunk json: %w", err)
	}
	items, err := v.Array()
	if err != nil {
		return nil, fmt.Errorf("chunk is not an array: %w", err)
	}

	out := make([]record.ActivityRecord, 0, len(items))
	for i, item := range items {
		r, err := parseRecord(item)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func parseRecord(v *fastjson.Value) (record.ActivityRecord, error) {
	var r record.ActivityRecord

	r.ID = string(v.GetStringBytes("id"))
	if r.ID == "" {
		return r, fmt.Errorf("missing id")
	}
	r.Actor = string(v.GetStringBytes("actor"))
	r.Action = string(v.GetStringBytes("action"))
	r.Integration = string(v.GetStringBytes("integration"))
	r.RiskScore = v.GetFloat64("risk_score")

	ts := string(v.GetStringBytes("timestamp"))
	if ts != "" {
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return r, fmt.Errorf("timestamp %q: %w", ts, err)
		}
		r.Timestamp = parsed
	}

	for _, b := range v.GetArray("breaches") {
		r.Breaches = append(r.Breaches, string(b.GetStringBytes()))
	}

	if attrs := v.GetObject("attributes"); attrs != nil {
		r.Attributes = make(map[string]string)
		attrs.Visit(func(key []byte, value *fastjson.Value) {
			r.Attributes[string(key)] = string(value.GetStringBytes())
		})
	}
	return r, nil
}

// encodeRecord serializes a single record for the keyed table.
func encodeRecord(r *record.ActivityRecord) ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal record %s: %w", r.ID, err)
	}
	return raw, nil
}

// decodeRecord parses a single keyed record payload.
func decodeRecord(raw []byte) (record.ActivityRecord, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(raw)
	if err != nil {
		return record.ActivityRecord{}, fmt.Errorf("parse record json: %w", err)
	}
	return parseRecord(v)
}
