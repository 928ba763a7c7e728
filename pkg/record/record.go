// Package record defines the activity-record data model shared by every
// analytics component.
//
// Records arrive from the embedding process already normalized to this shape;
// ingestion and schema adaptation happen outside this library. The package
// guarantees the working-set invariants the analytics rely on: every record
// has a non-empty ID, a defined (possibly zero) risk score, and appears at
// most once per ID.
package record

import (
	"errors"
	"sort"
	"time"
)

// ErrEmptyInput is returned when an operation requires at least one record.
var ErrEmptyInput = errors.New("record: empty input")

// ActivityRecord is one observed action by one actor.
// Immutable once ingested; components treat it as read-only.
type ActivityRecord struct {
	// ID is the stable identity of the record. Never empty after Dedupe.
	ID string `json:"id"`

	// Actor identifies the user or account that performed the action.
	Actor string `json:"actor"`

	// Timestamp is when the action occurred.
	Timestamp time.Time `json:"timestamp"`

	// Action is the free-form action description from the source system.
	Action string `json:"action"`

	// Integration is the channel or connector the action came through.
	Integration string `json:"integration"`

	// RiskScore is the numeric risk assigned by the source system.
	// The scale is source-defined; thresholds are configured, never assumed.
	RiskScore float64 `json:"risk_score"`

	// Breaches lists the names of policy breaches flagged on this record.
	// Empty means no breach.
	Breaches []string `json:"breaches,omitempty"`

	// Attributes carries optional contextual key/value pairs.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// HasBreach reports whether the record carries at least one policy breach.
func (r *ActivityRecord) HasBreach() bool {
	return len(r.Breaches) > 0
}

// Day returns the record's calendar date truncated to midnight UTC.
func (r *ActivityRecord) Day() time.Time {
	return r.Timestamp.UTC().Truncate(24 * time.Hour)
}

// Dedupe returns the working set for a run: records with empty IDs are
// dropped, negative risk scores are clamped to zero, and for duplicate IDs
// the first occurrence wins. Input order is preserved otherwise.
func Dedupe(records []ActivityRecord) []ActivityRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]ActivityRecord, 0, len(records))
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		if r.RiskScore < 0 {
			r.RiskScore = 0
		}
		out = append(out, r)
	}
	return out
}

// GroupByActor partitions records by actor, each group sorted by timestamp
// ascending with ties broken by position in the input. Records with an empty
// actor are grouped under the empty string.
func GroupByActor(records []ActivityRecord) map[string][]ActivityRecord {
	groups := make(map[string][]ActivityRecord)
	for _, r := range records {
		groups[r.Actor] = append(groups[r.Actor], r)
	}
	for actor, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Timestamp.Before(group[j].Timestamp)
		})
		groups[actor] = group
	}
	return groups
}

// Actors returns the distinct actor identifiers in first-seen order.
func Actors(records []ActivityRecord) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range records {
		if _, ok := seen[r.Actor]; ok {
			continue
		}
		seen[r.Actor] = struct{}{}
		out = append(out, r.Actor)
	}
	return out
}
