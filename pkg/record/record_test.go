package record

import (
	"testing"
	"time"
)

func rec(id, actor string, ts int64, risk float64) ActivityRecord {
	return ActivityRecord{
		ID:        id,
		Actor:     actor,
		Timestamp: time.Unix(ts, 0).UTC(),
		Action:    "file viewed",
		RiskScore: risk,
	}
}

func TestDedupe(t *testing.T) {
	tests := []struct {
		name    string
		input   []ActivityRecord
		wantIDs []string
	}{
		{
			name:    "empty input",
			input:   nil,
			wantIDs: []string{},
		},
		{
			name: "duplicates keep first",
			input: []ActivityRecord{
				rec("a", "u1", 10, 1),
				rec("b", "u1", 20, 2),
				rec("a", "u2", 30, 3),
			},
			wantIDs: []string{"a", "b"},
		},
		{
			name: "empty ids dropped",
			input: []ActivityRecord{
				rec("", "u1", 10, 1),
				rec("c", "u1", 20, 2),
			},
			wantIDs: []string{"c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Dedupe(tt.input)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("Dedupe() returned %d records, want %d", len(got), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("record %d has id %q, want %q", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestDedupeClampsNegativeRisk(t *testing.T) {
	got := Dedupe([]ActivityRecord{rec("a", "u1", 10, -50)})
	if len(got) != 1 {
		t.Fatalf("Dedupe() returned %d records, want 1", len(got))
	}
	if got[0].RiskScore != 0 {
		t.Errorf("risk score = %v, want 0", got[0].RiskScore)
	}
}

func TestDedupeKeepsFirstOccurrenceFields(t *testing.T) {
	first := rec("a", "u1", 10, 5)
	second := rec("a", "u2", 99, 9)
	got := Dedupe([]ActivityRecord{first, second})
	if got[0].Actor != "u1" {
		t.Errorf("kept actor %q, want first occurrence u1", got[0].Actor)
	}
}

func TestGroupByActorSortsByTimestamp(t *testing.T) {
	records := []ActivityRecord{
		rec("a", "u1", 30, 1),
		rec("b", "u1", 10, 1),
		rec("c", "u2", 20, 1),
		rec("d", "u1", 20, 1),
	}
	groups := GroupByActor(records)

	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	u1 := groups["u1"]
	wantOrder := []string{"b", "d", "a"}
	for i, id := range wantOrder {
		if u1[i].ID != id {
			t.Errorf("u1[%d] = %q, want %q", i, u1[i].ID, id)
		}
	}
}

func TestGroupByActorStableOnEqualTimestamps(t *testing.T) {
	records := []ActivityRecord{
		rec("x", "u1", 10, 1),
		rec("y", "u1", 10, 1),
		rec("z", "u1", 10, 1),
	}
	groups := GroupByActor(records)
	u1 := groups["u1"]
	for i, id := range []string{"x", "y", "z"} {
		if u1[i].ID != id {
			t.Errorf("u1[%d] = %q, want ingestion order preserved", i, u1[i].ID)
		}
	}
}

func TestActorsFirstSeenOrder(t *testing.T) {
	records := []ActivityRecord{
		rec("a", "carol", 10, 1),
		rec("b", "alice", 20, 1),
		rec("c", "carol", 30, 1),
		rec("d", "bob", 40, 1),
	}
	got := Actors(records)
	want := []string{"carol", "alice", "bob"}
	if len(got) != len(want) {
		t.Fatalf("got %d actors, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("actor %d = %q, want %q", i, got[i], want[i])
		}
	}
}
