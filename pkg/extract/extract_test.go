package extract

import (
	"math"
	"testing"
	"time"

	"riskscope/pkg/record"
)

const testThreshold = 1500

func rec(id, actor, action, integration string, ts time.Time, risk float64) record.ActivityRecord {
	return record.ActivityRecord{
		ID:          id,
		Actor:       actor,
		Action:      action,
		Integration: integration,
		Timestamp:   ts,
		RiskScore:   risk,
	}
}

func TestClassify(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		action      string
		integration string
		risk        float64
		want        string
	}{
		{"login keyword", "User login succeeded", "", 0, "Login"},
		{"logout beats login substring", "user logout", "", 0, "Logout"},
		{"download", "Bulk file download", "", 0, "Download"},
		{"case insensitive", "FILE ACCESS GRANTED", "", 0, "Access"},
		{"edit maps to modify", "document edit", "", 0, "Modify"},
		{"integration fallback", "heartbeat ping", "Salesforce", 0, "Salesforce"},
		{"other fallback", "heartbeat ping", "", 0, "Other"},
		{"high risk suffix", "file download", "", 2000, "Download" + HighRiskSuffix},
		{"at threshold no suffix", "file download", "", testThreshold, "Download"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := rec("id", "u", tt.action, tt.integration, base, tt.risk)
			if got := Classify(&r, testThreshold); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.action, got, tt.want)
			}
		})
	}
}

func TestTokenHelpers(t *testing.T) {
	tok := "Download" + HighRiskSuffix
	if !IsHighRisk(tok) {
		t.Error("IsHighRisk should detect suffixed token")
	}
	if IsHighRisk("Download") {
		t.Error("IsHighRisk false positive")
	}
	if BaseToken(tok) != "Download" {
		t.Errorf("BaseToken = %q, want Download", BaseToken(tok))
	}
}

func TestSequencesChronological(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	records := []record.ActivityRecord{
		rec("3", "alice", "file download", "", base.Add(2*time.Hour), 0),
		rec("1", "alice", "user login", "", base, 0),
		rec("2", "alice", "file access", "", base.Add(time.Hour), 0),
	}

	seqs := Sequences(records, testThreshold)
	got := seqs["alice"]
	want := []string{"Login", "Access", "Download"}
	if len(got) != len(want) {
		t.Fatalf("sequence length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFeatures(t *testing.T) {
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	// 4 records over 2 calendar days, hours 8, 8, 10, 10.
	records := []record.ActivityRecord{
		rec("1", "bob", "login", "okta", base.Add(8*time.Hour), 100),
		rec("2", "bob", "file access", "drive", base.Add(10*time.Hour), 300),
		rec("3", "bob", "file download", "drive", base.Add(32*time.Hour), 2000),
		rec("4", "bob", "share link", "slack", base.Add(34*time.Hour), 0),
	}
	records[3].Breaches = []string{"dlp"}

	fvs := Features(records, testThreshold)
	fv, ok := fvs["bob"]
	if !ok {
		t.Fatal("missing feature vector for bob")
	}

	if fv.RecordCount != 4 {
		t.Errorf("RecordCount = %d, want 4", fv.RecordCount)
	}
	if got, want := fv.AvgRisk, 600.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("AvgRisk = %v, want %v", got, want)
	}
	if fv.BreachCount != 1 {
		t.Errorf("BreachCount = %v, want 1", fv.BreachCount)
	}
	if fv.HighRiskCount != 1 {
		t.Errorf("HighRiskCount = %v, want 1", fv.HighRiskCount)
	}
	if fv.IntegrationCount != 3 {
		t.Errorf("IntegrationCount = %v, want 3", fv.IntegrationCount)
	}
	// Hours 8, 10, 8, 10: mean 9, variance 1.
	if got, want := fv.HourVariance, 1.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("HourVariance = %v, want %v", got, want)
	}
	// 4 records over 2 active days.
	if got, want := fv.Velocity, 2.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("Velocity = %v, want %v", got, want)
	}
}

func TestPopulationVariance(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"single", []float64{5}, 0},
		{"constant", []float64{3, 3, 3}, 0},
		{"simple", []float64{2, 4}, 1},
		{"wider", []float64{1, 2, 3, 4, 5}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := populationVariance(tt.values); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("populationVariance(%v) = %v, want %v", tt.values, got, tt.want)
			}
		})
	}
}
