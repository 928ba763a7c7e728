package mining

import (
	"reflect"
	"testing"

	"riskscope/pkg/extract"
)

// repeat builds a sequence by cycling through tokens until n entries exist.
func repeat(tokens []string, n int) []string {
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = tokens[i%len(tokens)]
	}
	return out
}

func TestBuildModelCounts(t *testing.T) {
	seqs := map[string][]string{
		"alice": {"Login", "Access", "Download"},
		"bob":   {"Login", "Access"},
	}
	m := BuildModel(seqs)

	if got := m.Total("Login"); got != 2 {
		t.Errorf("Total(Login) = %d, want 2", got)
	}
	if got := m.Total("Access"); got != 2 {
		t.Errorf("Total(Access) = %d, want 2", got)
	}
	next, count, ok := m.BestTransition("Login")
	if !ok || next != "Access" || count != 2 {
		t.Errorf("BestTransition(Login) = %q,%d,%v, want Access,2,true", next, count, ok)
	}
	if _, _, ok := m.BestTransition("Download"); ok {
		t.Error("Download should have no outgoing transitions")
	}
}

func TestBuildModelDiscoveryOrderIsDeterministic(t *testing.T) {
	seqs := map[string][]string{
		"zed":   {"Delete", "Share"},
		"alice": {"Login", "Access"},
	}
	// Actors are visited sorted, so alice's tokens come first.
	m := BuildModel(seqs)
	want := []string{"Login", "Access", "Delete", "Share"}
	if !reflect.DeepEqual(m.Tokens(), want) {
		t.Errorf("Tokens() = %v, want %v", m.Tokens(), want)
	}
}

func TestBestTransitionTieBreaksByDiscoveryOrder(t *testing.T) {
	seqs := map[string][]string{
		"a": {"Login", "Access", "Login", "View"},
	}
	m := BuildModel(seqs)
	// Login → Access and Login → View both have count 1; Access was
	// discovered first.
	next, _, ok := m.BestTransition("Login")
	if !ok || next != "Access" {
		t.Errorf("BestTransition(Login) = %q, want Access", next)
	}
}

func TestMineHighRiskExfiltrationFunnel(t *testing.T) {
	// 12 records alternating Login/Access/Download with every download above
	// the high-risk threshold.
	downloadRisky := "Download" + extract.HighRiskSuffix
	seqs := map[string][]string{
		"alice": repeat([]string{"Login", "Access", downloadRisky}, 12),
	}

	patterns := Mine(seqs, Options{MinSupport: 4, MaxDepth: 5, TopK: 10})
	if len(patterns) == 0 {
		t.Fatal("expected at least one pattern")
	}

	found := false
	for _, p := range patterns {
		if len(p.Steps) != 3 {
			continue
		}
		if p.Steps[0].Token == "Login" && p.Steps[1].Token == "Access" && p.Steps[2].Token == downloadRisky {
			found = true
			if !p.HighRisk {
				t.Error("Login→Access→Download pattern should be high risk")
			}
			for i, s := range p.Steps {
				if s.Support < 4 {
					t.Errorf("step %d support = %d, want >= 4", i, s.Support)
				}
			}
		}
	}
	if !found {
		t.Errorf("Login→Access→Download pattern not mined; got %+v", patterns)
	}
}

func TestMinePatternContract(t *testing.T) {
	seqs := map[string][]string{
		"u1": repeat([]string{"Login", "View", "Modify", "Logout"}, 16),
		"u2": repeat([]string{"Login", "View", "Share"}, 9),
	}
	opts := Options{MinSupport: 3, MaxDepth: 4, TopK: 10}
	patterns := Mine(seqs, opts)

	for _, p := range patterns {
		if len(p.Steps) < MinPatternLength {
			t.Errorf("pattern of length %d violates minimum %d", len(p.Steps), MinPatternLength)
		}
		for i, s := range p.Steps {
			if s.Support < opts.MinSupport {
				t.Errorf("step %d support %d below MinSupport %d", i, s.Support, opts.MinSupport)
			}
		}
	}
}

func TestMineDeterminism(t *testing.T) {
	seqs := map[string][]string{
		"u1": repeat([]string{"Login", "Access", "Download", "Logout"}, 20),
		"u2": repeat([]string{"Login", "View", "Share"}, 15),
		"u3": repeat([]string{"Create", "Modify", "Delete"}, 12),
	}
	opts := Options{MinSupport: 3, MaxDepth: 5, TopK: 10}

	first := Mine(seqs, opts)
	for i := 0; i < 10; i++ {
		again := Mine(seqs, opts)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differed:\nfirst = %+v\nagain = %+v", i, first, again)
		}
	}
}

func TestMineRanksHighRiskFirst(t *testing.T) {
	risky := "Download" + extract.HighRiskSuffix
	seqs := map[string][]string{
		// Very frequent but benign path.
		"u1": repeat([]string{"Login", "View", "Logout"}, 60),
		// Less frequent but risky path.
		"u2": repeat([]string{"Access" + extract.HighRiskSuffix, "Modify", risky}, 12),
	}
	patterns := Mine(seqs, Options{MinSupport: 3, MaxDepth: 5, TopK: 10})
	if len(patterns) < 2 {
		t.Fatalf("expected at least 2 patterns, got %d", len(patterns))
	}
	if !patterns[0].HighRisk {
		t.Errorf("first-ranked pattern should be high risk, got %+v", patterns[0])
	}
}

func TestMineInsufficientData(t *testing.T) {
	tests := []struct {
		name string
		seqs map[string][]string
	}{
		{"empty", map[string][]string{}},
		{"under 10 records", map[string][]string{
			"u1": {"Login", "Access", "Download", "Logout"},
		}},
		{"no sequence of length 3", map[string][]string{
			"u1": repeat([]string{"Login", "Logout"}, 2),
			"u2": repeat([]string{"Login", "Logout"}, 2),
			"u3": repeat([]string{"Login", "Logout"}, 2),
			"u4": repeat([]string{"Login", "Logout"}, 2),
			"u5": repeat([]string{"Login", "Logout"}, 2),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Mine(tt.seqs, DefaultOptions())
			if len(got) != 0 {
				t.Errorf("Mine() = %+v, want empty result", got)
			}
		})
	}
}

func TestMineTopKTruncation(t *testing.T) {
	seqs := map[string][]string{
		"u1": repeat([]string{"Login", "Access", "Download", "View", "Modify", "Share", "Logout"}, 70),
	}
	patterns := Mine(seqs, Options{MinSupport: 2, MaxDepth: 6, TopK: 2})
	if len(patterns) > 2 {
		t.Errorf("got %d patterns, want at most 2", len(patterns))
	}
}

func TestMatchesRiskyShape(t *testing.T) {
	step := func(tok string) Step { return Step{Token: tok} }

	tests := []struct {
		name  string
		steps []Step
		want  bool
	}{
		{
			name:  "login access download",
			steps: []Step{step("Login"), step("Access"), step("Download")},
			want:  true,
		},
		{
			name:  "login view share with noise",
			steps: []Step{step("Login"), step("Logout"), step("View"), step("Share")},
			want:  true,
		},
		{
			name:  "view download upload",
			steps: []Step{step("View"), step("Download"), step("Upload")},
			want:  true,
		},
		{
			name:  "benign browsing",
			steps: []Step{step("Login"), step("View"), step("Logout")},
			want:  false,
		},
		{
			name:  "wrong order",
			steps: []Step{step("Download"), step("Access"), step("Login")},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesRiskyShape(tt.steps); got != tt.want {
				t.Errorf("matchesRiskyShape(%v) = %v, want %v", tt.steps, got, tt.want)
			}
		})
	}
}
