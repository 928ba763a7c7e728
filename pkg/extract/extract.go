// Package extract turns a working set of activity records into the two
// per-actor shapes the analytics consume: chronological action-token
// sequences and numeric feature vectors.
//
// Extraction is a pure function of its input and the configured high-risk
// threshold; it holds no state between runs.
package extract

import (
	"strings"

	"riskscope/pkg/record"
)

// HighRiskSuffix marks a token whose source record exceeded the configured
// high-risk threshold.
const HighRiskSuffix = "!"

// tokenRules maps action-text keywords to canonical tokens, checked in order.
// Earlier rules win so that "login" never falls through to "log".
var tokenRules = []struct {
	keyword string
	token   string
}{
	{"logout", "Logout"},
	{"login", "Login"},
	{"log in", "Login"},
	{"sign in", "Login"},
	{"sign out", "Logout"},
	{"download", "Download"},
	{"upload", "Upload"},
	{"access", "Access"},
	{"view", "View"},
	{"modify", "Modify"},
	{"edit", "Modify"},
	{"create", "Create"},
	{"delete", "Delete"},
	{"remove", "Delete"},
	{"share", "Share"},
}

// Classify maps one record to its action token. The action text is matched
// against the keyword rules first; records that match nothing fall back to
// their integration channel name, then to "Other". Records whose risk score
// exceeds highRiskThreshold gain the high-risk suffix.
func Classify(r *record.ActivityRecord, highRiskThreshold float64) string {
	token := classifyAction(r)
	if r.RiskScore > highRiskThreshold {
		return token + HighRiskSuffix
	}
	return token
}

func classifyAction(r *record.ActivityRecord) string {
	action := strings.ToLower(r.Action)
	for _, rule := range tokenRules {
		if strings.Contains(action, rule.keyword) {
			return rule.token
		}
	}
	if r.Integration != "" {
		return r.Integration
	}
	return "Other"
}

// IsHighRisk reports whether a token carries the high-risk suffix.
func IsHighRisk(token string) bool {
	return strings.HasSuffix(token, HighRiskSuffix)
}

// BaseToken strips the high-risk suffix, if present.
func BaseToken(token string) string {
	return strings.TrimSuffix(token, HighRiskSuffix)
}

// Sequences builds the per-actor token sequence map. Each sequence is ordered
// by timestamp ascending with ingestion order breaking ties, matching the
// ordering contract the miner depends on.
func Sequences(records []record.ActivityRecord, highRiskThreshold float64) map[string][]string {
	groups := record.GroupByActor(records)
	out := make(map[string][]string, len(groups))
	for actor, group := range groups {
		seq := make([]string, len(group))
		for i := range group {
			seq[i] = Classify(&group[i], highRiskThreshold)
		}
		out[actor] = seq
	}
	return out
}
