// Package anomaly produces the two aggregate views the pipeline computes
// before mining and clustering: a chronological anomaly timeline and a
// day-by-hour risk heatmap.
//
// Anomalies are scored against each actor's own risk baseline with a simple
// z-score heuristic. Actors with too few records for a stable baseline are
// only checked against the absolute high-risk threshold.
package anomaly

import (
	"fmt"
	"math"
	"sort"
	"time"

	"riskscope/pkg/record"
)

// MinEventsForBaseline is how many records an actor needs before deviation
// from their own mean is meaningful.
const MinEventsForBaseline = 5

// Severity levels for anomaly events.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Options configure timeline detection.
type Options struct {
	// HighRiskThreshold flags any record above this absolute score,
	// regardless of the actor's baseline. Scale is source-defined.
	HighRiskThreshold float64

	// DeviationSigma is the z-score at which a record becomes anomalous
	// relative to the actor's baseline. Zero means the default of 2.
	DeviationSigma float64
}

// Event is one entry on the anomaly timeline.
type Event struct {
	RecordID  string    `json:"record_id"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	RiskScore float64   `json:"risk_score"`

	// Baseline is the actor's mean risk over the working set.
	Baseline float64 `json:"baseline"`

	// Deviation is how many of the actor's standard deviations the record
	// sits above its baseline. Zero when the actor has no stable baseline.
	Deviation float64 `json:"deviation"`

	Severity string `json:"severity"`
	Reason   string `json:"reason"`
}

// Timeline flags anomalous records and returns them in chronological order,
// ties broken by record ID so repeated runs agree.
func Timeline(records []record.ActivityRecord, opts Options) []Event {
	sigma := opts.DeviationSigma
	if sigma <= 0 {
		sigma = 2
	}

	var events []Event
	for actor, group := range record.GroupByActor(records) {
		mean, stddev := riskStats(group)
		stable := len(group) >= MinEventsForBaseline && stddev > 0

		for i := range group {
			r := &group[i]
			deviation := 0.0
			if stable {
				deviation = (r.RiskScore - mean) / stddev
			}

			switch {
			case stable && deviation >= sigma:
				events = append(events, Event{
					RecordID:  r.ID,
					Actor:     actor,
					Timestamp: r.Timestamp,
					RiskScore: r.RiskScore,
					Baseline:  mean,
					Deviation: deviation,
					Severity:  deviationSeverity(deviation),
					Reason:    fmt.Sprintf("risk %.0f is %.1f standard deviations above the actor baseline %.0f", r.RiskScore, deviation, mean),
				})
			case r.RiskScore > opts.HighRiskThreshold:
				events = append(events, Event{
					RecordID:  r.ID,
					Actor:     actor,
					Timestamp: r.Timestamp,
					RiskScore: r.RiskScore,
					Baseline:  mean,
					Deviation: deviation,
					Severity:  SeverityHigh,
					Reason:    fmt.Sprintf("risk %.0f exceeds the high-risk threshold %.0f", r.RiskScore, opts.HighRiskThreshold),
				})
			}
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].RecordID < events[j].RecordID
		}
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events
}

func riskStats(group []record.ActivityRecord) (mean, stddev float64) {
	if len(group) == 0 {
		return 0, 0
	}
	var sum float64
	for i := range group {
		sum += group[i].RiskScore
	}
	mean = sum / float64(len(group))

	var sq float64
	for i := range group {
		d := group[i].RiskScore - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(group)))
}

func deviationSeverity(deviation float64) string {
	switch {
	case deviation >= 3:
		return SeverityHigh
	case deviation >= 2:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
