package extract

import (
	"riskscope/pkg/record"
)

// FeatureNames lists the feature vector components in index order.
var FeatureNames = []string{
	"avg_risk",
	"breach_count",
	"high_risk_count",
	"integration_count",
	"hour_variance",
	"velocity",
}

// Feature vector component indexes.
const (
	FeatureAvgRisk = iota
	FeatureBreachCount
	FeatureHighRiskCount
	FeatureIntegrationCount
	FeatureHourVariance
	FeatureVelocity
	FeatureDim
)

// FeatureVector summarizes one actor's behavior over the working set.
type FeatureVector struct {
	Actor string

	// AvgRisk is the mean risk score across the actor's records.
	AvgRisk float64

	// BreachCount is the number of records carrying at least one policy breach.
	BreachCount float64

	// HighRiskCount is the number of records above the high-risk threshold.
	HighRiskCount float64

	// IntegrationCount is the number of distinct integration channels used.
	IntegrationCount float64

	// HourVariance is the population variance of the hour-of-day (UTC) at
	// which the actor's records occurred.
	HourVariance float64

	// Velocity is records per active day: record count divided by the number
	// of distinct calendar dates with at least one record.
	Velocity float64

	// RecordCount is how many records contributed to this vector. Vectors
	// built from too few records are excluded from clustering by the caller.
	RecordCount int
}

// Values returns the vector's numeric components in FeatureNames order.
func (fv *FeatureVector) Values() []float64 {
	return []float64{
		fv.AvgRisk,
		fv.BreachCount,
		fv.HighRiskCount,
		fv.IntegrationCount,
		fv.HourVariance,
		fv.Velocity,
	}
}

// Features computes one FeatureVector per actor.
func Features(records []record.ActivityRecord, highRiskThreshold float64) map[string]FeatureVector {
	groups := record.GroupByActor(records)
	out := make(map[string]FeatureVector, len(groups))

	for actor, group := range groups {
		fv := FeatureVector{Actor: actor, RecordCount: len(group)}

		integrations := make(map[string]struct{})
		days := make(map[string]struct{})
		hours := make([]float64, 0, len(group))
		var totalRisk float64

		for i := range group {
			r := &group[i]
			totalRisk += r.RiskScore
			if r.HasBreach() {
				fv.BreachCount++
			}
			if r.RiskScore > highRiskThreshold {
				fv.HighRiskCount++
			}
			if r.Integration != "" {
				integrations[r.Integration] = struct{}{}
			}
			days[r.Timestamp.UTC().Format("2006-01-02")] = struct{}{}
			hours = append(hours, float64(r.Timestamp.UTC().Hour()))
		}

		if len(group) > 0 {
			fv.AvgRisk = totalRisk / float64(len(group))
		}
		fv.IntegrationCount = float64(len(integrations))
		fv.HourVariance = populationVariance(hours)
		if len(days) > 0 {
			fv.Velocity = float64(len(group)) / float64(len(days))
		}

		out[actor] = fv
	}
	return out
}

// populationVariance returns sum((x-mean)^2)/n, 0 for empty input.
func populationVariance(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return sq / float64(n)
}
