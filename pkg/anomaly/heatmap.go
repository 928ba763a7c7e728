package anomaly

import (
	"sort"

	"riskscope/pkg/record"
)

// Cell aggregates risk for one day-of-week/hour-of-day slot (UTC).
type Cell struct {
	Count     int     `json:"count"`
	TotalRisk float64 `json:"total_risk"`
	MaxRisk   float64 `json:"max_risk"`
}

// ActorHeat ranks one actor's contribution to the heatmap.
type ActorHeat struct {
	Actor     string  `json:"actor"`
	Count     int     `json:"count"`
	TotalRisk float64 `json:"total_risk"`
}

// Heatmap is the day-of-week × hour-of-day risk matrix plus the actors
// contributing the most risk.
type Heatmap struct {
	// Cells is indexed [weekday][hour], Sunday first, hours in UTC.
	Cells [7][24]Cell `json:"cells"`

	// TopActors lists the heaviest contributors, highest total risk first.
	TopActors []ActorHeat `json:"top_actors"`
}

// AvgRisk returns a cell's mean risk, 0 for empty cells.
func (c Cell) AvgRisk() float64 {
	if c.Count == 0 {
		return 0
	}
	return c.TotalRisk / float64(c.Count)
}

// BuildHeatmap aggregates the working set into the heatmap. topN bounds the
// actor ranking; ties resolve by actor name.
func BuildHeatmap(records []record.ActivityRecord, topN int) Heatmap {
	var hm Heatmap
	byActor := make(map[string]*ActorHeat)

	for i := range records {
		r := &records[i]
		ts := r.Timestamp.UTC()
		cell := &hm.Cells[int(ts.Weekday())][ts.Hour()]
		cell.Count++
		cell.TotalRisk += r.RiskScore
		if r.RiskScore > cell.MaxRisk {
			cell.MaxRisk = r.RiskScore
		}

		heat := byActor[r.Actor]
		if heat == nil {
			heat = &ActorHeat{Actor: r.Actor}
			byActor[r.Actor] = heat
		}
		heat.Count++
		heat.TotalRisk += r.RiskScore
	}

	for _, heat := range byActor {
		hm.TopActors = append(hm.TopActors, *heat)
	}
	sort.Slice(hm.TopActors, func(i, j int) bool {
		a, b := hm.TopActors[i], hm.TopActors[j]
		if a.TotalRisk != b.TotalRisk {
			return a.TotalRisk > b.TotalRisk
		}
		return a.Actor < b.Actor
	})
	if topN > 0 && len(hm.TopActors) > topN {
		hm.TopActors = hm.TopActors[:topN]
	}
	return hm
}
