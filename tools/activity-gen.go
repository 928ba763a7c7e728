// activity-gen generates synthetic activity records for exercising the
// analytics pipeline without access to real ingestion data.
//
// Usage:
//
//	go run tools/activity-gen.go -output records.json -actors 20 -count 50
//	go run tools/activity-gen.go -output records.json -profile exfiltration
//	go run tools/activity-gen.go -list
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"riskscope/pkg/record"
)

// BehaviorProfile defines parameters for simulating one kind of actor.
type BehaviorProfile struct {
	Name        string
	Description string

	// Actions cycles through the action texts the actor performs.
	Actions []string

	// MeanRisk and RiskStdDev shape the risk score distribution.
	MeanRisk   float64
	RiskStdDev float64

	// SpikeProbability is the chance a record gets a high-risk spike.
	SpikeProbability float64
	SpikeRisk        float64

	// BreachProbability is the chance a record carries a policy breach.
	BreachProbability float64
	BreachKinds       []string

	// WorkStartHour and WorkEndHour bound the actor's usual activity
	// window; OffHoursProbability lets records escape it.
	WorkStartHour       int
	WorkEndHour         int
	OffHoursProbability float64

	// MeanGapMinutes is the typical spacing between records.
	MeanGapMinutes float64
}

var profiles = map[string]BehaviorProfile{
	"normal": {
		Name:           "Normal Office Worker",
		Description:    "Regular hours, low risk, occasional file activity",
		Actions:        []string{"user login", "file access", "view report", "edit document", "user logout"},
		MeanRisk:       250,
		RiskStdDev:     150,
		WorkStartHour:  9,
		WorkEndHour:    17,
		MeanGapMinutes: 25,
	},
	"power-user": {
		Name:           "Power User",
		Description:    "High volume across many channels, moderate risk",
		Actions:        []string{"user login", "file access", "create document", "share internally", "upload asset", "edit document"},
		MeanRisk:       450,
		RiskStdDev:     250,
		WorkStartHour:  8,
		WorkEndHour:    19,
		MeanGapMinutes: 8,
	},
	"exfiltration": {
		Name:              "Exfiltration Pattern",
		Description:       "Login, access, bulk download cycles with risk spikes",
		Actions:           []string{"user login", "file access", "bulk download"},
		MeanRisk:          600,
		RiskStdDev:        300,
		SpikeProbability:  0.3,
		SpikeRisk:         2200,
		BreachProbability: 0.2,
		BreachKinds:       []string{"dlp", "volume"},
		WorkStartHour:     9,
		WorkEndHour:       17,
		MeanGapMinutes:    10,
	},
	"night-shift": {
		Name:                "Irregular Hours",
		Description:         "Activity scattered around the clock",
		Actions:             []string{"user login", "file access", "modify settings", "view report"},
		MeanRisk:            350,
		RiskStdDev:          200,
		WorkStartHour:       0,
		WorkEndHour:         23,
		OffHoursProbability: 1,
		MeanGapMinutes:      40,
	},
	"policy-violator": {
		Name:              "Policy Violator",
		Description:       "Frequent breach flags, external sharing",
		Actions:           []string{"user login", "file access", "share externally", "upload asset"},
		MeanRisk:          900,
		RiskStdDev:        400,
		SpikeProbability:  0.1,
		SpikeRisk:         2600,
		BreachProbability: 0.45,
		BreachKinds:       []string{"sharing", "dlp", "retention"},
		WorkStartHour:     9,
		WorkEndHour:       18,
		MeanGapMinutes:    15,
	},
}

var integrations = []string{"drive", "email", "chat", "crm"}

func main() {
	var (
		outputPath   = flag.String("output", "records.json", "Output file path")
		actorCount   = flag.Int("actors", 10, "Number of actors to generate")
		perActor     = flag.Int("count", 50, "Records per actor")
		profileName  = flag.String("profile", "normal", "Behavior profile to use")
		seed         = flag.Int64("seed", 0, "Random seed; 0 = use current time")
		listProfiles = flag.Bool("list", false, "List available profiles")
	)
	flag.Parse()

	if *listProfiles {
		fmt.Println("Available profiles:")
		for name, p := range profiles {
			fmt.Printf("  %-18s %s\n", name, p.Description)
		}
		os.Exit(0)
	}

	profile, ok := profiles[*profileName]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown profile: %s\n", *profileName)
		fmt.Fprintf(os.Stderr, "Use -list to see available profiles\n")
		os.Exit(1)
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	fmt.Printf("Generating %d actors x %d records with profile: %s\n", *actorCount, *perActor, profile.Name)
	fmt.Printf("Random seed: %d\n", *seed)

	records := generateRecords(rng, profile, *actorCount, *perActor)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling records: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*outputPath, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %d records to %s\n", len(records), *outputPath)
	printStats(records)
}

func generateRecords(rng *rand.Rand, p BehaviorProfile, actors, perActor int) []record.ActivityRecord {
	base := time.Now().UTC().AddDate(0, 0, -14).Truncate(time.Hour)

	var out []record.ActivityRecord
	for a := 0; a < actors; a++ {
		actor := fmt.Sprintf("%s-%02d", profileSlug(p), a)
		ts := base.Add(time.Duration(rng.Intn(120)) * time.Minute)

		for i := 0; i < perActor; i++ {
			gap := time.Duration(rng.ExpFloat64()*p.MeanGapMinutes) * time.Minute
			ts = ts.Add(gap)
			ts = intoWorkWindow(rng, ts, p)

			risk := p.MeanRisk + rng.NormFloat64()*p.RiskStdDev
			if risk < 0 {
				risk = 0
			}
			if p.SpikeProbability > 0 && rng.Float64() < p.SpikeProbability {
				risk = p.SpikeRisk + rng.NormFloat64()*200
			}

			var breaches []string
			if p.BreachProbability > 0 && rng.Float64() < p.BreachProbability {
				breaches = []string{p.BreachKinds[rng.Intn(len(p.BreachKinds))]}
			}

			out = append(out, record.ActivityRecord{
				ID:          fmt.Sprintf("%s-%05d", actor, i),
				Actor:       actor,
				Timestamp:   ts,
				Action:      p.Actions[i%len(p.Actions)],
				Integration: integrations[rng.Intn(len(integrations))],
				RiskScore:   risk,
				Breaches:    breaches,
			})
		}
	}
	return out
}

// intoWorkWindow moves a timestamp into the profile's working hours unless
// the profile allows off-hours activity.
func intoWorkWindow(rng *rand.Rand, ts time.Time, p BehaviorProfile) time.Time {
	if p.OffHoursProbability > 0 && rng.Float64() < p.OffHoursProbability {
		return ts
	}
	hour := ts.Hour()
	if hour >= p.WorkStartHour && hour <= p.WorkEndHour {
		return ts
	}
	span := p.WorkEndHour - p.WorkStartHour
	if span < 1 {
		span = 1
	}
	target := p.WorkStartHour + rng.Intn(span)
	return time.Date(ts.Year(), ts.Month(), ts.Day(), target, ts.Minute(), ts.Second(), 0, time.UTC)
}

func profileSlug(p BehaviorProfile) string {
	for name, candidate := range profiles {
		if candidate.Name == p.Name {
			return name
		}
	}
	return "actor"
}

func printStats(records []record.ActivityRecord) {
	if len(records) == 0 {
		return
	}
	var total, max float64
	breaches := 0
	for _, r := range records {
		total += r.RiskScore
		if r.RiskScore > max {
			max = r.RiskScore
		}
		if len(r.Breaches) > 0 {
			breaches++
		}
	}
	fmt.Printf("Mean risk: %.0f  Max risk: %.0f  Breach records: %d\n",
		total/float64(len(records)), max, breaches)
}
