package mining

import (
	"sort"

	"riskscope/pkg/extract"
)

// MinPatternLength is the shortest sequence worth reporting.
const MinPatternLength = 3

// minRecordsForMining is the smallest working set a mining run accepts.
const minRecordsForMining = 10

// Step is one position in a mined pattern.
type Step struct {
	// Token is the action token at this position, high-risk suffix included.
	Token string `json:"token"`

	// Support is the observation count backing this step: the token's total
	// count for the first step, the incoming transition count otherwise.
	Support int `json:"support"`

	// HighRisk marks steps whose token carried the high-risk suffix.
	HighRisk bool `json:"high_risk"`
}

// Pattern is a mined action sequence.
type Pattern struct {
	Steps []Step `json:"steps"`

	// Support is the total support across all steps.
	Support int `json:"support"`

	// HighRisk is set when the pattern has at least two high-risk steps or
	// matches a known risky shape such as Login → Access → Download.
	HighRisk bool `json:"high_risk"`
}

// Options bound a mining run. All fields must be positive.
type Options struct {
	// MinSupport is the minimum observation count for a token to seed a
	// pattern and for a transition to extend one.
	MinSupport int

	// MaxDepth caps the number of greedy extension steps per candidate.
	MaxDepth int

	// TopK caps the number of returned patterns.
	TopK int
}

// DefaultOptions returns the miner defaults.
func DefaultOptions() Options {
	return Options{MinSupport: 3, MaxDepth: 5, TopK: 10}
}

// Mine discovers frequent action sequences across all actor sequences.
//
// Candidates are generated by starting at every token with total count ≥
// MinSupport and greedily following the highest-count outgoing transition
// until the next transition drops below MinSupport, no transition exists, or
// MaxDepth extensions were taken. Candidates shorter than MinPatternLength
// are discarded. High-risk patterns rank first, then higher support, then
// earlier first-observed start token.
//
// A working set of fewer than minRecordsForMining records, or one where no
// actor has at least MinPatternLength chronological records, yields an empty
// (non-nil-error) result; substituting placeholder patterns for an empty UI
// is the caller's concern.
func Mine(sequences map[string][]string, opts Options) []Pattern {
	if opts.MinSupport <= 0 {
		opts.MinSupport = 1
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultOptions().MaxDepth
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}

	if !minable(sequences) {
		return []Pattern{}
	}

	model := BuildModel(sequences)

	var patterns []Pattern
	for _, start := range model.Tokens() {
		if model.Total(start) < opts.MinSupport {
			continue
		}
		steps := walk(model, start, opts)
		if len(steps) < MinPatternLength {
			continue
		}
		patterns = append(patterns, buildPattern(steps))
	}

	rank(patterns, model)

	if len(patterns) > opts.TopK {
		patterns = patterns[:opts.TopK]
	}
	return patterns
}

func minable(sequences map[string][]string) bool {
	total := 0
	longEnough := false
	for _, seq := range sequences {
		total += len(seq)
		if len(seq) >= MinPatternLength {
			longEnough = true
		}
	}
	return total >= minRecordsForMining && longEnough
}

// walk follows the single best transition from start, up to MaxDepth
// extensions, stopping below MinSupport.
func walk(model *Model, start string, opts Options) []Step {
	steps := []Step{{
		Token:    start,
		Support:  model.Total(start),
		HighRisk: extract.IsHighRisk(start),
	}}

	current := start
	for depth := 0; depth < opts.MaxDepth; depth++ {
		next, count, ok := model.BestTransition(current)
		if !ok || count < opts.MinSupport {
			break
		}
		steps = append(steps, Step{
			Token:    next,
			Support:  count,
			HighRisk: extract.IsHighRisk(next),
		})
		current = next
	}
	return steps
}

func buildPattern(steps []Step) Pattern {
	p := Pattern{Steps: steps}
	riskySteps := 0
	for _, s := range steps {
		p.Support += s.Support
		if s.HighRisk {
			riskySteps++
		}
	}
	p.HighRisk = riskySteps >= 2 || matchesRiskyShape(steps)
	return p
}

// riskyShapes are ordered subsequences of base tokens that are suspicious
// regardless of individual step risk, such as an exfiltration funnel:
// establish a session, locate data, move it out.
var riskyShapes = [][][]string{
	{{"Login"}, {"Access", "View"}, {"Download", "Share", "Upload"}},
	{{"Access", "View"}, {"Download"}, {"Share", "Upload"}},
}

// matchesRiskyShape reports whether the pattern's base tokens contain one of
// the risky shapes as an ordered subsequence.
func matchesRiskyShape(steps []Step) bool {
	base := make([]string, len(steps))
	for i, s := range steps {
		base[i] = extract.BaseToken(s.Token)
	}

	for _, shape := range riskyShapes {
		pos := 0
		for _, token := range base {
			if containsToken(shape[pos], token) {
				pos++
				if pos == len(shape) {
					break
				}
			}
		}
		if pos == len(shape) {
			return true
		}
	}
	return false
}

func containsToken(set []string, token string) bool {
	for _, t := range set {
		if t == token {
			return true
		}
	}
	return false
}

// rank orders patterns high-risk first, then by support descending, then by
// the discovery index of the start token. The sort is stable over generation
// order, which is itself discovery order, so equal keys cannot reorder
// between runs.
func rank(patterns []Pattern, model *Model) {
	sort.SliceStable(patterns, func(i, j int) bool {
		a, b := patterns[i], patterns[j]
		if a.HighRisk != b.HighRisk {
			return a.HighRisk
		}
		if a.Support != b.Support {
			return a.Support > b.Support
		}
		return model.DiscoveryIndex(a.Steps[0].Token) < model.DiscoveryIndex(b.Steps[0].Token)
	})
}
