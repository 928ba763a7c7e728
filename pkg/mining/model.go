// Package mining extracts frequent and risky action sequences from per-actor
// token sequences.
//
// The miner builds a transition model (Markov-style token → next-token
// counts) over every sequence, then walks the highest-count transitions to
// produce bounded-length candidate patterns. Token discovery order is tracked
// explicitly so that ranking ties resolve the same way on every run.
package mining

import "sort"

// Model holds transition counts built fresh for one mining run.
type Model struct {
	transitions map[string]map[string]int
	totals      map[string]int

	// order records each token the first time it is seen. All iteration that
	// could affect output happens in this order, never in map order.
	order    []string
	orderIdx map[string]int
}

// NewModel returns an empty transition model.
func NewModel() *Model {
	return &Model{
		transitions: make(map[string]map[string]int),
		totals:      make(map[string]int),
		orderIdx:    make(map[string]int),
	}
}

// BuildModel counts token occurrences and consecutive-token transitions
// across all sequences. Actors are visited in sorted order so discovery order
// is a pure function of the input.
func BuildModel(sequences map[string][]string) *Model {
	m := NewModel()

	actors := make([]string, 0, len(sequences))
	for actor := range sequences {
		actors = append(actors, actor)
	}
	sort.Strings(actors)

	for _, actor := range actors {
		seq := sequences[actor]
		for i, token := range seq {
			m.observe(token)
			if i+1 < len(seq) {
				m.observeTransition(token, seq[i+1])
			}
		}
	}
	return m
}

func (m *Model) observe(token string) {
	if _, seen := m.orderIdx[token]; !seen {
		m.orderIdx[token] = len(m.order)
		m.order = append(m.order, token)
	}
	m.totals[token]++
}

func (m *Model) observeTransition(from, to string) {
	next := m.transitions[from]
	if next == nil {
		next = make(map[string]int)
		m.transitions[from] = next
	}
	next[to]++
}

// Total returns how many times token was observed.
func (m *Model) Total(token string) int {
	return m.totals[token]
}

// Tokens returns all tokens in discovery order.
func (m *Model) Tokens() []string {
	return m.order
}

// DiscoveryIndex returns the position at which token was first observed,
// or -1 for unknown tokens.
func (m *Model) DiscoveryIndex(token string) int {
	if idx, ok := m.orderIdx[token]; ok {
		return idx
	}
	return -1
}

// BestTransition returns the highest-count outgoing transition from token.
// Count ties resolve to the earliest-discovered successor. Returns ok=false
// when the token has no outgoing transitions.
func (m *Model) BestTransition(token string) (next string, count int, ok bool) {
	successors := m.transitions[token]
	if len(successors) == 0 {
		return "", 0, false
	}

	bestIdx := -1
	for candidate, c := range successors {
		idx := m.orderIdx[candidate]
		if c > count || (c == count && (bestIdx == -1 || idx < bestIdx)) {
			next, count, bestIdx = candidate, c, idx
		}
	}
	return next, count, true
}
