package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"riskscope/pkg/adaptive"
	"riskscope/pkg/anomaly"
	"riskscope/pkg/cluster"
	"riskscope/pkg/extract"
	"riskscope/pkg/logging"
	"riskscope/pkg/mining"
	"riskscope/pkg/record"
)

// eventBuffer sizes the subscription channel. Progress events stop being
// queued at progressHighWater so the bounded set of status, partial, error
// and completion events always has room, which keeps inline jobs from
// blocking on their own stream.
const (
	eventBuffer       = 256
	progressHighWater = eventBuffer - 32
)

var errCancelled = errors.New("job cancelled")

// Results accumulates the four phase outputs. Safe to read once the job is
// terminal.
type Results struct {
	Timeline []anomaly.Event  `json:"timeline"`
	Heatmap  anomaly.Heatmap  `json:"heatmap"`
	Patterns []mining.Pattern `json:"patterns"`
	Clusters cluster.Result   `json:"clusters"`
}

// Job is one scheduled run over a working set. Phase results stream out on
// Events; Cancel stops the run at the next chunk boundary.
type Job struct {
	id    uuid.UUID
	tuner *adaptive.Tuner
	log   *logging.Logger
	exec  ExecutionContext
	opts  Options
	input []record.ActivityRecord

	state   atomic.Int32
	stopped atomic.Bool
	events  chan Event
	done    chan struct{}

	mu      sync.Mutex
	results Results

	// Driver-only fields, never touched outside run.
	lastProgress time.Time
	phasesDone   float64
}

func newJob(p *Pipeline, records []record.ActivityRecord, opts Options, exec ExecutionContext) *Job {
	id := uuid.New()
	return &Job{
		id:     id,
		tuner:  p.tuner,
		log:    p.log.With("job_id", id.String()),
		exec:   exec,
		opts:   opts,
		input:  records,
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}
}

// ID returns the job identifier.
func (j *Job) ID() uuid.UUID { return j.id }

// State returns the current lifecycle state.
func (j *Job) State() State { return State(j.state.Load()) }

// Events returns the subscription stream. It is closed when the job reaches
// a terminal state.
func (j *Job) Events() <-chan Event { return j.events }

// Done is closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

// Results returns whatever phase outputs were produced. Call after Done.
func (j *Job) Results() Results {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.results
}

// Cancel requests cooperative cancellation. The job stops at the next chunk
// or phase boundary; partial results already emitted remain valid, nothing
// further is emitted.
func (j *Job) Cancel() {
	if j.stopped.CompareAndSwap(false, true) {
		j.log.Info("cancellation requested")
	}
}

func (j *Job) cancelled() bool { return j.stopped.Load() }

func (j *Job) setState(s State) { j.state.Store(int32(s)) }

func (j *Job) run() {
	start := time.Now()
	defer func() {
		close(j.done)
		close(j.events)
	}()

	j.setState(StateInitializing)
	working := record.Dedupe(j.input)
	if len(working) == 0 {
		j.setState(StateFailed)
		j.log.Warn("job failed: empty working set")
		j.emit(Event{Kind: EventError, Message: "empty working set: nothing to analyze"})
		return
	}

	actors := record.Actors(working)
	chunks := j.actorChunks(actors, record.GroupByActor(working))
	j.emitStatus(fmt.Sprintf("working set ready: %d records, %d actors", len(working), len(actors)))
	j.log.Info("job started", "records", len(working), "actors", len(actors), "chunks", len(chunks))

	for i, phase := range []Phase{PhaseAnomaly, PhaseHeatmap, PhaseSequences, PhaseClustering} {
		if j.cancelled() {
			j.finishCancelled()
			return
		}

		j.phasesDone = float64(i)
		j.setState(runningState(phase))
		j.emitStatus(phase.String() + " phase started")

		phaseStart := time.Now()
		partial, err := j.runPhase(phase, chunks)
		j.tuner.RecordSample(adaptive.Sample{
			Category: "pipeline." + phase.String(),
			Duration: time.Since(phaseStart),
			Success:  err == nil,
			DataSize: len(working),
		})

		if errors.Is(err, errCancelled) || j.cancelled() {
			j.finishCancelled()
			return
		}
		if err != nil {
			// A broken phase yields an empty view, never a failed job.
			j.log.Warn("phase failed, continuing with empty result",
				"phase", phase.String(), "error", err)
			j.emit(Event{Kind: EventError, Phase: phase, Message: err.Error()})
			partial = &Partial{Phase: phase}
		}

		j.storePartial(partial)
		j.emit(Event{Kind: EventPartial, Phase: phase, Partial: partial})
		j.emitStatus(phase.String() + " phase finished")
	}

	j.setState(StateCompleted)
	results := j.Results()
	stats := Stats{
		JobID:    j.id,
		Records:  len(working),
		Actors:   len(actors),
		Events:   len(results.Timeline),
		Patterns: len(results.Patterns),
		Clusters: len(results.Clusters.Clusters),
		Duration: time.Since(start),
	}
	j.log.Info("job completed",
		"events", stats.Events, "patterns", stats.Patterns,
		"clusters", stats.Clusters, "duration", stats.Duration)
	j.emit(Event{Kind: EventComplete, Stats: &stats})
}

func (j *Job) runPhase(phase Phase, chunks [][]record.ActivityRecord) (partial *Partial, err error) {
	defer func() {
		if r := recover(); r != nil {
			partial, err = nil, fmt.Errorf("%s phase panicked: %v", phase, r)
		}
	}()

	switch phase {
	case PhaseAnomaly:
		return j.runAnomaly(chunks)
	case PhaseHeatmap:
		return j.runHeatmap(chunks)
	case PhaseSequences:
		return j.runSequences(chunks)
	case PhaseClustering:
		return j.runClustering(chunks)
	default:
		return nil, fmt.Errorf("unknown phase %d", phase)
	}
}

func (j *Job) runAnomaly(chunks [][]record.ActivityRecord) (*Partial, error) {
	opts := anomaly.Options{
		HighRiskThreshold: j.opts.HighRiskThreshold,
		DeviationSigma:    j.opts.DeviationSigma,
	}

	var events []anomaly.Event
	for i, chunk := range chunks {
		if j.cancelled() {
			return nil, errCancelled
		}
		events = append(events, anomaly.Timeline(chunk, opts)...)
		j.progress(PhaseAnomaly, i+1, len(chunks))
		j.exec.Yield()
	}

	// Chunks are sorted internally; restore global chronological order.
	sort.Slice(events, func(a, b int) bool {
		if !events[a].Timestamp.Equal(events[b].Timestamp) {
			return events[a].Timestamp.Before(events[b].Timestamp)
		}
		return events[a].RecordID < events[b].RecordID
	})
	return &Partial{Phase: PhaseAnomaly, Timeline: events}, nil
}

func (j *Job) runHeatmap(chunks [][]record.ActivityRecord) (*Partial, error) {
	var hm anomaly.Heatmap
	for i, chunk := range chunks {
		if j.cancelled() {
			return nil, errCancelled
		}
		mergeHeatmap(&hm, anomaly.BuildHeatmap(chunk, 0))
		j.progress(PhaseHeatmap, i+1, len(chunks))
		j.exec.Yield()
	}

	sort.Slice(hm.TopActors, func(a, b int) bool {
		if hm.TopActors[a].TotalRisk != hm.TopActors[b].TotalRisk {
			return hm.TopActors[a].TotalRisk > hm.TopActors[b].TotalRisk
		}
		return hm.TopActors[a].Actor < hm.TopActors[b].Actor
	})
	if len(hm.TopActors) > j.opts.HeatmapTopActors {
		hm.TopActors = hm.TopActors[:j.opts.HeatmapTopActors]
	}
	return &Partial{Phase: PhaseHeatmap, Heatmap: &hm}, nil
}

func (j *Job) runSequences(chunks [][]record.ActivityRecord) (*Partial, error) {
	sequences := make(map[string][]string)
	for i, chunk := range chunks {
		if j.cancelled() {
			return nil, errCancelled
		}
		for actor, seq := range extract.Sequences(chunk, j.opts.HighRiskThreshold) {
			sequences[actor] = seq
		}
		j.progress(PhaseSequences, i+1, len(chunks))
		j.exec.Yield()
	}

	patterns := mining.Mine(sequences, j.opts.Mining)
	return &Partial{Phase: PhaseSequences, Patterns: patterns}, nil
}

func (j *Job) runClustering(chunks [][]record.ActivityRecord) (*Partial, error) {
	vectors := make(map[string]extract.FeatureVector)
	for i, chunk := range chunks {
		if j.cancelled() {
			return nil, errCancelled
		}
		for actor, vec := range extract.Features(chunk, j.opts.HighRiskThreshold) {
			vectors[actor] = vec
		}
		j.progress(PhaseClustering, i+1, len(chunks))
		j.exec.Yield()
	}

	result := cluster.Cluster(vectors, j.opts.ClusterCount, j.opts.Seed, j.opts.Naming)
	if result.InsufficientData {
		j.log.Info("clustering skipped: insufficient data",
			"actors", len(vectors), "k", j.opts.ClusterCount)
	}
	return &Partial{Phase: PhaseClustering, Clusters: &result}, nil
}

func (j *Job) finishCancelled() {
	j.setState(StateCancelled)
	j.log.Info("job cancelled")
}

// actorChunks partitions the working set into chunks of whole actor groups,
// sized by the tuner's batch parameter. A phase never sees part of an
// actor's history, so per-actor statistics stay exact.
func (j *Job) actorChunks(actors []string, groups map[string][]record.ActivityRecord) [][]record.ActivityRecord {
	batch := j.tuner.Params().BatchSize
	if batch < 1 {
		batch = 1
	}

	var chunks [][]record.ActivityRecord
	var current []record.ActivityRecord
	for _, actor := range actors {
		current = append(current, groups[actor]...)
		if len(current) >= batch {
			chunks = append(chunks, current)
			current = nil
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

func (j *Job) storePartial(p *Partial) {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch p.Phase {
	case PhaseAnomaly:
		j.results.Timeline = p.Timeline
	case PhaseHeatmap:
		if p.Heatmap != nil {
			j.results.Heatmap = *p.Heatmap
		}
	case PhaseSequences:
		j.results.Patterns = p.Patterns
	case PhaseClustering:
		if p.Clusters != nil {
			j.results.Clusters = *p.Clusters
		}
	}
}

// emit delivers a non-progress event. These are bounded per job and the
// buffer reserves room for them, so the send cannot block an inline run.
func (j *Job) emit(ev Event) {
	j.events <- ev
}

func (j *Job) emitStatus(message string) {
	j.emit(Event{Kind: EventStatus, Message: message})
}

// progress reports phase and overall fractions, throttled to the configured
// interval. Phase completion always reports. Progress is lossy: when the
// stream is backed up the event is dropped rather than stalling the run.
func (j *Job) progress(phase Phase, done, total int) {
	fraction := float64(done) / float64(total)
	now := time.Now()
	if fraction < 1 && now.Sub(j.lastProgress) < j.opts.ProgressInterval {
		return
	}
	j.lastProgress = now

	if len(j.events) >= progressHighWater {
		return
	}
	ev := Event{Kind: EventProgress, Progress: Progress{
		Phase:    phase,
		Fraction: fraction,
		Overall:  (j.phasesDone + fraction) / phaseCount,
	}}
	select {
	case j.events <- ev:
	default:
	}
}

func mergeHeatmap(dst *anomaly.Heatmap, src anomaly.Heatmap) {
	for d := range src.Cells {
		for h := range src.Cells[d] {
			cell := src.Cells[d][h]
			if cell.Count == 0 {
				continue
			}
			out := &dst.Cells[d][h]
			out.Count += cell.Count
			out.TotalRisk += cell.TotalRisk
			if cell.MaxRisk > out.MaxRisk {
				out.MaxRisk = cell.MaxRisk
			}
		}
	}
	// Chunks hold disjoint actor groups, so ranking entries never collide.
	dst.TopActors = append(dst.TopActors, src.TopActors...)
}
