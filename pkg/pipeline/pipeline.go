// Package pipeline schedules the four analytic phases over a working set:
// anomaly timeline, risk heatmap, sequence mining, and actor clustering.
//
// Phases run strictly in that order, never concurrently, because later
// phases consume the deduplicated view the run establishes up front. Each
// phase's result is emitted to the subscriber the moment the phase
// finishes. A failure inside one phase is downgraded to an empty result for
// that phase; only an empty working set fails the whole job.
package pipeline

import (
	"time"

	"github.com/google/uuid"

	"riskscope/pkg/adaptive"
	"riskscope/pkg/anomaly"
	"riskscope/pkg/cluster"
	"riskscope/pkg/logging"
	"riskscope/pkg/mining"
	"riskscope/pkg/record"
)

// Phase identifies one of the four analytic phases.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseAnomaly
	PhaseHeatmap
	PhaseSequences
	PhaseClustering
)

const phaseCount = 4

func (p Phase) String() string {
	switch p {
	case PhaseAnomaly:
		return "anomaly"
	case PhaseHeatmap:
		return "heatmap"
	case PhaseSequences:
		return "sequences"
	case PhaseClustering:
		return "clustering"
	default:
		return "none"
	}
}

// State is a job's lifecycle position.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateRunningAnomaly
	StateRunningHeatmap
	StateRunningSequences
	StateRunningClustering
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateRunningAnomaly:
		return "running_anomaly"
	case StateRunningHeatmap:
		return "running_heatmap"
	case StateRunningSequences:
		return "running_sequences"
	case StateRunningClustering:
		return "running_clustering"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further state transitions can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

func runningState(p Phase) State {
	switch p {
	case PhaseAnomaly:
		return StateRunningAnomaly
	case PhaseHeatmap:
		return StateRunningHeatmap
	case PhaseSequences:
		return StateRunningSequences
	case PhaseClustering:
		return StateRunningClustering
	default:
		return StateInitializing
	}
}

// EventKind discriminates subscription events.
type EventKind int

const (
	EventProgress EventKind = iota
	EventStatus
	EventPartial
	EventError
	EventComplete
)

// Progress reports how far one phase and the overall job have advanced.
type Progress struct {
	Phase    Phase   `json:"phase"`
	Fraction float64 `json:"fraction"`

	// Overall is the arithmetic mean of the four phase fractions.
	Overall float64 `json:"overall"`
}

// Partial carries one finished phase's result. Only the field matching the
// phase is populated.
type Partial struct {
	Phase    Phase            `json:"phase"`
	Timeline []anomaly.Event  `json:"timeline,omitempty"`
	Heatmap  *anomaly.Heatmap `json:"heatmap,omitempty"`
	Patterns []mining.Pattern `json:"patterns,omitempty"`
	Clusters *cluster.Result  `json:"clusters,omitempty"`
}

// Stats summarizes a completed job.
type Stats struct {
	JobID    uuid.UUID     `json:"job_id"`
	Records  int           `json:"records"`
	Actors   int           `json:"actors"`
	Events   int           `json:"events"`
	Patterns int           `json:"patterns"`
	Clusters int           `json:"clusters"`
	Duration time.Duration `json:"duration"`
}

// Event is one message on a job's subscription stream.
type Event struct {
	Kind     EventKind `json:"kind"`
	Progress Progress  `json:"progress,omitempty"`
	Message  string    `json:"message,omitempty"`
	Phase    Phase     `json:"phase,omitempty"`
	Partial  *Partial  `json:"partial,omitempty"`
	Stats    *Stats    `json:"stats,omitempty"`
}

// Options configure one job. Zero-valued fields take their defaults from
// DefaultOptions.
type Options struct {
	// HighRiskThreshold is the absolute risk score above which a record is
	// considered high risk. The scale follows the ingested data.
	HighRiskThreshold float64

	// DeviationSigma configures baseline anomaly detection.
	DeviationSigma float64

	// HeatmapTopActors bounds the heatmap's actor ranking.
	HeatmapTopActors int

	// Mining bounds the sequence miner.
	Mining mining.Options

	// ClusterCount is k for the clusterer.
	ClusterCount int

	// Seed determines centroid initialization.
	Seed int64

	// Naming configures cluster labeling.
	Naming cluster.NamingThresholds

	// Execution selects background or inline phase execution.
	Execution Mode

	// ProgressInterval throttles progress events. Phase boundaries always
	// report regardless of the interval.
	ProgressInterval time.Duration
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		HighRiskThreshold: 1500,
		DeviationSigma:    2,
		HeatmapTopActors:  5,
		Mining:            mining.DefaultOptions(),
		ClusterCount:      4,
		Seed:              1,
		Naming:            cluster.DefaultNamingThresholds(),
		Execution:         ExecBackground,
		ProgressInterval:  100 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.HighRiskThreshold <= 0 {
		o.HighRiskThreshold = def.HighRiskThreshold
	}
	if o.DeviationSigma <= 0 {
		o.DeviationSigma = def.DeviationSigma
	}
	if o.HeatmapTopActors <= 0 {
		o.HeatmapTopActors = def.HeatmapTopActors
	}
	if o.Mining.MinSupport <= 0 {
		o.Mining.MinSupport = def.Mining.MinSupport
	}
	if o.Mining.MaxDepth <= 0 {
		o.Mining.MaxDepth = def.Mining.MaxDepth
	}
	if o.Mining.TopK <= 0 {
		o.Mining.TopK = def.Mining.TopK
	}
	if o.ClusterCount <= 0 {
		o.ClusterCount = def.ClusterCount
	}
	if o.Naming == (cluster.NamingThresholds{}) {
		o.Naming = def.Naming
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = def.ProgressInterval
	}
	return o
}

// Pipeline creates jobs. It holds the collaborators every job shares; the
// caller constructs it once and reuses it.
type Pipeline struct {
	tuner *adaptive.Tuner
	log   *logging.Logger
}

// New returns a pipeline. A nil tuner gets a default one, a nil logger
// discards.
func New(tuner *adaptive.Tuner, logger *logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.Nop()
	}
	if tuner == nil {
		tuner = adaptive.NewTuner(logger)
	}
	return &Pipeline{tuner: tuner, log: logger.WithComponent("pipeline")}
}

// Start begins a job over the given records. With ExecBackground the job
// runs on its own goroutine and Start returns immediately; with ExecInline
// the job runs to a terminal state before Start returns. Either way the
// subscription stream on Job.Events carries the same events in the same
// order, and is closed once the job is terminal.
func (p *Pipeline) Start(records []record.ActivityRecord, opts Options) *Job {
	opts = opts.withDefaults()
	return p.start(records, opts, execFor(opts.Execution))
}

func (p *Pipeline) start(records []record.ActivityRecord, opts Options, exec ExecutionContext) *Job {
	j := newJob(p, records, opts, exec)
	exec.Launch(j.run)
	return j
}
