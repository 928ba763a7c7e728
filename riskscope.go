// Package riskscope is an embedded behavioral-risk analytics library. It
// ingests normalized activity records and produces anomaly timelines, risk
// heatmaps, mined action-sequence patterns, and behavioral actor clusters.
//
// The Analyzer ties the pieces together for embedding callers: configuration,
// logging, the adaptive tuner, the resilient store, and the processing
// pipeline. Callers that need finer control can use the pkg/... packages
// directly; everything the Analyzer wires is public.
package riskscope

import (
	"context"
	"fmt"

	"riskscope/pkg/adaptive"
	"riskscope/pkg/config"
	"riskscope/pkg/logging"
	"riskscope/pkg/pipeline"
	"riskscope/pkg/record"
	"riskscope/pkg/store"
)

// Analyzer is the library entry point. Construct one per embedding process
// and reuse it across analysis runs.
type Analyzer struct {
	cfg   *config.Config
	log   *logging.Logger
	tuner *adaptive.Tuner
	store *store.Store
	pipe  *pipeline.Pipeline
}

// New builds an Analyzer from the given configuration. A nil cfg uses the
// defaults. The storage backend is opened here; callers own the Analyzer's
// lifecycle and must Close it.
func New(cfg *config.Config) (*Analyzer, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.New(cfg.LoggingOptions())

	tuner := adaptive.NewTuner(logger)
	tuner.SetParams(cfg.AdaptiveParams())

	var backend store.Backend
	switch cfg.Storage.Type {
	case "memory":
		backend = store.NewMemoryBackend()
	default:
		b, err := store.OpenSQLite(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		backend = b
	}

	st := store.New(backend, tuner, logger, store.Options{ChunkSize: cfg.Storage.ChunkSize})

	return &Analyzer{
		cfg:   cfg,
		log:   logger,
		tuner: tuner,
		store: st,
		pipe:  pipeline.New(tuner, logger),
	}, nil
}

// InitializeHost probes host capabilities once and scales the tuner's size
// parameters accordingly. Optional; a nil probe uses the system probe.
// Calling it again has no effect.
func (a *Analyzer) InitializeHost(probe adaptive.HostProbe) {
	a.tuner.Initialize(probe)
}

// Analyze starts an analysis job over the records using the configured
// options. The returned job's event stream delivers each phase's result as
// soon as it is ready.
func (a *Analyzer) Analyze(records []record.ActivityRecord) *pipeline.Job {
	return a.pipe.Start(records, a.cfg.PipelineOptions())
}

// AnalyzeWith starts a job with explicit options, for callers that override
// the configured thresholds per run.
func (a *Analyzer) AnalyzeWith(records []record.ActivityRecord, opts pipeline.Options) *pipeline.Job {
	return a.pipe.Start(records, opts)
}

// Save persists the working set through the recovery ladder.
func (a *Analyzer) Save(ctx context.Context, records []record.ActivityRecord) error {
	return a.store.Save(ctx, records)
}

// Load retrieves the persisted working set, recovering what it can.
func (a *Analyzer) Load(ctx context.Context) ([]record.ActivityRecord, error) {
	return a.store.Load(ctx)
}

// Store exposes the persistence layer for indexed queries.
func (a *Analyzer) Store() *store.Store { return a.store }

// Tuner exposes the adaptive parameter set.
func (a *Analyzer) Tuner() *adaptive.Tuner { return a.tuner }

// Config returns the configuration the Analyzer was built with.
func (a *Analyzer) Config() *config.Config { return a.cfg }

// Close releases the storage backend.
func (a *Analyzer) Close() error {
	return a.store.Close()
}
