package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a single configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for consistency. All problems are
// reported, not just the first.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, c.Thresholds.validate()...)
	errs = append(errs, c.Mining.validate()...)
	errs = append(errs, c.Clustering.validate()...)
	errs = append(errs, c.Pipeline.validate()...)
	errs = append(errs, c.Storage.validate()...)
	errs = append(errs, c.Adaptive.validate()...)
	errs = append(errs, c.Logging.validate()...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (t *ThresholdConfig) validate() ValidationErrors {
	var errs ValidationErrors
	if t.HighRisk <= 0 {
		errs = append(errs, ValidationError{"thresholds.high_risk", "must be positive"})
	}
	if t.Elevated <= 0 || t.Severe <= t.Elevated || t.Critical <= t.Severe {
		errs = append(errs, ValidationError{
			Field:   "thresholds",
			Message: "breakpoints must satisfy 0 < elevated < severe < critical",
		})
	}
	if t.DeviationSigma <= 0 {
		errs = append(errs, ValidationError{"thresholds.deviation_sigma", "must be positive"})
	}
	return errs
}

func (m *MiningConfig) validate() ValidationErrors {
	var errs ValidationErrors
	if m.MinSupport < 1 {
		errs = append(errs, ValidationError{"mining.min_support", "must be at least 1"})
	}
	if m.MaxDepth < 1 {
		errs = append(errs, ValidationError{"mining.max_depth", "must be at least 1"})
	}
	if m.TopK < 1 {
		errs = append(errs, ValidationError{"mining.top_k", "must be at least 1"})
	}
	return errs
}

func (cl *ClusteringConfig) validate() ValidationErrors {
	var errs ValidationErrors
	if cl.K < 1 {
		errs = append(errs, ValidationError{"clustering.k", "must be at least 1"})
	}
	if cl.LowVelocity >= cl.HighVelocity {
		errs = append(errs, ValidationError{
			Field:   "clustering",
			Message: "low_velocity must be below high_velocity",
		})
	}
	return errs
}

func (p *PipelineConfig) validate() ValidationErrors {
	var errs ValidationErrors
	switch p.Execution {
	case "background", "inline":
	default:
		errs = append(errs, ValidationError{
			Field:   "pipeline.execution",
			Message: fmt.Sprintf("must be %q or %q, got %q", "background", "inline", p.Execution),
		})
	}
	if p.ProgressIntervalMs < 0 {
		errs = append(errs, ValidationError{"pipeline.progress_interval_ms", "must not be negative"})
	}
	if p.HeatmapTopActors < 1 {
		errs = append(errs, ValidationError{"pipeline.heatmap_top_actors", "must be at least 1"})
	}
	return errs
}

func (s *StorageConfig) validate() ValidationErrors {
	var errs ValidationErrors
	switch s.Type {
	case "sqlite":
		if s.Path == "" {
			errs = append(errs, ValidationError{"storage.path", "required for sqlite storage"})
		}
	case "memory":
	default:
		errs = append(errs, ValidationError{
			Field:   "storage.type",
			Message: fmt.Sprintf("must be %q or %q, got %q", "sqlite", "memory", s.Type),
		})
	}
	if s.ChunkSize < 0 {
		errs = append(errs, ValidationError{"storage.chunk_size", "must not be negative"})
	}
	return errs
}

func (a *AdaptiveConfig) validate() ValidationErrors {
	var errs ValidationErrors
	if a.ChunkSize < 1 {
		errs = append(errs, ValidationError{"adaptive.chunk_size", "must be at least 1"})
	}
	if a.BatchSize < 1 {
		errs = append(errs, ValidationError{"adaptive.batch_size", "must be at least 1"})
	}
	if a.CompressionLevel < 1 || a.CompressionLevel > 9 {
		errs = append(errs, ValidationError{"adaptive.compression_level", "must be between 1 and 9"})
	}
	if a.AdaptationRate <= 0 || a.AdaptationRate > 1 {
		errs = append(errs, ValidationError{"adaptive.adaptation_rate", "must be in (0, 1]"})
	}
	return errs
}

func (l *LoggingConfig) validate() ValidationErrors {
	var errs ValidationErrors
	switch strings.ToLower(l.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("unknown level %q", l.Level),
		})
	}
	switch strings.ToLower(l.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("unknown format %q", l.Format),
		})
	}
	return errs
}
