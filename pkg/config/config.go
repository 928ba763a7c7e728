// Package config handles configuration loading, validation, and hot reload
// for the analytics library. The embedding process points a Loader at a
// TOML, YAML, or JSON file; every tunable threshold and sizing parameter
// lives here so nothing in the analytic packages hard-codes a scale.
package config

import (
	"os"
	"strconv"
	"time"

	"riskscope/pkg/adaptive"
	"riskscope/pkg/cluster"
	"riskscope/pkg/logging"
	"riskscope/pkg/mining"
	"riskscope/pkg/pipeline"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete library configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Thresholds hold the risk-score breakpoints. The scale follows the
	// ingested data; nothing downstream assumes a particular range.
	Thresholds ThresholdConfig `toml:"thresholds" json:"thresholds" yaml:"thresholds"`

	// Mining bounds the sequence miner.
	Mining MiningConfig `toml:"mining" json:"mining" yaml:"mining"`

	// Clustering configures the behavioral clusterer.
	Clustering ClusteringConfig `toml:"clustering" json:"clustering" yaml:"clustering"`

	// Pipeline configures job scheduling.
	Pipeline PipelineConfig `toml:"pipeline" json:"pipeline" yaml:"pipeline"`

	// Storage configures the persistence layer.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Adaptive seeds the self-tuning parameter set.
	Adaptive AdaptiveConfig `toml:"adaptive" json:"adaptive" yaml:"adaptive"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
}

// ThresholdConfig holds risk-score breakpoints.
type ThresholdConfig struct {
	// HighRisk is the absolute score above which a record is high risk.
	HighRisk float64 `toml:"high_risk" json:"high_risk" yaml:"high_risk"`

	// Elevated, Severe and Critical are the heatmap coloring breakpoints
	// exposed to the presentation layer.
	Elevated float64 `toml:"elevated" json:"elevated" yaml:"elevated"`
	Severe   float64 `toml:"severe" json:"severe" yaml:"severe"`
	Critical float64 `toml:"critical" json:"critical" yaml:"critical"`

	// DeviationSigma is the z-score at which a record counts as anomalous
	// against its actor's baseline.
	DeviationSigma float64 `toml:"deviation_sigma" json:"deviation_sigma" yaml:"deviation_sigma"`
}

// MiningConfig bounds the sequence miner.
type MiningConfig struct {
	MinSupport int `toml:"min_support" json:"min_support" yaml:"min_support"`
	MaxDepth   int `toml:"max_depth" json:"max_depth" yaml:"max_depth"`
	TopK       int `toml:"top_k" json:"top_k" yaml:"top_k"`
}

// ClusteringConfig configures the behavioral clusterer, including the
// centroid labeling thresholds.
type ClusteringConfig struct {
	// K is the number of clusters.
	K int `toml:"k" json:"k" yaml:"k"`

	// Seed determines centroid initialization.
	Seed int64 `toml:"seed" json:"seed" yaml:"seed"`

	HighAvgRisk      float64 `toml:"high_avg_risk" json:"high_avg_risk" yaml:"high_avg_risk"`
	HighBreachCount  float64 `toml:"high_breach_count" json:"high_breach_count" yaml:"high_breach_count"`
	HighHourVariance float64 `toml:"high_hour_variance" json:"high_hour_variance" yaml:"high_hour_variance"`
	HighIntegrations float64 `toml:"high_integrations" json:"high_integrations" yaml:"high_integrations"`
	HighVelocity     float64 `toml:"high_velocity" json:"high_velocity" yaml:"high_velocity"`
	LowVelocity      float64 `toml:"low_velocity" json:"low_velocity" yaml:"low_velocity"`
}

// PipelineConfig configures job scheduling.
type PipelineConfig struct {
	// Execution is "background" or "inline".
	Execution string `toml:"execution" json:"execution" yaml:"execution"`

	// ProgressIntervalMs throttles progress events.
	ProgressIntervalMs int `toml:"progress_interval_ms" json:"progress_interval_ms" yaml:"progress_interval_ms"`

	// HeatmapTopActors bounds the heatmap actor ranking.
	HeatmapTopActors int `toml:"heatmap_top_actors" json:"heatmap_top_actors" yaml:"heatmap_top_actors"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Type is the storage backend type: "sqlite" or "memory".
	Type string `toml:"type" json:"type" yaml:"type"`

	// Path is the path to the database file (for sqlite).
	Path string `toml:"path" json:"path" yaml:"path"`

	// ChunkSize is the record count per stored chunk. Zero lets the
	// adaptive tuner pick.
	ChunkSize int `toml:"chunk_size" json:"chunk_size" yaml:"chunk_size"`
}

// AdaptiveConfig seeds the self-tuning parameter set.
type AdaptiveConfig struct {
	ChunkSize        int     `toml:"chunk_size" json:"chunk_size" yaml:"chunk_size"`
	BatchSize        int     `toml:"batch_size" json:"batch_size" yaml:"batch_size"`
	MaxSampleSize    int     `toml:"max_sample_size" json:"max_sample_size" yaml:"max_sample_size"`
	CompressionLevel int     `toml:"compression_level" json:"compression_level" yaml:"compression_level"`
	AdaptationRate   float64 `toml:"adaptation_rate" json:"adaptation_rate" yaml:"adaptation_rate"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the output format: text or json.
	Format string `toml:"format" json:"format" yaml:"format"`
}

// DefaultConfig returns the configuration defaults. The risk breakpoints
// follow the scale observed in ingested data and are expected to be tuned
// per deployment.
func DefaultConfig() *Config {
	params := adaptive.DefaultParams()
	naming := cluster.DefaultNamingThresholds()
	miningOpts := mining.DefaultOptions()

	return &Config{
		Version: Version,
		Thresholds: ThresholdConfig{
			HighRisk:       1500,
			Elevated:       1000,
			Severe:         2000,
			Critical:       2500,
			DeviationSigma: 2,
		},
		Mining: MiningConfig{
			MinSupport: miningOpts.MinSupport,
			MaxDepth:   miningOpts.MaxDepth,
			TopK:       miningOpts.TopK,
		},
		Clustering: ClusteringConfig{
			K:                4,
			Seed:             1,
			HighAvgRisk:      naming.HighAvgRisk,
			HighBreachCount:  naming.HighBreachCount,
			HighHourVariance: naming.HighHourVariance,
			HighIntegrations: naming.HighIntegrations,
			HighVelocity:     naming.HighVelocity,
			LowVelocity:      naming.LowVelocity,
		},
		Pipeline: PipelineConfig{
			Execution:          "background",
			ProgressIntervalMs: 100,
			HeatmapTopActors:   5,
		},
		Storage: StorageConfig{
			Type:      "sqlite",
			Path:      defaultStoragePath(),
			ChunkSize: params.ChunkSize,
		},
		Adaptive: AdaptiveConfig{
			ChunkSize:        params.ChunkSize,
			BatchSize:        params.BatchSize,
			MaxSampleSize:    params.MaxSampleSize,
			CompressionLevel: params.CompressionLevel,
			AdaptationRate:   params.AdaptationRate,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ApplyEnvOverrides applies environment variable overrides. Only settings
// that commonly differ between deployments are overridable this way.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("RISKSCOPE_STORAGE_TYPE"); v != "" {
		c.Storage.Type = v
	}
	if v := os.Getenv("RISKSCOPE_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("RISKSCOPE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RISKSCOPE_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("RISKSCOPE_HIGH_RISK_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.Thresholds.HighRisk = f
		}
	}
	if v := os.Getenv("RISKSCOPE_CLUSTER_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Clustering.Seed = n
		}
	}
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// PipelineOptions converts the configured values into job options.
func (c *Config) PipelineOptions() pipeline.Options {
	mode := pipeline.ExecBackground
	if c.Pipeline.Execution == "inline" {
		mode = pipeline.ExecInline
	}
	return pipeline.Options{
		HighRiskThreshold: c.Thresholds.HighRisk,
		DeviationSigma:    c.Thresholds.DeviationSigma,
		HeatmapTopActors:  c.Pipeline.HeatmapTopActors,
		Mining: mining.Options{
			MinSupport: c.Mining.MinSupport,
			MaxDepth:   c.Mining.MaxDepth,
			TopK:       c.Mining.TopK,
		},
		ClusterCount: c.Clustering.K,
		Seed:         c.Clustering.Seed,
		Naming: cluster.NamingThresholds{
			HighAvgRisk:      c.Clustering.HighAvgRisk,
			HighBreachCount:  c.Clustering.HighBreachCount,
			HighHourVariance: c.Clustering.HighHourVariance,
			HighIntegrations: c.Clustering.HighIntegrations,
			HighVelocity:     c.Clustering.HighVelocity,
			LowVelocity:      c.Clustering.LowVelocity,
		},
		Execution:        mode,
		ProgressInterval: time.Duration(c.Pipeline.ProgressIntervalMs) * time.Millisecond,
	}
}

// AdaptiveParams converts the configured values into tuner seed parameters.
func (c *Config) AdaptiveParams() adaptive.Params {
	return adaptive.Params{
		ChunkSize:        c.Adaptive.ChunkSize,
		BatchSize:        c.Adaptive.BatchSize,
		MaxSampleSize:    c.Adaptive.MaxSampleSize,
		CompressionLevel: c.Adaptive.CompressionLevel,
		AdaptationRate:   c.Adaptive.AdaptationRate,
	}
}

// LoggingOptions converts the configured values for the logging package.
// Invalid names fall back to the defaults.
func (c *Config) LoggingOptions() logging.Config {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		format = logging.FormatText
	}
	return logging.Config{Level: level, Format: format}
}

func defaultStoragePath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir + "/riskscope/riskscope.db"
	}
	return "riskscope.db"
}
