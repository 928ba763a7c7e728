package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskscope/pkg/pipeline"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

const tomlConfig = `
version = 1

[thresholds]
high_risk = 1200.0
elevated = 800.0
severe = 1600.0
critical = 2400.0
deviation_sigma = 2.5

[mining]
min_support = 4
max_depth = 6
top_k = 12

[clustering]
k = 5
seed = 42

[pipeline]
execution = "inline"
heatmap_top_actors = 8

[storage]
type = "memory"

[logging]
level = "debug"
format = "json"
`

const yamlConfig = `
version: 1
thresholds:
  high_risk: 1200.0
  elevated: 800.0
  severe: 1600.0
  critical: 2400.0
  deviation_sigma: 2.5
mining:
  min_support: 4
  max_depth: 6
  top_k: 12
clustering:
  k: 5
  seed: 42
pipeline:
  execution: inline
  heatmap_top_actors: 8
storage:
  type: memory
logging:
  level: debug
  format: json
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTOMLAndYAMLAgree(t *testing.T) {
	fromTOML, err := NewLoader(writeConfig(t, "config.toml", tomlConfig)).Load()
	require.NoError(t, err)

	fromYAML, err := NewLoader(writeConfig(t, "config.yaml", yamlConfig)).Load()
	require.NoError(t, err)

	assert.Equal(t, fromTOML, fromYAML)
	assert.Equal(t, 1200.0, fromTOML.Thresholds.HighRisk)
	assert.Equal(t, 4, fromTOML.Mining.MinSupport)
	assert.Equal(t, int64(42), fromTOML.Clustering.Seed)
	assert.Equal(t, "memory", fromTOML.Storage.Type)
}

func TestLoadKeepsDefaultsForOmittedSections(t *testing.T) {
	cfg, err := NewLoader(writeConfig(t, "config.toml", "version = 1\n")).Load()
	require.NoError(t, err)

	def := DefaultConfig()
	assert.Equal(t, def.Thresholds, cfg.Thresholds)
	assert.Equal(t, def.Adaptive, cfg.Adaptive)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := NewLoader(filepath.Join(t.TempDir(), "absent.toml")).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Thresholds.HighRisk = -1
	cfg.Mining.MinSupport = 0
	cfg.Storage.Type = "cloud"
	cfg.Pipeline.Execution = "threads"

	err := cfg.Validate()
	require.Error(t, err)

	var errs ValidationErrors
	require.ErrorAs(t, err, &errs)
	fields := make(map[string]bool)
	for _, e := range errs {
		fields[e.Field] = true
	}
	assert.True(t, fields["thresholds.high_risk"])
	assert.True(t, fields["mining.min_support"])
	assert.True(t, fields["storage.type"])
	assert.True(t, fields["pipeline.execution"])
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RISKSCOPE_STORAGE_TYPE", "memory")
	t.Setenv("RISKSCOPE_HIGH_RISK_THRESHOLD", "900")
	t.Setenv("RISKSCOPE_CLUSTER_SEED", "7")
	t.Setenv("RISKSCOPE_LOG_FORMAT", "json")

	cfg := LoadFromEnv()
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, 900.0, cfg.Thresholds.HighRisk)
	assert.Equal(t, int64(7), cfg.Clustering.Seed)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestPipelineOptionsMapping(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pipeline.Execution = "inline"
	cfg.Thresholds.HighRisk = 1800
	cfg.Clustering.K = 6
	cfg.Mining.TopK = 20

	opts := cfg.PipelineOptions()
	assert.Equal(t, pipeline.ExecInline, opts.Execution)
	assert.Equal(t, 1800.0, opts.HighRiskThreshold)
	assert.Equal(t, 6, opts.ClusterCount)
	assert.Equal(t, 20, opts.Mining.TopK)
	assert.Equal(t, 100*time.Millisecond, opts.ProgressInterval)
}

func TestLoadOrCreateWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "riskscope.toml")

	cfg, created, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.True(t, created)
	require.NoError(t, cfg.Validate())

	again, created, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, cfg.Thresholds, again.Thresholds)
}

func TestWatchReloadsOnChange(t *testing.T) {
	path := writeConfig(t, "config.toml", tomlConfig)

	loader := NewLoader(path)
	_, err := loader.Load()
	require.NoError(t, err)

	changed := make(chan *Config, 1)
	loader.OnChange(func(cfg *Config) {
		select {
		case changed <- cfg:
		default:
		}
	})
	require.NoError(t, loader.Watch())
	defer loader.Close()

	updated := strings.Replace(tomlConfig, "high_risk = 1200.0", "high_risk = 1750.0", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case cfg := <-changed:
		assert.Equal(t, 1750.0, cfg.Thresholds.HighRisk)
		assert.Equal(t, 1750.0, loader.Config().Thresholds.HighRisk)
	case <-time.After(3 * time.Second):
		t.Fatal("reload callback never fired")
	}
}
