// Package adaptive tunes the size parameters the analytics and storage
// components run with.
//
// A Tuner starts from fixed defaults, scales them once against probed host
// capabilities, then keeps adjusting them from recorded performance samples.
// Every adjustment is exponentially smoothed; a single sample can nudge a
// parameter but never jump it, which keeps the sizes from oscillating when
// success rates hover around a boundary.
package adaptive

import (
	"sync"
	"time"

	"riskscope/pkg/logging"
)

// Parameter hard bounds. Tuning never leaves these.
const (
	MinChunkSize = 50
	MaxChunkSize = 5000
	MinBatchSize = 10
	MaxBatchSize = 1000

	MinCompressionLevel = 1
	MaxCompressionLevel = 9
)

// sampleWindowCap bounds the rolling performance-sample window.
const sampleWindowCap = 50

// minSamplesForTuning is how many samples a category needs before its
// parameters are re-tuned.
const minSamplesForTuning = 5

// Success-rate breakpoints for shrinking and growing.
const (
	shrinkBelowRate = 0.80
	growAboveRate   = 0.95
)

// Params is the tunable parameter set.
type Params struct {
	// ChunkSize is how many records a storage chunk holds.
	ChunkSize int

	// BatchSize is how many records an analytic phase processes between
	// yield points.
	BatchSize int

	// MaxSampleSize caps how many records an analysis samples from very
	// large working sets.
	MaxSampleSize int

	// CompressionLevel is the gzip level used for chunk payloads. Higher
	// means more aggressive compression when storage keeps failing.
	CompressionLevel int

	// AdaptationRate is the exponential smoothing factor in (0,1].
	AdaptationRate float64
}

// DefaultParams returns the fixed defaults a Tuner starts from.
func DefaultParams() Params {
	return Params{
		ChunkSize:        500,
		BatchSize:        100,
		MaxSampleSize:    10000,
		CompressionLevel: 1,
		AdaptationRate:   0.3,
	}
}

// Sample is one performance observation.
type Sample struct {
	// Category names the operation kind, e.g. "store.write" or
	// "phase.sequences". Tuning is per category.
	Category string

	Duration time.Duration
	Success  bool

	// DataSize is the record count the operation handled.
	DataSize int

	// ChunkSize is the chunk/batch setting in effect during the operation.
	ChunkSize int
}

// Tuner owns the parameter set and the rolling sample window. Safe for
// concurrent use.
type Tuner struct {
	mu          sync.Mutex
	params      Params
	samples     []Sample
	initialized bool
	log         *logging.Logger
}

// NewTuner returns a Tuner at defaults. logger may be nil.
func NewTuner(logger *logging.Logger) *Tuner {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Tuner{
		params: DefaultParams(),
		log:    logger.WithComponent("adaptive"),
	}
}

// Initialize probes host capabilities once and scales the size parameters
// by a bounded performance score. Probe failures leave the defaults in
// place; adaptation problems are never fatal.
func (t *Tuner) Initialize(probe HostProbe) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.initialized {
		return
	}
	t.initialized = true

	if probe == nil {
		probe = SystemProbe{}
	}
	caps, err := probe.Probe()
	if err != nil {
		t.log.Warn("host probe failed, keeping default parameters", "error", err)
		return
	}

	score := performanceScore(caps)
	t.params.ChunkSize = clampInt(int(float64(t.params.ChunkSize)*(0.5+score)), MinChunkSize, MaxChunkSize)
	t.params.BatchSize = clampInt(int(float64(t.params.BatchSize)*(0.5+score)), MinBatchSize, MaxBatchSize)
	t.params.MaxSampleSize = int(float64(t.params.MaxSampleSize) * (0.5 + score))

	t.log.Info("initialized from host capabilities",
		"score", score,
		"chunk_size", t.params.ChunkSize,
		"batch_size", t.params.BatchSize)
}

// performanceScore folds capability signals into [0,1]. Each signal
// saturates at a generous ceiling so one oversized machine dimension can't
// dominate.
func performanceScore(caps HostCapabilities) float64 {
	mem := ratio(float64(caps.MemoryBytes), 8<<30)
	cores := ratio(float64(caps.Cores), 8)
	storage := ratio(float64(caps.StorageBytes), 1<<30)

	network := 0.5
	switch caps.NetworkClass {
	case NetworkFast:
		network = 1.0
	case NetworkSlow:
		network = 0.25
	}

	return 0.35*mem + 0.25*cores + 0.25*storage + 0.15*network
}

func ratio(v, ceiling float64) float64 {
	if ceiling <= 0 {
		return 0
	}
	r := v / ceiling
	if r > 1 {
		return 1
	}
	if r < 0 {
		return 0
	}
	return r
}

// SetParams replaces the parameter set, typically with configured values.
// Size and compression fields are clamped to their hard bounds; non-positive
// fields keep their current values.
func (t *Tuner) SetParams(p Params) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p.ChunkSize > 0 {
		t.params.ChunkSize = clampInt(p.ChunkSize, MinChunkSize, MaxChunkSize)
	}
	if p.BatchSize > 0 {
		t.params.BatchSize = clampInt(p.BatchSize, MinBatchSize, MaxBatchSize)
	}
	if p.MaxSampleSize > 0 {
		t.params.MaxSampleSize = p.MaxSampleSize
	}
	if p.CompressionLevel > 0 {
		t.params.CompressionLevel = clampInt(p.CompressionLevel, MinCompressionLevel, MaxCompressionLevel)
	}
	if p.AdaptationRate > 0 && p.AdaptationRate <= 1 {
		t.params.AdaptationRate = p.AdaptationRate
	}
}

// Params returns a snapshot of the current parameters.
func (t *Tuner) Params() Params {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.params
}

// RecordSample appends one observation to the rolling window and re-tunes
// the sample's category once enough observations exist.
func (t *Tuner) RecordSample(s Sample) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.samples = append(t.samples, s)
	if len(t.samples) > sampleWindowCap {
		t.samples = t.samples[len(t.samples)-sampleWindowCap:]
	}

	t.retune(s.Category)
}

// retune adjusts the size parameter relevant to category based on its
// recent success rate. Storage categories drive ChunkSize and the
// compression level; everything else drives BatchSize.
func (t *Tuner) retune(category string) {
	var categorySamples []Sample
	for _, s := range t.samples {
		if s.Category == category {
			categorySamples = append(categorySamples, s)
		}
	}
	if len(categorySamples) < minSamplesForTuning {
		return
	}

	successes := 0
	maxData := 0
	bestSetting := 0
	var bestDuration time.Duration
	for _, s := range categorySamples {
		if s.Success {
			successes++
			if bestSetting == 0 || s.Duration < bestDuration {
				bestSetting, bestDuration = s.ChunkSize, s.Duration
			}
		}
		if s.DataSize > maxData {
			maxData = s.DataSize
		}
	}
	rate := float64(successes) / float64(len(categorySamples))

	storageCategory := isStorageCategory(category)
	current := t.params.BatchSize
	lo, hi := MinBatchSize, MaxBatchSize
	if storageCategory {
		current, lo, hi = t.params.ChunkSize, MinChunkSize, MaxChunkSize
	}

	switch {
	case rate < shrinkBelowRate:
		// Back off toward half the current size.
		next := smooth(current, current/2, t.params.AdaptationRate)
		current = clampInt(next, lo, hi)
		if storageCategory {
			t.params.CompressionLevel = clampInt(
				smooth(t.params.CompressionLevel, MaxCompressionLevel, t.params.AdaptationRate),
				MinCompressionLevel, MaxCompressionLevel)
		}
		t.log.Info("shrinking after failures", "category", category, "success_rate", rate, "size", current)

	case rate > growAboveRate && bestSetting > 0 && maxData >= current:
		// Operations are succeeding at the cap; grow toward the
		// best-performing observed setting.
		target := bestSetting
		if target < current {
			target = current + current/4
		}
		current = clampInt(smooth(current, target, t.params.AdaptationRate), lo, hi)
		if storageCategory {
			t.params.CompressionLevel = clampInt(
				smooth(t.params.CompressionLevel, MinCompressionLevel, t.params.AdaptationRate),
				MinCompressionLevel, MaxCompressionLevel)
		}
		t.log.Debug("growing after sustained success", "category", category, "size", current)

	default:
		return
	}

	if storageCategory {
		t.params.ChunkSize = current
	} else {
		t.params.BatchSize = current
	}
}

// RecommendedChunkSize returns the chunk size to use for a working set of
// dataSize records: reduced for very large inputs, never larger than the
// input itself for very small ones.
func (t *Tuner) RecommendedChunkSize(dataSize int) int {
	t.mu.Lock()
	size := t.params.ChunkSize
	t.mu.Unlock()

	switch {
	case dataSize > 50000:
		size /= 2
	case dataSize > 10000:
		size = size * 3 / 4
	}
	if dataSize > 0 && size > dataSize {
		size = dataSize
	}
	return clampInt(size, MinChunkSize, MaxChunkSize)
}

// smooth moves old toward target by rate, always at least one step when
// old and target differ.
func smooth(old, target int, rate float64) int {
	next := int(float64(old)*(1-rate) + float64(target)*rate)
	if next == old && target != old {
		if target > old {
			next = old + 1
		} else {
			next = old - 1
		}
	}
	return next
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func isStorageCategory(category string) bool {
	return len(category) >= 6 && category[:6] == "store."
}
