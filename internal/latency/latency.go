// Package latency tracks backend call durations over a sliding window.
package latency

import (
	"math"
	"sort"
	"sync"
)

// Config tunes one tracker instance.
type Config struct {
	// Enabled set to false makes Record a no-op; all queries return zero.
	Enabled bool

	// Window is the number of samples retained. Older samples are
	// silently dropped.
	Window int
}

// DefaultConfig returns the standard 50-sample window.
func DefaultConfig() Config {
	return Config{Enabled: true, Window: 50}
}

// Stats is a point-in-time summary of the current window.
type Stats struct {
	Count int     `json:"count"`
	Avg   float64 `json:"avg_ms"`
	Min   float64 `json:"min_ms"`
	Max   float64 `json:"max_ms"`
	P50   float64 `json:"p50_ms"`
	P90   float64 `json:"p90_ms"`
	P95   float64 `json:"p95_ms"`
	P99   float64 `json:"p99_ms"`
}

// Tracker keeps a fixed-capacity window of millisecond samples for one
// backend. A single gateway call path writes per backend outside race
// mode; the mutex covers the race-mode case where the loser's telemetry
// lands concurrently.
type Tracker struct {
	cfg Config

	mu      sync.Mutex
	samples []float64
}

// New creates an empty tracker.
func New(cfg Config) *Tracker {
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	return &Tracker{
		cfg:     cfg,
		samples: make([]float64, 0, cfg.Window),
	}
}

// Record appends one sample in milliseconds, dropping the oldest sample
// once the window is full.
func (t *Tracker) Record(ms float64) {
	if !t.cfg.Enabled {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.samples = append(t.samples, ms)
	if len(t.samples) > t.cfg.Window {
		t.samples = t.samples[1:]
	}
}

// Average returns the mean of the current window, 0 when empty.
func (t *Tracker) Average() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return average(t.samples)
}

// Percentile returns the nearest-rank percentile of the current window,
// 0 when empty. p is expected in (0, 100].
func (t *Tracker) Percentile(p int) float64 {
	t.mu.Lock()
	sorted := make([]float64, len(t.samples))
	copy(sorted, t.samples)
	t.mu.Unlock()

	return nearestRank(sorted, p)
}

// Min returns the smallest sample in the window, 0 when empty.
func (t *Tracker) Min() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.samples) == 0 {
		return 0
	}
	m := t.samples[0]
	for _, s := range t.samples[1:] {
		if s < m {
			m = s
		}
	}
	return m
}

// Max returns the largest sample in the window, 0 when empty.
func (t *Tracker) Max() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.samples) == 0 {
		return 0
	}
	m := t.samples[0]
	for _, s := range t.samples[1:] {
		if s > m {
			m = s
		}
	}
	return m
}

// Count returns the number of samples currently in the window.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.samples)
}

// IsSlow reports whether the window average exceeds thresholdMs.
// An empty window is never slow.
func (t *Tracker) IsSlow(thresholdMs float64) bool {
	return t.Average() > thresholdMs
}

// Snapshot returns the full summary used by the statistics surface.
func (t *Tracker) Snapshot() Stats {
	t.mu.Lock()
	sorted := make([]float64, len(t.samples))
	copy(sorted, t.samples)
	t.mu.Unlock()

	if len(sorted) == 0 {
		return Stats{}
	}

	sort.Float64s(sorted)
	return Stats{
		Count: len(sorted),
		Avg:   round2(average(sorted)),
		Min:   round2(sorted[0]),
		Max:   round2(sorted[len(sorted)-1]),
		P50:   round2(rankOf(sorted, 50)),
		P90:   round2(rankOf(sorted, 90)),
		P95:   round2(rankOf(sorted, 95)),
		P99:   round2(rankOf(sorted, 99)),
	}
}

// Reset clears all samples.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = t.samples[:0]
}

func average(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

// nearestRank sorts in place and returns the nearest-rank percentile.
func nearestRank(samples []float64, p int) float64 {
	if len(samples) == 0 {
		return 0
	}
	sort.Float64s(samples)
	return rankOf(samples, p)
}

// rankOf expects samples already sorted ascending.
func rankOf(sorted []float64, p int) float64 {
	rank := int(math.Ceil(float64(p) / 100.0 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
