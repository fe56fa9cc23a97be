package gateway

import (
	"math"
	"sync"

	"github.com/nadzzz/turnout/internal/backend"
	"github.com/nadzzz/turnout/internal/breaker"
	"github.com/nadzzz/turnout/internal/cache"
	"github.com/nadzzz/turnout/internal/latency"
)

// Snapshot is a point-in-time view of the gateway's aggregate statistics,
// shaped for the stats endpoint. Rates are percentages rounded to one
// decimal place.
type Snapshot struct {
	TotalRequests  int64   `json:"total_requests"`
	CloudRequests  int64   `json:"cloud_requests"`
	LocalRequests  int64   `json:"local_requests"`
	CacheHits      int64   `json:"cache_hits"`
	CacheHitRate   float64 `json:"cache_hit_rate"`
	Clarifications int64   `json:"clarifications"`
	Failures       int64   `json:"failures"`
	FailureRate    float64 `json:"failure_rate"`
	Fallbacks      int64   `json:"fallbacks"`
	FallbackRate   float64 `json:"fallback_rate"`
	Timeouts       int64   `json:"timeouts"`

	RaceModeUsed int64 `json:"race_mode_used"`
	CloudWins    int64 `json:"cloud_wins"`
	LocalWins    int64 `json:"local_wins"`

	CloudLatency latency.Stats `json:"cloud_latency"`
	LocalLatency latency.Stats `json:"local_latency"`

	CloudBreaker breaker.Stats `json:"cloud_breaker"`
	LocalBreaker breaker.Stats `json:"local_breaker"`

	Cache cache.Stats `json:"cache"`
}

// stats aggregates request counters. Race mode and late loser telemetry
// touch it from their own goroutines, so every method takes the mutex.
type stats struct {
	mu             sync.Mutex
	totalRequests  int64
	cloudRequests  int64
	localRequests  int64
	cacheHits      int64
	clarifications int64
	failures       int64
	fallbacks      int64
	timeouts       int64
	raceModeUsed   int64
	cloudWins      int64
	localWins      int64
}

func (s *stats) recordRequest() {
	s.mu.Lock()
	s.totalRequests++
	s.mu.Unlock()
}

func (s *stats) recordBackendCall(id backend.ID) {
	s.mu.Lock()
	if id == backend.Cloud {
		s.cloudRequests++
	} else {
		s.localRequests++
	}
	s.mu.Unlock()
}

func (s *stats) recordCacheHit() {
	s.mu.Lock()
	s.cacheHits++
	s.mu.Unlock()
}

func (s *stats) recordClarification() {
	s.mu.Lock()
	s.clarifications++
	s.mu.Unlock()
}

func (s *stats) recordFailure(timeout bool) {
	s.mu.Lock()
	s.failures++
	if timeout {
		s.timeouts++
	}
	s.mu.Unlock()
}

func (s *stats) recordFallback() {
	s.mu.Lock()
	s.fallbacks++
	s.mu.Unlock()
}

func (s *stats) recordRaceUsed() {
	s.mu.Lock()
	s.raceModeUsed++
	s.mu.Unlock()
}

func (s *stats) recordRaceWin(id backend.ID) {
	s.mu.Lock()
	if id == backend.Cloud {
		s.cloudWins++
	} else {
		s.localWins++
	}
	s.mu.Unlock()
}

func (s *stats) reset() {
	s.mu.Lock()
	s.totalRequests = 0
	s.cloudRequests = 0
	s.localRequests = 0
	s.cacheHits = 0
	s.clarifications = 0
	s.failures = 0
	s.fallbacks = 0
	s.timeouts = 0
	s.raceModeUsed = 0
	s.cloudWins = 0
	s.localWins = 0
	s.mu.Unlock()
}

// view returns the counter portion of a Snapshot; the gateway fills in the
// subsystem sections.
func (s *stats) view() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		TotalRequests:  s.totalRequests,
		CloudRequests:  s.cloudRequests,
		LocalRequests:  s.localRequests,
		CacheHits:      s.cacheHits,
		CacheHitRate:   percent(s.cacheHits, s.totalRequests),
		Clarifications: s.clarifications,
		Failures:       s.failures,
		FailureRate:    percent(s.failures, s.totalRequests),
		Fallbacks:      s.fallbacks,
		FallbackRate:   percent(s.fallbacks, s.totalRequests),
		Timeouts:       s.timeouts,
		RaceModeUsed:   s.raceModeUsed,
		CloudWins:      s.cloudWins,
		LocalWins:      s.localWins,
	}
}

// percent returns part/total as a percentage rounded to one decimal place,
// 0 when total is 0.
func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}
