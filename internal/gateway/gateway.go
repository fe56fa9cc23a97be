// Package gateway orchestrates the answer pipeline: cache lookup, intent
// routing, circuit-breaker gating, adaptive and race dispatch, fallback, and
// response caching.
//
// Process never surfaces a backend error to its caller. Every failure mode
// resolves to a speakable Czech sentence; the only error Process returns is
// the caller's own context ending. One Gateway instance owns all routing
// state, so independent instances are independent worlds.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/nadzzz/turnout/internal/backend"
	"github.com/nadzzz/turnout/internal/breaker"
	"github.com/nadzzz/turnout/internal/cache"
	"github.com/nadzzz/turnout/internal/latency"
	"github.com/nadzzz/turnout/internal/race"
	"github.com/nadzzz/turnout/internal/router"
)

// Fixed user-facing responses. The assistant speaks Czech.
const (
	// ClarificationText is spoken when ASR confidence is too low to act on.
	ClarificationText = "Omlouvám se, nerozuměl jsem správně. Můžeš to prosím zopakovat?"

	// PrivacyFailureText is spoken when the local model fails on a
	// privacy-forced query. Cloud fallback is deliberately off that path.
	PrivacyFailureText = "Omlouvám se, nastala chyba při zpracování dotazu. Zkus to prosím znovu."

	// DegradedText is spoken when both backends failed.
	DegradedText = "Omlouvám se, momentálně nejsem schopen odpovědět. Zkus to prosím později."
)

// Config assembles the settings for one Gateway instance.
type Config struct {
	// Preference pins routing: "" (automatic), "local_only", "cloud_only".
	Preference string

	CloudTimeout time.Duration
	LocalTimeout time.Duration

	CloudBreaker breaker.Config
	LocalBreaker breaker.Config

	Cache   cache.Config
	Latency latency.Config

	// CloudSlowThreshold is the rolling-average latency above which a cloud
	// routing suggestion is overridden to local (adaptive routing).
	CloudSlowThreshold time.Duration

	// MinLatencySamples gates both adaptive routing and race triggering;
	// below this many recorded cloud calls the averages are not trusted.
	MinLatencySamples int

	RaceEnabled          bool
	RaceTriggerThreshold time.Duration
	RaceLoserTimeout     time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		CloudTimeout: 10 * time.Second,
		LocalTimeout: 30 * time.Second,
		CloudBreaker: breaker.Config{
			Enabled:          true,
			FailureThreshold: 3,
			RecoveryTimeout:  60 * time.Second,
			SuccessThreshold: 2,
		},
		LocalBreaker: breaker.Config{
			Enabled:          true,
			FailureThreshold: 2,
			RecoveryTimeout:  60 * time.Second,
			SuccessThreshold: 2,
		},
		Cache:                cache.DefaultConfig(),
		Latency:              latency.DefaultConfig(),
		CloudSlowThreshold:   3 * time.Second,
		MinLatencySamples:    10,
		RaceEnabled:          false,
		RaceTriggerThreshold: 5 * time.Second,
		RaceLoserTimeout:     5 * time.Second,
	}
}

// Query is one request to route.
type Query struct {
	Text string

	// ASRConfidence is the speech recognizer's confidence in Text, 0-1.
	// Zero means unknown and is treated as full confidence.
	ASRConfidence float64

	// SessionContextLen is the number of prior turns in the session.
	SessionContextLen int
}

// Result is the outcome the assistant can speak.
type Result struct {
	Text string

	// Backend names where the answer came from: "cloud", "local", "cache"
	// or "router" for clarification short-circuits.
	Backend string

	FromCache    bool
	FallbackUsed bool

	// RaceWinner is set when race dispatch produced the answer.
	RaceWinner string

	// LatencyMs is the full request latency including routing.
	LatencyMs float64

	// Success is false when Text is one of the fixed failure responses.
	Success bool
}

// Gateway routes queries between the cloud and local backends.
type Gateway struct {
	cfg    Config
	cloud  backend.Backend
	local  backend.Backend
	router *router.Router
	cache  *cache.Cache

	cloudBreaker *breaker.Breaker
	localBreaker *breaker.Breaker
	cloudLatency *latency.Tracker
	localLatency *latency.Tracker
	racer        *race.Executor

	stats stats

	// streamingOn disables race dispatch: with a chunk callback registered,
	// racing both backends would interleave two streams.
	streamingOn bool
}

// New creates a Gateway over the two backends. Either backend may be nil
// only in tests that never route to it.
func New(cfg Config, cloud, local backend.Backend) *Gateway {
	return &Gateway{
		cfg:          cfg,
		cloud:        cloud,
		local:        local,
		router:       router.New(router.Preference(cfg.Preference)),
		cache:        cache.New(cfg.Cache, cache.NewQueryClassifier()),
		cloudBreaker: breaker.New("cloud", cfg.CloudBreaker),
		localBreaker: breaker.New("local", cfg.LocalBreaker),
		cloudLatency: latency.New(cfg.Latency),
		localLatency: latency.New(cfg.Latency),
		racer:        race.New(race.Config{LoserTimeout: cfg.RaceLoserTimeout}),
	}
}

// SetStreamingCallback forwards the chunk callback to every backend that
// supports streaming. While a callback is registered race dispatch is
// disabled so only one stream ever reaches the caller.
func (g *Gateway) SetStreamingCallback(fn backend.StreamCallback) {
	g.streamingOn = fn != nil
	if sc, ok := g.cloud.(backend.StreamingCapable); ok {
		sc.SetStreamingCallback(fn)
	}
	if sc, ok := g.local.(backend.StreamingCapable); ok {
		sc.SetStreamingCallback(fn)
	}
}

// Process routes one query and always produces a speakable Result. The
// returned error is reserved for ctx ending; backend failures never
// propagate as errors.
func (g *Gateway) Process(ctx context.Context, q Query) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	g.stats.recordRequest()

	// 1. Cache lookup bypasses routing entirely.
	if text, ok := g.cache.Get(q.Text); ok {
		g.stats.recordCacheHit()
		slog.Debug("cache hit", "query_len", len(q.Text))
		return &Result{
			Text:      text,
			Backend:   "cache",
			FromCache: true,
			Success:   true,
			LatencyMs: msSince(start),
		}, nil
	}

	// 2. Routing decision. The privacy scan runs before anything else by
	// construction, so breaker state can never skip it.
	conf := q.ASRConfidence
	if conf == 0 {
		conf = 1.0
	}
	decision := g.router.Route(q.Text, conf, q.SessionContextLen)

	log := slog.With(
		"intent", decision.Intent.String(),
		"phase", decision.Phase,
		"reason", decision.Reason,
		"query_len", len(q.Text),
	)

	// 3. Clarification short-circuits: no backend, no cache, no state change.
	if decision.Intent == router.AskClarification {
		g.stats.recordClarification()
		log.Info("asking for clarification")
		return &Result{
			Text:      ClarificationText,
			Backend:   "router",
			Success:   true,
			LatencyMs: msSince(start),
		}, nil
	}

	privacy := decision.PrivacyFlagged
	pinned := g.cfg.Preference != ""
	target := targetFor(decision.Intent)

	// 4. Race dispatch when the cloud has been trending slow. Never under
	// privacy (the text must not reach the cloud), a pinned preference, or
	// an open breaker on either side.
	if g.raceTriggered() && !privacy && !pinned &&
		g.cloudBreaker.Allow() && g.localBreaker.Allow() {
		log.Info("race dispatch triggered", "cloud_avg_ms", g.cloudLatency.Average())
		return g.processRace(ctx, q.Text, start)
	}

	// Breaker gating and adaptive routing apply to automatic cloud picks.
	forced := false
	if target == backend.Cloud && !pinned {
		switch {
		case !g.cloudBreaker.Allow():
			if !g.localBreaker.Allow() {
				log.Warn("both circuit breakers open, trying local best-effort")
				forced = true
			} else {
				log.Info("cloud circuit open, rerouting to local")
			}
			target = backend.Local
		case g.cloudIsSlow():
			log.Info("cloud trending slow, rerouting to local",
				"cloud_avg_ms", g.cloudLatency.Average())
			target = backend.Local
		}
	}

	// 5. Single dispatch with one fallback hand-off.
	answer, err := g.call(ctx, target, q.Text, forced)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.stats.recordFailure(backend.IsTimeout(err))

		if privacy {
			log.Error("local backend failed on privacy-forced query", "error", err)
			return &Result{
				Text:      PrivacyFailureText,
				Backend:   string(backend.Local),
				Success:   false,
				LatencyMs: msSince(start),
			}, nil
		}

		fallbackTo := otherBackend(target)
		log.Warn("backend failed, attempting fallback",
			"backend", string(target), "fallback", string(fallbackTo), "error", err)

		answer, err = g.call(ctx, fallbackTo, q.Text, false)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.stats.recordFailure(backend.IsTimeout(err))
			log.Error("fallback backend also failed", "backend", string(fallbackTo), "error", err)
			return &Result{
				Text:      DegradedText,
				Backend:   string(fallbackTo),
				Success:   false,
				LatencyMs: msSince(start),
			}, nil
		}

		g.stats.recordFallback()
		g.cache.Set(q.Text, answer)
		return &Result{
			Text:         answer,
			Backend:      string(fallbackTo),
			FallbackUsed: true,
			Success:      true,
			LatencyMs:    msSince(start),
		}, nil
	}

	// A local answer that looks like a placeholder or is implausibly thin
	// gets one shot at the cloud. Automatic mode only; privacy-forced and
	// pinned routing never escalate.
	resultBackend := target
	fallbackUsed := false
	if target == backend.Local && !privacy && !pinned && g.router.ShouldEscalate(q.Text, answer) {
		log.Info("local answer looks weak, escalating to cloud", "response_len", len(answer))
		if cloudAnswer, cloudErr := g.call(ctx, backend.Cloud, q.Text, false); cloudErr == nil {
			answer = cloudAnswer
			resultBackend = backend.Cloud
			fallbackUsed = true
			g.stats.recordFallback()
		} else {
			log.Warn("escalation failed, keeping local answer", "error", cloudErr)
		}
	}

	// 6. Final success: cache write subject to the TTL classifier.
	g.cache.Set(q.Text, answer)
	return &Result{
		Text:         answer,
		Backend:      string(resultBackend),
		FallbackUsed: fallbackUsed,
		Success:      true,
		LatencyMs:    msSince(start),
	}, nil
}

// Statistics returns a read-only snapshot of the aggregate counters plus
// per-backend latency and breaker state.
func (g *Gateway) Statistics() Snapshot {
	s := g.stats.view()
	s.CloudLatency = g.cloudLatency.Snapshot()
	s.LocalLatency = g.localLatency.Snapshot()
	s.CloudBreaker = g.cloudBreaker.Stats()
	s.LocalBreaker = g.localBreaker.Stats()
	s.Cache = g.cache.Stats()
	return s
}

// ResetStatistics clears the cache, latency buffers and counters. Breaker
// state survives: a tripped circuit cannot be silently un-broken through a
// stats reset.
func (g *Gateway) ResetStatistics() {
	g.cache.Clear()
	g.cloudLatency.Reset()
	g.localLatency.Reset()
	g.stats.reset()
	slog.Info("gateway statistics reset")
}

// Close releases both backends.
func (g *Gateway) Close() error {
	var errs []error
	if g.cloud != nil {
		errs = append(errs, g.cloud.Close())
	}
	if g.local != nil {
		errs = append(errs, g.local.Close())
	}
	return errors.Join(errs...)
}

// call dispatches one backend request under that backend's timeout,
// recording breaker and latency outcomes. force skips the breaker gate for
// best-effort probes; outcome records while Open are no-ops.
func (g *Gateway) call(ctx context.Context, id backend.ID, text string, force bool) (string, error) {
	brk := g.breakerFor(id)
	if !force && !brk.Allow() {
		return "", backend.NewError(id, backend.ErrTypeUnavailable, "circuit open", nil)
	}

	cctx, cancel := context.WithTimeout(ctx, g.timeoutFor(id))
	defer cancel()

	g.stats.recordBackendCall(id)
	start := time.Now()
	answer, err := g.backendFor(id).Process(cctx, text)
	elapsed := msSince(start)

	if err != nil {
		if ctx.Err() != nil {
			// The caller is gone; the backend did not necessarily fail.
			return "", err
		}
		brk.RecordFailure()
		slog.Warn("backend call failed",
			"backend", string(id), "latency_ms", elapsed, "error", err)
		return "", err
	}

	brk.RecordSuccess()
	g.trackerFor(id).Record(elapsed)
	slog.Debug("backend call succeeded",
		"backend", string(id), "latency_ms", elapsed, "response_len", len(answer))
	return answer, nil
}

// processRace runs both backends concurrently and speaks the first success.
func (g *Gateway) processRace(ctx context.Context, text string, start time.Time) (*Result, error) {
	g.stats.recordRaceUsed()

	cloudCall := func(ctx context.Context, query string) (string, error) {
		cctx, cancel := context.WithTimeout(ctx, g.cfg.CloudTimeout)
		defer cancel()
		g.stats.recordBackendCall(backend.Cloud)
		return g.cloud.Process(cctx, query)
	}
	localCall := func(ctx context.Context, query string) (string, error) {
		cctx, cancel := context.WithTimeout(ctx, g.cfg.LocalTimeout)
		defer cancel()
		g.stats.recordBackendCall(backend.Local)
		return g.local.Process(cctx, query)
	}

	res, err := g.racer.Race(ctx, text, cloudCall, localCall)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.stats.recordFailure(false)
		g.cloudBreaker.RecordFailure()
		g.localBreaker.RecordFailure()
		slog.Error("race dispatch failed on both backends", "error", err)
		return &Result{
			Text:      DegradedText,
			Backend:   "race",
			Success:   false,
			LatencyMs: msSince(start),
		}, nil
	}

	winner := backend.ID(res.Winner)
	winnerMs := float64(res.WinnerLatency.Microseconds()) / 1000.0
	g.breakerFor(winner).RecordSuccess()
	g.trackerFor(winner).Record(winnerMs)
	g.stats.recordRaceWin(winner)

	// Loser telemetry is informational: it feeds the breaker and tracker
	// but never the answer.
	loser := otherBackend(winner)
	switch {
	case res.LoserErr == "" && res.LoserLatency > 0:
		g.breakerFor(loser).RecordSuccess()
		g.trackerFor(loser).Record(float64(res.LoserLatency.Microseconds()) / 1000.0)
	case res.LoserErr != "" && res.LoserErr != "timeout":
		g.breakerFor(loser).RecordFailure()
	}

	g.cache.Set(text, res.Response)
	return &Result{
		Text:       res.Response,
		Backend:    string(winner),
		RaceWinner: string(winner),
		Success:    true,
		LatencyMs:  msSince(start),
	}, nil
}

// raceTriggered reports whether enough cloud samples show it slower than
// the race trigger threshold. Streaming disables racing entirely.
func (g *Gateway) raceTriggered() bool {
	if !g.cfg.RaceEnabled || g.streamingOn {
		return false
	}
	if g.cloudLatency.Count() < g.cfg.MinLatencySamples {
		return false
	}
	return g.cloudLatency.Average() > float64(g.cfg.RaceTriggerThreshold.Milliseconds())
}

// cloudIsSlow reports whether adaptive routing should override a cloud pick.
func (g *Gateway) cloudIsSlow() bool {
	if g.cloudLatency.Count() < g.cfg.MinLatencySamples {
		return false
	}
	return g.cloudLatency.IsSlow(float64(g.cfg.CloudSlowThreshold.Milliseconds()))
}

func (g *Gateway) backendFor(id backend.ID) backend.Backend {
	if id == backend.Cloud {
		return g.cloud
	}
	return g.local
}

func (g *Gateway) breakerFor(id backend.ID) *breaker.Breaker {
	if id == backend.Cloud {
		return g.cloudBreaker
	}
	return g.localBreaker
}

func (g *Gateway) trackerFor(id backend.ID) *latency.Tracker {
	if id == backend.Cloud {
		return g.cloudLatency
	}
	return g.localLatency
}

func (g *Gateway) timeoutFor(id backend.ID) time.Duration {
	if id == backend.Cloud {
		return g.cfg.CloudTimeout
	}
	return g.cfg.LocalTimeout
}

func otherBackend(id backend.ID) backend.ID {
	if id == backend.Cloud {
		return backend.Local
	}
	return backend.Cloud
}

// targetFor maps a routing intent to the backend it names.
func targetFor(intent router.Intent) backend.ID {
	switch intent {
	case router.ForceLocal, router.PreferLocal:
		return backend.Local
	default:
		return backend.Cloud
	}
}

// msSince returns elapsed milliseconds rounded to two decimals.
func msSince(t time.Time) float64 {
	return math.Round(float64(time.Since(t).Microseconds())/10) / 100
}
