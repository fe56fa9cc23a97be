// Package race dispatches a query to both backends concurrently and keeps
// the faster answer.
//
// The loser is never fire-and-forget: it is awaited up to a bounded
// timeout for telemetry and then abandoned. Abandonment cannot leak a
// goroutine because results land in a buffered channel and each call
// carries its own deadline.
package race

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Call answers a query against one backend.
type Call func(ctx context.Context, query string) (string, error)

// Config tunes the executor.
type Config struct {
	// LoserTimeout bounds how long the executor waits for the slower
	// call after the winner returned.
	LoserTimeout time.Duration
}

// DefaultConfig returns the standard 5 second loser bound.
func DefaultConfig() Config {
	return Config{LoserTimeout: 5 * time.Second}
}

// Result is the outcome of one race.
type Result struct {
	// Winner is "cloud" or "local".
	Winner string

	// Response is the winner's answer. The loser's response is never
	// used, even when it arrives before the loser timeout.
	Response string

	// WinnerLatency is the winner's call duration.
	WinnerLatency time.Duration

	// LoserLatency is the loser's call duration when it completed within
	// the bound, zero otherwise. Telemetry only.
	LoserLatency time.Duration

	// LoserErr is empty on a clean loser, "timeout" when the loser
	// exceeded the bound, or the loser's error text.
	LoserErr string
}

// Executor runs cloud/local races.
type Executor struct {
	loserTimeout time.Duration
}

// New creates an executor.
func New(cfg Config) *Executor {
	if cfg.LoserTimeout <= 0 {
		cfg.LoserTimeout = DefaultConfig().LoserTimeout
	}
	return &Executor{loserTimeout: cfg.LoserTimeout}
}

type outcome struct {
	name    string
	text    string
	err     error
	latency time.Duration
}

// Race starts both calls and returns the first successful completion.
// When the faster call fails, the slower one may still win; when both
// fail, an error describing both failures is returned. The returned
// Result always carries whatever loser telemetry arrived in time.
func (e *Executor) Race(ctx context.Context, query string, cloudCall, localCall Call) (*Result, error) {
	slog.Info("race started", "query_len", len(query))

	// Buffer both slots so an abandoned contender can always deliver
	// its outcome and exit.
	results := make(chan outcome, 2)

	run := func(name string, call Call) {
		start := time.Now()
		text, err := call(ctx, query)
		results <- outcome{name: name, text: text, err: err, latency: time.Since(start)}
	}
	go run("cloud", cloudCall)
	go run("local", localCall)

	var first outcome
	select {
	case first = <-results:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if first.err == nil {
		res := &Result{
			Winner:        first.name,
			Response:      first.text,
			WinnerLatency: first.latency,
		}

		select {
		case second := <-results:
			res.LoserLatency = second.latency
			if second.err != nil {
				res.LoserErr = second.err.Error()
				slog.Warn("race loser errored", "winner", res.Winner, "loser_error", res.LoserErr)
			}
		case <-time.After(e.loserTimeout):
			res.LoserErr = "timeout"
			slog.Warn("race loser timed out", "winner", res.Winner, "bound", e.loserTimeout)
		}

		slog.Info("race completed",
			"winner", res.Winner,
			"winner_latency_ms", res.WinnerLatency.Milliseconds(),
			"loser_latency_ms", res.LoserLatency.Milliseconds())
		return res, nil
	}

	// The faster call failed; the slower one may still produce the answer.
	slog.Warn("race contender failed, waiting for the other",
		"failed", first.name, "error", first.err)

	select {
	case second := <-results:
		if second.err != nil {
			return nil, fmt.Errorf("both contenders failed: %s: %w; %s: %w",
				first.name, first.err, second.name, second.err)
		}
		res := &Result{
			Winner:        second.name,
			Response:      second.text,
			WinnerLatency: second.latency,
			LoserLatency:  first.latency,
			LoserErr:      first.err.Error(),
		}
		slog.Info("race completed",
			"winner", res.Winner,
			"winner_latency_ms", res.WinnerLatency.Milliseconds(),
			"loser_error", res.LoserErr)
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
