// Package dispatch bridges transports to the routing gateway.
//
// The dispatcher receives queries from transports, runs them through the
// gateway, optionally synthesizes the spoken answer, and returns the result.
// The sender always receives an answer — this is an architectural invariant;
// backend failures surface as apology answers, never as dropped requests.
package dispatch

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/nadzzz/turnout/internal/gateway"
	"github.com/nadzzz/turnout/internal/message"
	"github.com/nadzzz/turnout/internal/tts"
)

// Gateway is the routing surface the dispatcher drives.
type Gateway interface {
	Process(ctx context.Context, q gateway.Query) (*gateway.Result, error)
	Statistics() gateway.Snapshot
	ResetStatistics()
}

// Dispatcher is the central bridge between transports and the gateway.
type Dispatcher struct {
	gateway     Gateway
	synthesizer tts.Synthesizer // nil if TTS is disabled
}

// New creates a Dispatcher over the given gateway.
func New(gw Gateway, synthesizer tts.Synthesizer) *Dispatcher {
	return &Dispatcher{gateway: gw, synthesizer: synthesizer}
}

// resolveResponseMode determines the effective ResponseMode for a query.
// If the caller didn't specify one, the default depends on whether TTS is available.
func (d *Dispatcher) resolveResponseMode(mode message.ResponseMode) message.ResponseMode {
	switch mode {
	case message.ResponseModeText, message.ResponseModeAudio, message.ResponseModeTextAudio:
		return mode
	default:
		// Default: text+audio when TTS is available, text-only otherwise.
		if d.synthesizer != nil {
			return message.ResponseModeTextAudio
		}
		return message.ResponseModeText
	}
}

// wantText returns true if the response mode includes text output.
func wantText(mode message.ResponseMode) bool {
	return mode == message.ResponseModeText || mode == message.ResponseModeTextAudio
}

// wantAudio returns true if the response mode includes audio output.
func wantAudio(mode message.ResponseMode) bool {
	return mode == message.ResponseModeAudio || mode == message.ResponseModeTextAudio
}

// Handle processes a single query through the full pipeline.
// This function is passed as the transport.Handler to each transport.
func (d *Dispatcher) Handle(ctx context.Context, q *message.Query) (*message.Answer, error) {
	start := time.Now()
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.Timestamp.IsZero() {
		q.Timestamp = start
	}

	logger := slog.With("query_id", q.ID, "source", q.Source)
	respMode := d.resolveResponseMode(q.ResponseMode)

	answer := &message.Answer{QueryID: q.ID}

	if q.Text == "" {
		answer.Error = "query has no text"
		logger.Warn("rejecting empty query")
		return answer, nil
	}

	logger.Info("query received", "response_mode", respMode, "text_length", len(q.Text))

	res, err := d.gateway.Process(ctx, gateway.Query{
		Text:              q.Text,
		ASRConfidence:     q.ASRConfidence,
		SessionContextLen: q.SessionContextLen,
	})
	if err != nil {
		// Only a dying context reaches here; the sender is already gone.
		return nil, err
	}

	answer.Backend = res.Backend
	answer.FromCache = res.FromCache
	answer.FallbackUsed = res.FallbackUsed
	answer.RaceWinner = res.RaceWinner
	answer.Success = res.Success
	if wantText(respMode) {
		answer.Text = res.Text
	}

	if wantAudio(respMode) && d.synthesizer != nil && res.Text != "" {
		lang := q.Language
		if lang == "" {
			lang = "cs"
		}
		logger.Debug("synthesizing answer", "language", lang, "text_length", len(res.Text))
		synthRes, synthErr := d.synthesizer.Synthesize(ctx, res.Text, tts.SynthesizeOpts{
			Language: lang,
		})
		if synthErr != nil {
			logger.Warn("speech synthesis failed, continuing without audio", "error", synthErr)
			if !wantText(respMode) {
				answer.Error = "speech synthesis unavailable"
			}
		} else {
			answer.SetResponseAudioBytes(synthRes.Audio)
			answer.ResponseContentType = synthRes.ContentType
		}
	}

	answer.LatencyMs = math.Round(float64(time.Since(start).Microseconds())/10) / 100

	logger.Info("query answered",
		"backend", answer.Backend,
		"from_cache", answer.FromCache,
		"fallback_used", answer.FallbackUsed,
		"success", answer.Success,
		"latency_ms", answer.LatencyMs)

	return answer, nil
}

// Statistics returns the gateway's statistics snapshot.
func (d *Dispatcher) Statistics() gateway.Snapshot {
	return d.gateway.Statistics()
}

// ResetStatistics clears the gateway's statistics.
func (d *Dispatcher) ResetStatistics() {
	d.gateway.ResetStatistics()
}
