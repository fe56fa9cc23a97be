// Package message defines the core data types flowing through the turnout pipeline.
package message

import (
	"encoding/base64"
	"time"
)

// ResponseMode controls what output the caller wants back.
// The caller declares desired output in the request body and the server
// populates or omits response fields accordingly.
type ResponseMode string

const (
	// ResponseModeText returns the answer as text only.
	ResponseModeText ResponseMode = "text"

	// ResponseModeAudio returns TTS-synthesized audio only (no text).
	ResponseModeAudio ResponseMode = "audio"

	// ResponseModeTextAudio returns both text and synthesized audio.
	ResponseModeTextAudio ResponseMode = "text+audio"
)

// Query represents an incoming user utterance from any transport.
type Query struct {
	// ID is a unique identifier for this query (UUID). Assigned by the
	// dispatcher when the transport left it empty.
	ID string `json:"id"`

	// Source identifies the sender (e.g., "console", "satellite-kitchen").
	Source string `json:"source"`

	// Text is the transcribed utterance to answer.
	Text string `json:"text"`

	// ASRConfidence is the speech-recognition confidence in [0, 1].
	// Zero means "not provided" and is treated as 1.0 (typed input).
	ASRConfidence float64 `json:"asr_confidence,omitempty"`

	// SessionContextLen is the length of the surrounding conversation
	// context, used as a routing hint.
	SessionContextLen int `json:"session_context_len,omitempty"`

	// ResponseMode controls the response output:
	//   "text"       (default) answer text only
	//   "audio"      synthesized speech only
	//   "text+audio" both
	ResponseMode ResponseMode `json:"response_mode,omitempty"`

	// Language is the ISO-639-1 code used for speech synthesis (e.g., "cs", "en").
	Language string `json:"language,omitempty"`

	// Timestamp is when the query was received by turnout.
	Timestamp time.Time `json:"timestamp"`
}

// Answer is the outcome of routing a query through the gateway.
type Answer struct {
	// QueryID is the original query ID.
	QueryID string `json:"query_id"`

	// Text is the spoken-style answer. Always populated: failure modes
	// resolve to a fixed apology rather than an empty answer.
	Text string `json:"text,omitempty"`

	// Backend names what produced the answer: "cloud", "local", "cache",
	// or "router" for clarification short-circuits.
	Backend string `json:"backend"`

	// FromCache is true when the answer was served without calling a backend.
	FromCache bool `json:"from_cache,omitempty"`

	// FallbackUsed is true when the primary backend failed and the other
	// one produced the answer.
	FallbackUsed bool `json:"fallback_used,omitempty"`

	// RaceWinner is set to the winning backend when race mode produced
	// the answer.
	RaceWinner string `json:"race_winner,omitempty"`

	// LatencyMs is the end-to-end processing time for this query.
	LatencyMs float64 `json:"latency_ms"`

	// Success is false when the answer is a degraded-service apology.
	Success bool `json:"success"`

	// ResponseAudio is the synthesized answer as base64-encoded audio.
	// Populated when response_mode is "audio" or "text+audio".
	ResponseAudio string `json:"response_audio,omitempty"`

	// ResponseContentType is the MIME type of ResponseAudio (e.g., "audio/wav").
	ResponseContentType string `json:"response_content_type,omitempty"`

	// Error is set if the transport-level request failed outright
	// (e.g., speech synthesis was requested but unavailable).
	Error string `json:"error,omitempty"`
}

// SetResponseAudioBytes base64-encodes raw audio bytes into ResponseAudio.
func (a *Answer) SetResponseAudioBytes(audio []byte) {
	if len(audio) > 0 {
		a.ResponseAudio = base64.StdEncoding.EncodeToString(audio)
	}
}
