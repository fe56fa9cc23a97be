// Package http implements the HTTP transport for turnout.
//
// This transport exposes a small REST API: query answering, direct speech
// synthesis, and the routing statistics surface, plus the generated Swagger
// docs. It is best suited for web clients, phones, and services that prefer
// HTTP-based communication.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/nadzzz/turnout/docs"
	"github.com/nadzzz/turnout/internal/message"
	"github.com/nadzzz/turnout/internal/transport"
	"github.com/nadzzz/turnout/internal/tts"
)

// Transport implements transport.Transport over HTTP.
type Transport struct {
	port        int
	stats       transport.StatsProvider
	synthesizer tts.Synthesizer // nil if TTS is disabled
	server      *http.Server
}

// New creates a new HTTP transport on the given port.
func New(port int, stats transport.StatsProvider, synthesizer tts.Synthesizer) *Transport {
	return &Transport{port: port, stats: stats, synthesizer: synthesizer}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Listen starts the HTTP server and routes incoming requests to the handler.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	t.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", t.port),
		Handler:           t.routes(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("http transport listening", "port", t.port)

	go func() {
		<-ctx.Done()
		slog.Info("http transport shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.server.Shutdown(shutdownCtx)
	}()

	if err := t.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// routes builds the request mux. Split out from Listen so tests can drive
// the endpoints without a listening socket.
func (t *Transport) routes(handler transport.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /ask", func(w http.ResponseWriter, r *http.Request) {
		t.handleAsk(w, r, handler)
	})
	mux.HandleFunc("POST /speak", t.handleSpeak)
	mux.HandleFunc("GET /stats", t.handleStats)
	mux.HandleFunc("POST /reset", t.handleReset)

	// Swagger UI — serves the generated OpenAPI docs.
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return mux
}

// handleAsk processes a POST /ask request.
//
// @Summary     Answer a user query
// @Description Routes the query between the cloud and local model backends (cache, privacy
// @Description scan, circuit breakers and fallback included) and returns the answer. Set
// @Description response_mode to "audio" or "text+audio" to additionally receive the spoken
// @Description answer as base64-encoded WAV.
// @Tags        ask
// @Accept      json
// @Produce     json
// @Param       query  body      message.Query  true  "Query to answer"
// @Success     200  {object}  message.Answer  "Routed answer"
// @Failure     400  {string}  string  "Invalid request body"
// @Failure     500  {string}  string  "Internal processing error"
// @Router      /ask [post]
func (t *Transport) handleAsk(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	var q message.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if q.Source == "" {
		q.Source = "http"
	}

	answer, err := handler(r.Context(), &q)
	if err != nil {
		slog.Error("ask failed", "error", err)
		http.Error(w, "ask error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(answer)
}

// speakRequest is the POST /speak body.
type speakRequest struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	Voice    string `json:"voice,omitempty"`
}

// handleSpeak synthesizes speech for the given text.
//
// @Summary     Synthesize speech
// @Description Renders the given text as spoken audio through the configured TTS engine
// @Description and returns a WAV file. Language defaults to Czech.
// @Tags        speak
// @Accept      json
// @Produce     audio/wav
// @Param       request  body      speakRequest  true  "Text to speak"
// @Success     200  {file}    file    "WAV audio"
// @Failure     400  {string}  string  "Invalid request body or empty text"
// @Failure     503  {string}  string  "Speech synthesis disabled"
// @Router      /speak [post]
func (t *Transport) handleSpeak(w http.ResponseWriter, r *http.Request) {
	if t.synthesizer == nil {
		http.Error(w, "speech synthesis disabled", http.StatusServiceUnavailable)
		return
	}

	var req speakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	lang := req.Language
	if lang == "" {
		lang = "cs"
	}

	res, err := t.synthesizer.Synthesize(r.Context(), req.Text, tts.SynthesizeOpts{
		Language: lang,
		Voice:    req.Voice,
	})
	if err != nil {
		slog.Error("speech synthesis failed", "error", err)
		http.Error(w, "synthesis error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Audio)))
	_, _ = w.Write(res.Audio)
}

// handleStats returns the routing statistics snapshot.
//
// @Summary     Routing statistics
// @Description Returns request counters, hit/failure/fallback rates, per-backend latency
// @Description windows, circuit breaker states and cache effectiveness.
// @Tags        stats
// @Produce     json
// @Success     200  {object}  gateway.Snapshot
// @Router      /stats [get]
func (t *Transport) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(t.stats.Statistics())
}

// handleReset clears the routing statistics.
//
// @Summary     Reset statistics
// @Description Clears counters, latency windows and the response cache. Circuit breaker
// @Description state is preserved: a tripped circuit keeps its recovery schedule.
// @Tags        stats
// @Produce     json
// @Success     200  {object}  map[string]string
// @Router      /reset [post]
func (t *Transport) handleReset(w http.ResponseWriter, _ *http.Request) {
	t.stats.ResetStatistics()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "reset"})
}

// Close gracefully shuts down the HTTP server.
func (t *Transport) Close() error {
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(ctx)
	}
	return nil
}
