// Package ollama implements the Backend interface against a self-hosted
// Ollama server.
//
// It speaks Ollama's native /api/generate endpoint and probes /api/tags to
// detect whether the server is reachable at all. Transient failures
// (connection errors, 5xx responses) are retried with exponential backoff;
// timeouts are not, since the caller's deadline is already spent.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nadzzz/turnout/internal/backend"
	"github.com/nadzzz/turnout/internal/config"
)

const retryMaxDelay = 10 * time.Second

// promptTemplate wraps the user query in the assistant persona. The model is
// instructed to answer in Czech and keep it short; num_predict caps the
// output on top of that.
const promptTemplate = `Jsi inteligentní hlasový asistent pro česky mluvícího uživatele.

Pravidla:
- Odpovídej VŽDY v češtině
- Buď stručný: maximálně 2-3 věty
- Odpovídej přirozeně a příjemně
- Pokud nevíš odpověď, řekni to upřímně

Dotaz uživatele: %s

Odpověď:`

// Backend generates answers with a local Ollama model.
type Backend struct {
	endpoint    string
	model       string
	temperature float64
	numPredict  int
	topK        int
	topP        float64
	maxRetries  int
	retryDelay  time.Duration
	client      *http.Client
}

// New creates a new Ollama backend from config.
func New(cfg config.LocalConfig) *Backend {
	endpoint := strings.TrimSuffix(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = "llama3.2:3b"
	}
	retryDelay := cfg.RetryDelay
	if retryDelay == 0 {
		retryDelay = time.Second
	}
	return &Backend{
		endpoint:    endpoint,
		model:       model,
		temperature: cfg.Temperature,
		numPredict:  cfg.NumPredict,
		topK:        cfg.TopK,
		topP:        cfg.TopP,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  retryDelay,
		client:      &http.Client{},
	}
}

// Name returns the backend identifier.
func (b *Backend) Name() backend.ID { return backend.Local }

// CheckAvailable probes the Ollama server's /api/tags endpoint. A nil return
// means the server is up and answering; the error otherwise classifies why
// it is not.
func (b *Backend) CheckAvailable(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint+"/api/tags", nil)
	if err != nil {
		return backend.NewError(backend.Local, backend.ErrTypeUnavailable, "creating probe request", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return b.transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return backend.NewError(backend.Local, backend.ErrTypeUnavailable,
			fmt.Sprintf("ollama server not responding (status %d)", resp.StatusCode), nil)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return backend.NewError(backend.Local, backend.ErrTypeUnavailable, "decoding tags response", err)
	}

	slog.Info("ollama server available", "models", len(tags.Models), "endpoint", b.endpoint)
	return nil
}

// Process generates an answer for the query using the local model. Connection
// failures and server errors are retried with exponential backoff up to the
// configured attempt count.
func (b *Backend) Process(ctx context.Context, query string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoffDelay(b.retryDelay, attempt)):
			}
			slog.Debug("retrying local generation", "attempt", attempt, "model", b.model)
		}

		answer, err := b.generate(ctx, query)
		if err == nil {
			return answer, nil
		}
		if !isRetryable(err) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Close is a no-op for the Ollama backend.
func (b *Backend) Close() error { return nil }

// generate performs a single /api/generate call.
func (b *Backend) generate(ctx context.Context, query string) (string, error) {
	reqBody := generateRequest{
		Model:  b.model,
		Prompt: fmt.Sprintf(promptTemplate, query),
		Stream: false,
		Options: generateOptions{
			Temperature: b.temperature,
			NumPredict:  b.numPredict,
			TopK:        b.topK,
			TopP:        b.topP,
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", backend.NewError(backend.Local, backend.ErrTypeProcessing, "marshalling request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+"/api/generate", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", backend.NewError(backend.Local, backend.ErrTypeProcessing, "creating request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		return "", b.transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", backend.NewError(backend.Local, backend.ErrTypeProcessing,
			"ollama api error", &statusError{code: resp.StatusCode, body: string(respBody)})
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", backend.NewError(backend.Local, backend.ErrTypeProcessing, "decoding response", err)
	}

	answer := strings.TrimSpace(result.Response)
	if answer == "" {
		return "", backend.NewError(backend.Local, backend.ErrTypeProcessing, "empty response from local model", nil)
	}

	evalSecs := float64(result.EvalDuration) / 1e9
	tokensPerSec := 0.0
	if evalSecs > 0 {
		tokensPerSec = float64(result.EvalCount) / evalSecs
	}
	slog.Debug("local generation complete",
		"model", b.model,
		"tokens", result.EvalCount,
		"tokens_per_sec", fmt.Sprintf("%.1f", tokensPerSec),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return answer, nil
}

// transportError classifies an error returned by the HTTP client. Anything
// that is not a context error means the server could not be reached.
func (b *Backend) transportError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return backend.NewError(backend.Local, backend.ErrTypeTimeout, "ollama request timed out", err)
	case errors.Is(err, context.Canceled):
		return backend.NewError(backend.Local, backend.ErrTypeProcessing, "ollama request cancelled", err)
	default:
		return backend.NewError(backend.Local, backend.ErrTypeUnavailable, "cannot reach ollama server", err)
	}
}

// isRetryable reports whether the error is worth another attempt: connection
// failures and 5xx responses are, timeouts and model errors are not.
func isRetryable(err error) bool {
	if backend.IsUnavailable(err) {
		return true
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500
	}
	return false
}

// backoffDelay returns the wait before retry number attempt (1-based),
// doubling from the base delay and capped at retryMaxDelay.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base * time.Duration(1<<uint(attempt-1))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

// statusError carries the HTTP status for retry classification.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

// --- Wire types ---

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
	TopK        int     `json:"top_k"`
	TopP        float64 `json:"top_p"`
}

type generateResponse struct {
	Response     string `json:"response"`
	EvalCount    int    `json:"eval_count"`
	EvalDuration int64  `json:"eval_duration"`
}
