// Package openai implements the Backend interface against the OpenAI Chat
// Completions API.
//
// Responses can be streamed over SSE so the first words of an answer reach
// the speaker pipeline before the full completion finishes. Rate limits and
// server errors are retried with exponential backoff; an unset API key makes
// the backend report itself unavailable without touching the network.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nadzzz/turnout/internal/backend"
	"github.com/nadzzz/turnout/internal/config"
)

const retryMaxDelay = 10 * time.Second

// systemPrompt sets the assistant persona for cloud completions.
const systemPrompt = `Jsi inteligentní hlasový asistent pro česky mluvícího uživatele.
Odpovídej VŽDY v češtině, přirozeně a příjemně. Buď stručný: maximálně 2-3 věty.
Pokud nevíš odpověď, řekni to upřímně.`

// Backend generates answers with the OpenAI chat API.
type Backend struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	streaming   bool
	maxRetries  int
	retryDelay  time.Duration
	client      *http.Client

	mu       sync.Mutex
	onStream backend.StreamCallback
}

// New creates a new OpenAI backend from config.
func New(cfg config.CloudConfig) *Backend {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	retryDelay := cfg.RetryDelay
	if retryDelay == 0 {
		retryDelay = time.Second
	}
	return &Backend{
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		streaming:   cfg.Streaming,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  retryDelay,
		client:      &http.Client{},
	}
}

// Name returns the backend identifier.
func (b *Backend) Name() backend.ID { return backend.Cloud }

// SetStreamingCallback registers a callback invoked for each response chunk
// when streaming is enabled. Passing nil disables chunk delivery.
func (b *Backend) SetStreamingCallback(fn backend.StreamCallback) {
	b.mu.Lock()
	b.onStream = fn
	b.mu.Unlock()
}

func (b *Backend) streamCallback() backend.StreamCallback {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.onStream
}

// CheckAvailable reports whether the OpenAI API is reachable. Any HTTP
// response counts as reachable; only transport failures and a missing API
// key do not.
func (b *Backend) CheckAvailable(ctx context.Context) error {
	if b.apiKey == "" {
		return backend.NewError(backend.Cloud, backend.ErrTypeUnavailable, "openai api key not configured", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL, nil)
	if err != nil {
		return backend.NewError(backend.Cloud, backend.ErrTypeUnavailable, "creating probe request", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return b.transportError(err)
	}
	resp.Body.Close()
	return nil
}

// Process generates an answer for the query using the cloud model. Rate
// limits, server errors and connection failures are retried with exponential
// backoff up to the configured attempt count.
func (b *Backend) Process(ctx context.Context, query string) (string, error) {
	if b.apiKey == "" {
		return "", backend.NewError(backend.Cloud, backend.ErrTypeUnavailable, "openai api key not configured", nil)
	}

	var lastErr error
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoffDelay(b.retryDelay, attempt)):
			}
			slog.Debug("retrying cloud completion", "attempt", attempt, "model", b.model)
		}

		answer, err := b.complete(ctx, query)
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

// Close is a no-op for the OpenAI backend.
func (b *Backend) Close() error { return nil }

// complete performs a single chat completion call, streaming if configured.
func (b *Backend) complete(ctx context.Context, query string) (string, error) {
	stream := b.streaming && b.streamCallback() != nil

	reqBody := chatRequest{
		Model: b.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: query},
		},
		Temperature: b.temperature,
		MaxTokens:   b.maxTokens,
		Stream:      stream,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", backend.NewError(backend.Cloud, backend.ErrTypeProcessing, "marshalling chat request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", backend.NewError(backend.Cloud, backend.ErrTypeProcessing, "creating chat request", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		return "", b.transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", b.apiError(resp)
	}

	if stream {
		return b.readStream(resp.Body, start)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", backend.NewError(backend.Cloud, backend.ErrTypeProcessing, "decoding chat response", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", backend.NewError(backend.Cloud, backend.ErrTypeProcessing, "no choices returned from chat api", nil)
	}

	answer := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if answer == "" {
		return "", backend.NewError(backend.Cloud, backend.ErrTypeProcessing, "empty response from chat api", nil)
	}

	slog.Debug("cloud completion complete",
		"model", b.model,
		"response_length", len(answer),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return answer, nil
}

// readStream consumes an SSE response body, forwarding each content delta to
// the registered callback and returning the assembled answer.
func (b *Backend) readStream(body io.Reader, start time.Time) (string, error) {
	callback := b.streamCallback()

	var sb strings.Builder
	firstChunk := true
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		content := chunk.Choices[0].Delta.Content
		if content == "" {
			continue
		}

		if firstChunk {
			slog.Debug("first chunk received", "latency", time.Since(start).Round(time.Millisecond))
			firstChunk = false
		}
		sb.WriteString(content)
		if callback != nil {
			callback(content, false)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", backend.NewError(backend.Cloud, backend.ErrTypeProcessing, "reading completion stream", err)
	}

	if callback != nil {
		callback("", true)
	}

	answer := strings.TrimSpace(sb.String())
	if answer == "" {
		return "", backend.NewError(backend.Cloud, backend.ErrTypeProcessing, "empty response from chat api", nil)
	}

	slog.Debug("streaming complete", "response_length", len(answer), "duration", time.Since(start).Round(time.Millisecond))
	return answer, nil
}

// apiError converts a non-200 response into a classified error, preferring
// the structured message the API returns over the raw body.
func (b *Backend) apiError(resp *http.Response) error {
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))

	message := "chat request failed"
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		message = "authentication failed: " + message
	case http.StatusTooManyRequests:
		message = "rate limited: " + message
	}
	return backend.NewError(backend.Cloud, backend.ErrTypeProcessing, message,
		&statusError{code: resp.StatusCode, body: string(respBody)})
}

// transportError classifies an error returned by the HTTP client.
func (b *Backend) transportError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return backend.NewError(backend.Cloud, backend.ErrTypeTimeout, "openai request timed out", err)
	case errors.Is(err, context.Canceled):
		return backend.NewError(backend.Cloud, backend.ErrTypeProcessing, "openai request cancelled", err)
	default:
		return backend.NewError(backend.Cloud, backend.ErrTypeUnavailable, "cannot reach openai api", err)
	}
}

// isRetryable reports whether the error is worth another attempt: connection
// failures, rate limits and 5xx responses are.
func isRetryable(err error) bool {
	if backend.IsUnavailable(err) {
		return true
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
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

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}
