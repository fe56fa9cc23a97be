package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/turnout/internal/backend"
	"github.com/nadzzz/turnout/internal/config"
)

func testBackend(url string) *Backend {
	return New(config.LocalConfig{
		Endpoint:    url,
		Model:       "llama3.2:3b",
		Temperature: 0.7,
		NumPredict:  150,
		TopK:        40,
		TopP:        0.9,
		MaxRetries:  2,
		RetryDelay:  time.Millisecond,
	})
}

func generateHandler(t *testing.T, response string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		json.NewEncoder(w).Encode(generateResponse{
			Response:     response,
			EvalCount:    42,
			EvalDuration: int64(time.Second),
		})
	}
}

func TestProcessReturnsTrimmedAnswer(t *testing.T) {
	srv := httptest.NewServer(generateHandler(t, "  Jsou tři hodiny.\n"))
	defer srv.Close()

	answer, err := testBackend(srv.URL).Process(context.Background(), "kolik je hodin")
	require.NoError(t, err)
	assert.Equal(t, "Jsou tři hodiny.", answer)
}

func TestProcessSendsModelAndOptions(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(generateResponse{Response: "ok"})
	}))
	defer srv.Close()

	_, err := testBackend(srv.URL).Process(context.Background(), "zapni světlo")
	require.NoError(t, err)

	assert.Equal(t, "llama3.2:3b", got.Model)
	assert.False(t, got.Stream)
	assert.InDelta(t, 0.7, got.Options.Temperature, 0.001)
	assert.Equal(t, 150, got.Options.NumPredict)
	assert.Equal(t, 40, got.Options.TopK)
	assert.InDelta(t, 0.9, got.Options.TopP, 0.001)
	assert.Contains(t, got.Prompt, "Dotaz uživatele: zapni světlo")
	assert.Contains(t, got.Prompt, "hlasový asistent")
}

func TestRetriesAfterServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "model load failed", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(generateResponse{Response: "druhý pokus"})
	}))
	defer srv.Close()

	answer, err := testBackend(srv.URL).Process(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, "druhý pokus", answer)
	assert.Equal(t, int32(2), calls.Load())
}

func TestModelErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testBackend(srv.URL).Process(context.Background(), "test")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, backend.IsUnavailable(err))
	assert.False(t, backend.IsTimeout(err))
}

func TestConnectionFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(generateHandler(t, "unused"))
	url := srv.URL
	srv.Close()

	_, err := testBackend(url).Process(context.Background(), "test")
	require.Error(t, err)
	assert.True(t, backend.IsUnavailable(err))
}

func TestTimeoutIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := testBackend(srv.URL).Process(ctx, "test")
	require.Error(t, err)
	assert.True(t, backend.IsTimeout(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmptyResponseIsError(t *testing.T) {
	srv := httptest.NewServer(generateHandler(t, "   \n"))
	defer srv.Close()

	_, err := testBackend(srv.URL).Process(context.Background(), "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}

func TestCheckAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.Write([]byte(`{"models":[{"name":"llama3.2:3b"},{"name":"qwen2.5:1.5b"}]}`))
	}))
	defer srv.Close()

	assert.NoError(t, testBackend(srv.URL).CheckAvailable(context.Background()))
}

func TestCheckAvailableServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := testBackend(url).CheckAvailable(context.Background())
	require.Error(t, err)
	assert.True(t, backend.IsUnavailable(err))
}

func TestBackoffDelayDoubles(t *testing.T) {
	base := time.Second
	assert.Equal(t, time.Second, backoffDelay(base, 1))
	assert.Equal(t, 2*time.Second, backoffDelay(base, 2))
	assert.Equal(t, 4*time.Second, backoffDelay(base, 3))
	assert.Equal(t, retryMaxDelay, backoffDelay(base, 10))
}

func TestDefaultsFilledIn(t *testing.T) {
	b := New(config.LocalConfig{})
	assert.Equal(t, "http://localhost:11434", b.endpoint)
	assert.Equal(t, "llama3.2:3b", b.model)
	assert.Equal(t, time.Second, b.retryDelay)
	assert.Equal(t, backend.Local, b.Name())
}

func TestEndpointTrailingSlashTrimmed(t *testing.T) {
	b := New(config.LocalConfig{Endpoint: "http://ollama:11434/"})
	assert.False(t, strings.HasSuffix(b.endpoint, "/"))
}
