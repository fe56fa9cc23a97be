package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/turnout/internal/gateway"
	"github.com/nadzzz/turnout/internal/message"
	"github.com/nadzzz/turnout/internal/transport"
	"github.com/nadzzz/turnout/internal/tts"
)

type fakeStats struct {
	snapshot gateway.Snapshot
	resets   int
}

func (f *fakeStats) Statistics() gateway.Snapshot { return f.snapshot }
func (f *fakeStats) ResetStatistics()             { f.resets++ }

type fakeSynth struct {
	audio    []byte
	err      error
	lastText string
	lastOpts tts.SynthesizeOpts
}

func (f *fakeSynth) Synthesize(_ context.Context, text string, opts tts.SynthesizeOpts) (*tts.SynthesizeResult, error) {
	f.lastText = text
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &tts.SynthesizeResult{Audio: f.audio, ContentType: "audio/wav"}, nil
}

func (f *fakeSynth) Close() error { return nil }

func echoHandler(answer *message.Answer) transport.Handler {
	return func(_ context.Context, q *message.Query) (*message.Answer, error) {
		a := *answer
		a.QueryID = q.ID
		return &a, nil
	}
}

func newTestServer(t *testing.T, tr *Transport, handler transport.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(tr.routes(handler))
	t.Cleanup(srv.Close)
	return srv
}

func TestAskReturnsAnswer(t *testing.T) {
	var gotQuery message.Query
	handler := func(_ context.Context, q *message.Query) (*message.Answer, error) {
		gotQuery = *q
		return &message.Answer{QueryID: q.ID, Text: "Rozsvítil jsem světlo.", Backend: "local", Success: true}, nil
	}
	srv := newTestServer(t, New(0, &fakeStats{}, nil), handler)

	body := `{"id":"q-1","text":"zapni světlo","asr_confidence":0.9}`
	resp, err := http.Post(srv.URL+"/ask", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var answer message.Answer
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&answer))
	assert.Equal(t, "q-1", answer.QueryID)
	assert.Equal(t, "Rozsvítil jsem světlo.", answer.Text)
	assert.True(t, answer.Success)

	assert.Equal(t, "zapni světlo", gotQuery.Text)
	assert.InDelta(t, 0.9, gotQuery.ASRConfidence, 0.0001)
	assert.Equal(t, "http", gotQuery.Source)
}

func TestAskRejectsInvalidJSON(t *testing.T) {
	srv := newTestServer(t, New(0, &fakeStats{}, nil), echoHandler(&message.Answer{}))

	resp, err := http.Post(srv.URL+"/ask", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAskHandlerErrorIsInternal(t *testing.T) {
	handler := func(context.Context, *message.Query) (*message.Answer, error) {
		return nil, errors.New("context canceled")
	}
	srv := newTestServer(t, New(0, &fakeStats{}, nil), handler)

	resp, err := http.Post(srv.URL+"/ask", "application/json", strings.NewReader(`{"text":"ahoj"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestSpeakReturnsWAV(t *testing.T) {
	synth := &fakeSynth{audio: []byte("RIFFfake")}
	srv := newTestServer(t, New(0, &fakeStats{}, synth), echoHandler(&message.Answer{}))

	body := `{"text":"Dobrý den.","language":"cs"}`
	resp, err := http.Post(srv.URL+"/speak", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/wav", resp.Header.Get("Content-Type"))

	audio, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFFfake"), audio)
	assert.Equal(t, "Dobrý den.", synth.lastText)
	assert.Equal(t, "cs", synth.lastOpts.Language)
}

func TestSpeakDefaultsToCzech(t *testing.T) {
	synth := &fakeSynth{audio: []byte{1}}
	srv := newTestServer(t, New(0, &fakeStats{}, synth), echoHandler(&message.Answer{}))

	resp, err := http.Post(srv.URL+"/speak", "application/json", strings.NewReader(`{"text":"Ahoj"}`))
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cs", synth.lastOpts.Language)
}

func TestSpeakRequiresText(t *testing.T) {
	srv := newTestServer(t, New(0, &fakeStats{}, &fakeSynth{}), echoHandler(&message.Answer{}))

	resp, err := http.Post(srv.URL+"/speak", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSpeakWithoutSynthesizer(t *testing.T) {
	srv := newTestServer(t, New(0, &fakeStats{}, nil), echoHandler(&message.Answer{}))

	resp, err := http.Post(srv.URL+"/speak", "application/json", strings.NewReader(`{"text":"Ahoj"}`))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestSpeakSynthesisError(t *testing.T) {
	synth := &fakeSynth{err: errors.New("piper down")}
	srv := newTestServer(t, New(0, &fakeStats{}, synth), echoHandler(&message.Answer{}))

	resp, err := http.Post(srv.URL+"/speak", "application/json", strings.NewReader(`{"text":"Ahoj"}`))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestStatsEndpoint(t *testing.T) {
	stats := &fakeStats{snapshot: gateway.Snapshot{TotalRequests: 12, CacheHits: 3, CacheHitRate: 25.0}}
	srv := newTestServer(t, New(0, stats, nil), echoHandler(&message.Answer{}))

	resp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap gateway.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, int64(12), snap.TotalRequests)
	assert.Equal(t, int64(3), snap.CacheHits)
	assert.InDelta(t, 25.0, snap.CacheHitRate, 0.001)
}

func TestResetEndpoint(t *testing.T) {
	stats := &fakeStats{}
	srv := newTestServer(t, New(0, stats, nil), echoHandler(&message.Answer{}))

	resp, err := http.Post(srv.URL+"/reset", "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, stats.resets)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "reset", body["status"])
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, New(0, &fakeStats{}, nil), echoHandler(&message.Answer{}))

	resp, err := http.Get(srv.URL + "/ask")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
