package race

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// delayedCall answers after d, or earlier with the context's error.
func delayedCall(answer string, d time.Duration) Call {
	return func(ctx context.Context, _ string) (string, error) {
		select {
		case <-time.After(d):
			return answer, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func failingCall(err error, d time.Duration) Call {
	return func(ctx context.Context, _ string) (string, error) {
		select {
		case <-time.After(d):
			return "", err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func TestFasterBackendWins(t *testing.T) {
	e := New(DefaultConfig())

	res, err := e.Race(context.Background(), "jaké je hlavní město Francie",
		delayedCall("cloud answer", 200*time.Millisecond),
		delayedCall("local answer", 800*time.Millisecond))

	require.NoError(t, err)
	assert.Equal(t, "cloud", res.Winner)
	assert.Equal(t, "cloud answer", res.Response, "the loser's answer must never replace the winner's")
	assert.Less(t, res.WinnerLatency, 500*time.Millisecond)
	assert.Greater(t, res.LoserLatency, res.WinnerLatency, "loser latency is telemetry for the slower call")
	assert.Empty(t, res.LoserErr)
}

func TestLocalCanWin(t *testing.T) {
	e := New(DefaultConfig())

	res, err := e.Race(context.Background(), "zapni světlo",
		delayedCall("cloud answer", 150*time.Millisecond),
		delayedCall("local answer", 10*time.Millisecond))

	require.NoError(t, err)
	assert.Equal(t, "local", res.Winner)
	assert.Equal(t, "local answer", res.Response)
}

func TestLoserExceedingBoundIsMarkedTimeout(t *testing.T) {
	e := New(Config{LoserTimeout: 50 * time.Millisecond})

	res, err := e.Race(context.Background(), "q",
		delayedCall("cloud answer", 5*time.Millisecond),
		delayedCall("local answer", 500*time.Millisecond))

	require.NoError(t, err)
	assert.Equal(t, "cloud", res.Winner)
	assert.Equal(t, "timeout", res.LoserErr)
	assert.Zero(t, res.LoserLatency, "an abandoned loser has no latency sample")
}

func TestLoserErrorIsTelemetryOnly(t *testing.T) {
	e := New(DefaultConfig())

	res, err := e.Race(context.Background(), "q",
		delayedCall("cloud answer", 5*time.Millisecond),
		failingCall(errors.New("ollama not running"), 30*time.Millisecond))

	require.NoError(t, err)
	assert.Equal(t, "cloud", res.Winner)
	assert.Equal(t, "cloud answer", res.Response)
	assert.Contains(t, res.LoserErr, "ollama not running")
	assert.Greater(t, res.LoserLatency, time.Duration(0))
}

func TestFailedFastContenderPromotesSlower(t *testing.T) {
	e := New(DefaultConfig())

	res, err := e.Race(context.Background(), "q",
		failingCall(errors.New("api key rejected"), 5*time.Millisecond),
		delayedCall("local answer", 60*time.Millisecond))

	require.NoError(t, err)
	assert.Equal(t, "local", res.Winner)
	assert.Equal(t, "local answer", res.Response)
	assert.Contains(t, res.LoserErr, "api key rejected")
}

func TestBothFailing(t *testing.T) {
	e := New(DefaultConfig())

	res, err := e.Race(context.Background(), "q",
		failingCall(errors.New("cloud down"), 5*time.Millisecond),
		failingCall(errors.New("local down"), 10*time.Millisecond))

	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "cloud down")
	assert.Contains(t, err.Error(), "local down")
}

func TestCancelledContextAbortsRace(t *testing.T) {
	e := New(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := e.Race(ctx, "q",
		delayedCall("cloud answer", 5*time.Second),
		delayedCall("local answer", 5*time.Second))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second, "cancellation must not wait out the calls")
}
