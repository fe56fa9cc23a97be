package latency

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAverageMinMax(t *testing.T) {
	tr := New(Config{Enabled: true, Window: 10})
	for _, ms := range []float64{100, 200, 300} {
		tr.Record(ms)
	}

	assert.InDelta(t, 200.0, tr.Average(), 0.001)
	assert.Equal(t, 100.0, tr.Min())
	assert.Equal(t, 300.0, tr.Max())
	assert.Equal(t, 3, tr.Count())
}

func TestEmptyWindowReturnsZero(t *testing.T) {
	tr := New(DefaultConfig())

	assert.Zero(t, tr.Average())
	assert.Zero(t, tr.Min())
	assert.Zero(t, tr.Max())
	assert.Zero(t, tr.Percentile(95))
	assert.False(t, tr.IsSlow(0), "an empty window is never slow")
	assert.Equal(t, Stats{}, tr.Snapshot())
}

func TestWindowDropsOldestSample(t *testing.T) {
	tr := New(Config{Enabled: true, Window: 3})
	for _, ms := range []float64{1000, 10, 20, 30} {
		tr.Record(ms)
	}

	assert.Equal(t, 3, tr.Count())
	assert.Equal(t, 30.0, tr.Max(), "the 1000ms outlier fell out of the window")
	assert.InDelta(t, 20.0, tr.Average(), 0.001)
}

func TestNearestRankPercentile(t *testing.T) {
	tr := New(Config{Enabled: true, Window: 100})
	// 1..10: nearest-rank P50 is the 5th value, P90 the 9th, P99 the 10th.
	for i := 1; i <= 10; i++ {
		tr.Record(float64(i * 10))
	}

	tests := []struct {
		p    int
		want float64
	}{
		{50, 50},
		{90, 90},
		{95, 100},
		{99, 100},
		{100, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tr.Percentile(tt.p), "p%d", tt.p)
	}
}

func TestPercentileSingleSample(t *testing.T) {
	tr := New(DefaultConfig())
	tr.Record(42)

	assert.Equal(t, 42.0, tr.Percentile(50))
	assert.Equal(t, 42.0, tr.Percentile(99))
}

func TestIsSlow(t *testing.T) {
	tr := New(DefaultConfig())
	tr.Record(4000)
	tr.Record(4000)

	assert.True(t, tr.IsSlow(3000))
	assert.False(t, tr.IsSlow(5000))
}

func TestSnapshot(t *testing.T) {
	tr := New(Config{Enabled: true, Window: 10})
	for _, ms := range []float64{120.5, 80.25, 300} {
		tr.Record(ms)
	}

	s := tr.Snapshot()
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 80.25, s.Min)
	assert.Equal(t, 300.0, s.Max)
	assert.InDelta(t, 166.92, s.Avg, 0.01)
	assert.Equal(t, 120.5, s.P50)
}

func TestResetClearsWindow(t *testing.T) {
	tr := New(DefaultConfig())
	tr.Record(100)
	tr.Reset()

	assert.Zero(t, tr.Count())
	assert.Zero(t, tr.Average())
}

func TestDisabledTrackerRecordsNothing(t *testing.T) {
	tr := New(Config{Enabled: false, Window: 10})
	tr.Record(500)

	assert.Zero(t, tr.Count())
	assert.False(t, tr.IsSlow(1))
}
