package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanProgress(t *testing.T) {
	stream := strings.Join([]string{
		"frame=12",
		"fps=48.5",
		"out_time_us=1000000",
		"speed=1.2x",
		"progress=continue",
		"frame=25",
		"fps=50.0",
		"out_time_us=2000000",
		"speed=1.3x",
		"progress=continue",
		"frame=40",
		"out_time_us=4000000",
		"speed=1.1x",
		"progress=end",
	}, "\n") + "\n"

	var updates []ProgressUpdate
	err := scanProgress(strings.NewReader(stream), 4*time.Second, func(u ProgressUpdate) {
		updates = append(updates, u)
	})
	require.NoError(t, err)
	require.Len(t, updates, 3)

	assert.InDelta(t, 0.25, updates[0].Ratio, 0.001)
	assert.Equal(t, int64(12), updates[0].Frame)
	assert.InDelta(t, 48.5, updates[0].FPS, 0.001)
	assert.Equal(t, time.Second, updates[0].OutTime)
	assert.Equal(t, "1.2x", updates[0].Speed)

	assert.InDelta(t, 0.5, updates[1].Ratio, 0.001)

	// The end marker always pins the ratio to one
	assert.Equal(t, 1.0, updates[2].Ratio)
	assert.Equal(t, int64(40), updates[2].Frame)
}

func TestScanProgress_UnknownDuration(t *testing.T) {
	stream := strings.Join([]string{
		"frame=10",
		"out_time_us=1000000",
		"progress=continue",
		"frame=20",
		"out_time_us=2000000",
		"progress=end",
	}, "\n") + "\n"

	var updates []ProgressUpdate
	err := scanProgress(strings.NewReader(stream), 0, func(u ProgressUpdate) {
		updates = append(updates, u)
	})
	require.NoError(t, err)
	require.Len(t, updates, 2)

	// Without a duration the ratio stays at zero until the end marker
	assert.Equal(t, 0.0, updates[0].Ratio)
	assert.Equal(t, 1.0, updates[1].Ratio)
}

func TestScanProgress_RatioClamped(t *testing.T) {
	stream := strings.Join([]string{
		"out_time_us=9000000",
		"progress=continue",
	}, "\n") + "\n"

	var updates []ProgressUpdate
	err := scanProgress(strings.NewReader(stream), 4*time.Second, func(u ProgressUpdate) {
		updates = append(updates, u)
	})
	require.NoError(t, err)
	require.Len(t, updates, 1)

	// Past-the-end timestamps clamp to one
	assert.Equal(t, 1.0, updates[0].Ratio)
}

func TestScanProgress_AlternateTimeKeys(t *testing.T) {
	stream := strings.Join([]string{
		"out_time_ms=1000",
		"progress=continue",
		"out_time=00:00:02.000000",
		"progress=continue",
	}, "\n") + "\n"

	var updates []ProgressUpdate
	err := scanProgress(strings.NewReader(stream), 4*time.Second, func(u ProgressUpdate) {
		updates = append(updates, u)
	})
	require.NoError(t, err)
	require.Len(t, updates, 2)

	assert.Equal(t, time.Second, updates[0].OutTime)
	assert.Equal(t, 2*time.Second, updates[1].OutTime)
}

func TestScanProgress_IgnoresNoise(t *testing.T) {
	stream := strings.Join([]string{
		"not a key value line",
		"frame=abc",
		"out_time=N/A",
		"speed=N/A",
		"frame=5",
		"progress=continue",
	}, "\n") + "\n"

	var updates []ProgressUpdate
	err := scanProgress(strings.NewReader(stream), time.Second, func(u ProgressUpdate) {
		updates = append(updates, u)
	})
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, int64(5), updates[0].Frame)
	assert.Empty(t, updates[0].Speed)
}

func TestParseOutTime(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"00:00:01.000000", 1000000},
		{"00:01:23.456789", 83456789},
		{"01:00:00.5", 3600500000},
		{"00:00:02", 2000000},
		{"N/A", -1},
		{"", -1},
		{"12:34", -1},
		{"aa:bb:cc", -1},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseOutTime(tt.input))
		})
	}
}

func TestClampRatio(t *testing.T) {
	assert.Equal(t, 0.0, clampRatio(-0.5))
	assert.Equal(t, 0.5, clampRatio(0.5))
	assert.Equal(t, 1.0, clampRatio(1.5))
}
