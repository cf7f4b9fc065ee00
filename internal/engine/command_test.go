package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertFilter(t *testing.T) {
	tests := []struct {
		name      string
		frameRate int
		width     int
		expected  string
	}{
		{
			name:      "defaults",
			frameRate: 10,
			width:     320,
			expected:  "fps=10,scale=320:-1:flags=lanczos,split[a][b];[b]palettegen[p];[a][p]paletteuse",
		},
		{
			name:      "custom rate and width",
			frameRate: 24,
			width:     480,
			expected:  "fps=24,scale=480:-1:flags=lanczos,split[a][b];[b]palettegen[p];[a][p]paletteuse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, convertFilter(tt.frameRate, tt.width))
		})
	}
}

func TestBuildConvertArgs(t *testing.T) {
	spec := ConvertSpec{
		InputPath:  "/scratch/jobs/job-1/input.mp4",
		OutputPath: "/scratch/jobs/job-1/output.gif",
		FrameRate:  10,
		Width:      320,
	}

	args := buildConvertArgs(spec)

	// Input precedes the filter, output comes last
	inIdx := indexOf(t, args, "-i")
	assert.Equal(t, spec.InputPath, args[inIdx+1])
	assert.Equal(t, spec.OutputPath, args[len(args)-1])

	vfIdx := indexOf(t, args, "-vf")
	assert.Equal(t, convertFilter(10, 320), args[vfIdx+1])
	assert.Greater(t, vfIdx, inIdx)

	// Progress stream and non-interactive flags are always present
	progIdx := indexOf(t, args, "-progress")
	assert.Equal(t, "pipe:1", args[progIdx+1])
	assert.Contains(t, args, "-nostdin")
	assert.Contains(t, args, "-y")

	loopIdx := indexOf(t, args, "-loop")
	assert.Equal(t, "0", args[loopIdx+1])
}

func indexOf(t *testing.T, args []string, target string) int {
	t.Helper()
	for i, a := range args {
		if a == target {
			return i
		}
	}
	require.Failf(t, "missing argument", "expected %q in %v", target, args)
	return -1
}
