package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	jb := New()

	assert.NotEmpty(t, jb.ID)
	assert.Equal(t, StatusInQueue, jb.Status)
	assert.False(t, jb.CreatedAt.IsZero())
	assert.False(t, jb.UpdatedAt.IsZero())
}

func TestNewWithID(t *testing.T) {
	jb := NewWithID("test-job-123")

	assert.Equal(t, "test-job-123", jb.ID)
	assert.Equal(t, StatusInQueue, jb.Status)
}

func TestJob_ValidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{"IN_QUEUE to RUNNING", StatusInQueue, StatusRunning, false},
		{"IN_QUEUE to FAILED", StatusInQueue, StatusFailed, false},
		{"RUNNING to COMPLETED", StatusRunning, StatusCompleted, false},
		{"RUNNING to FAILED", StatusRunning, StatusFailed, false},
		{"IN_QUEUE to COMPLETED", StatusInQueue, StatusCompleted, true},
		{"RUNNING to IN_QUEUE", StatusRunning, StatusInQueue, true},
		{"COMPLETED to RUNNING", StatusCompleted, StatusRunning, true},
		{"FAILED to RUNNING", StatusFailed, StatusRunning, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jb := NewWithID("test")
			jb.Status = tt.from

			err := jb.TransitionTo(tt.to)

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestJob_Start(t *testing.T) {
	jb := New()
	beforeStart := time.Now()

	require.NoError(t, jb.Start())

	assert.Equal(t, StatusRunning, jb.Status)
	assert.False(t, jb.StartedAt.Before(beforeStart))
}

func TestJob_Complete(t *testing.T) {
	jb := New()
	require.NoError(t, jb.Start())

	require.NoError(t, jb.Complete())

	assert.Equal(t, StatusCompleted, jb.Status)
	assert.False(t, jb.CompletedAt.IsZero())
}

func TestJob_Fail(t *testing.T) {
	jb := New()
	require.NoError(t, jb.Start())

	require.NoError(t, jb.Fail("something went wrong"))

	assert.Equal(t, StatusFailed, jb.Status)
	assert.Equal(t, "something went wrong", jb.Error)
	assert.False(t, jb.CompletedAt.IsZero())
}

func TestJob_Fail_FromQueue(t *testing.T) {
	// A job that never started can still fail (probe or intake errors).
	jb := New()

	require.NoError(t, jb.Fail("input has no video stream"))
	assert.Equal(t, StatusFailed, jb.Status)
}

func TestJob_TerminalStatesAreAbsorbing(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed}
	all := []Status{StatusInQueue, StatusRunning, StatusCompleted, StatusFailed}

	for _, from := range terminal {
		for _, to := range all {
			t.Run(string(from)+"_to_"+string(to), func(t *testing.T) {
				jb := NewWithID("test")
				jb.Status = from

				assert.ErrorIs(t, jb.TransitionTo(to), ErrInvalidTransition)
			})
		}
	}
}

func TestJob_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusInQueue, false},
		{StatusRunning, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			jb := NewWithID("test")
			jb.Status = tt.status

			assert.Equal(t, tt.terminal, jb.IsTerminal())
		})
	}
}

func TestJob_UpdateProgress(t *testing.T) {
	tests := []struct {
		name     string
		ratio    float64
		expected float64
	}{
		{"half", 0.5, 0.5},
		{"zero", 0, 0},
		{"done", 1, 1},
		{"below range", -0.1, 0},
		{"above range", 1.5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jb := New()
			jb.UpdateProgress(tt.ratio, "")
			assert.InDelta(t, tt.expected, jb.Progress, 1e-9)
		})
	}
}

func TestJob_UpdateProgress_EmptyMessageKeepsPrevious(t *testing.T) {
	jb := New()

	jb.UpdateProgress(0.1, "frame=1 dropped")
	jb.UpdateProgress(0.2, "")

	assert.InDelta(t, 0.2, jb.Progress, 1e-9)
	assert.Equal(t, "frame=1 dropped", jb.Message)
}

func TestJob_SetOutput(t *testing.T) {
	jb := New()

	jb.SetOutput("/scratch/jobs/job-1/output.gif", 2048, "https://bucket.s3.eu-west-1.amazonaws.com/results/job-1.gif")

	assert.Equal(t, "/scratch/jobs/job-1/output.gif", jb.OutputPath)
	assert.Equal(t, int64(2048), jb.OutputSize)
	assert.Equal(t, "https://bucket.s3.eu-west-1.amazonaws.com/results/job-1.gif", jb.ResultURL)
}

func TestJob_Clone(t *testing.T) {
	jb := New()
	jb.Status = StatusRunning
	jb.UpdateProgress(0.5, "frame=42")
	jb.SetDuration(4 * time.Second)

	clone := jb.Clone()

	assert.Equal(t, jb.ID, clone.ID)
	assert.Equal(t, jb.Status, clone.Status)
	assert.InDelta(t, jb.Progress, clone.Progress, 1e-9)
	assert.Equal(t, jb.Message, clone.Message)
	assert.Equal(t, jb.Duration, clone.Duration)

	// Clone is independent of the original.
	clone.Status = StatusCompleted
	assert.Equal(t, StatusRunning, jb.Status)
}

func TestJob_GetStatus_ThreadSafe(t *testing.T) {
	jb := New()

	done := make(chan bool)
	go func() {
		for i := 0; i < 100; i++ {
			_ = jb.GetStatus()
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 100; i++ {
			_ = jb.Start()
		}
		done <- true
	}()

	<-done
	<-done
	// If no race conditions, test passes
}
