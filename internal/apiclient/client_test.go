package apiclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(
		WithBaseURL(server.URL),
		WithMaxRetries(2),
		WithBaseBackoff(time.Millisecond),
	)
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestHealth(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		writeJSON(t, w, http.StatusOK, Health{
			Status: "ok",
			Engine: EngineStatus{Ready: true, Version: "7.1"},
		})
	})

	health, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
	assert.True(t, health.Engine.Ready)
	assert.Equal(t, "7.1", health.Engine.Version)
}

func TestGet_APIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusNotFound, map[string]string{
			"error": "job not found",
			"code":  "JOB_NOT_FOUND",
		})
	})

	_, err := client.Get(context.Background(), "job-missing")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "JOB_NOT_FOUND", apiErr.Code)
	assert.Equal(t, "job not found", apiErr.Message)
}

func TestGet_EmptyID(t *testing.T) {
	client := New()
	_, err := client.Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrJobIDRequired)
}

func TestGet_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(t, w, http.StatusOK, Job{ID: "job-1", Status: "RUNNING"})
	})

	jb, err := client.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", jb.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(t, w, http.StatusNotFound, map[string]string{
			"error": "job not found", "code": "JOB_NOT_FOUND",
		})
	})

	_, err := client.Get(context.Background(), "job-1")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestList(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jobs", r.URL.Path)
		writeJSON(t, w, http.StatusOK, map[string]any{
			"jobs": []Job{{ID: "job-2"}, {ID: "job-1"}},
		})
	})

	jobs, err := client.List(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-2", jobs[0].ID)
}

func TestCreate_StreamsMultipartUpload(t *testing.T) {
	input := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(input, []byte("video bytes"), 0o600))

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/jobs", r.URL.Path)

		mr, err := r.MultipartReader()
		require.NoError(t, err)

		// Option fields must arrive before the file part.
		var order []string
		values := map[string]string{}
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}
			order = append(order, part.FormName())
			if part.FormName() == "file" {
				assert.Equal(t, "clip.mp4", part.FileName())
				data, readErr := io.ReadAll(part)
				require.NoError(t, readErr)
				assert.Equal(t, "video bytes", string(data))
				continue
			}
			data, readErr := io.ReadAll(part)
			require.NoError(t, readErr)
			values[part.FormName()] = string(data)
		}

		assert.Equal(t, []string{"frame_rate", "width", "push_to_s3", "file"}, order)
		assert.Equal(t, "15", values["frame_rate"])
		assert.Equal(t, "480", values["width"])
		assert.Equal(t, "true", values["push_to_s3"])

		writeJSON(t, w, http.StatusAccepted, Job{ID: "job-1", Status: "IN_QUEUE"})
	})

	jb, err := client.Create(context.Background(), input, Options{FrameRate: 15, Width: 480, PushToS3: true})
	require.NoError(t, err)
	assert.Equal(t, "job-1", jb.ID)
	assert.Equal(t, "IN_QUEUE", jb.Status)
}

func TestCreate_SurfacesValidationError(t *testing.T) {
	input := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0o600))

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		writeJSON(t, w, http.StatusBadRequest, map[string]string{
			"error": "frame rate out of range", "code": "VALIDATION_ERROR",
		})
	})

	_, err := client.Create(context.Background(), input, Options{FrameRate: 99})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
}

func TestCreate_MissingFile(t *testing.T) {
	client := New()
	_, err := client.Create(context.Background(), "", Options{})
	assert.ErrorIs(t, err, ErrFileRequired)
}

func TestWait_PollsUntilTerminal(t *testing.T) {
	states := []Job{
		{ID: "job-1", Status: "RUNNING", Progress: 0.3},
		{ID: "job-1", Status: "RUNNING", Progress: 0.8},
		{ID: "job-1", Status: "COMPLETED", Progress: 1},
	}
	var call atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		i := int(call.Add(1)) - 1
		if i >= len(states) {
			i = len(states) - 1
		}
		writeJSON(t, w, http.StatusOK, states[i])
	})

	var seen []float64
	final, err := client.Wait(context.Background(), "job-1", time.Millisecond, func(jb *Job) {
		seen = append(seen, jb.Progress)
	})
	require.NoError(t, err)

	assert.Equal(t, "COMPLETED", final.Status)
	assert.Equal(t, []float64{0.3, 0.8, 1}, seen)
}

func TestWait_ContextCancelled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, Job{ID: "job-1", Status: "RUNNING"})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Wait(ctx, "job-1", 5*time.Millisecond, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDownload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jobs/job-1/result", r.URL.Path)
		w.Header().Set("Content-Type", "image/gif")
		_, _ = w.Write([]byte("GIF89a data"))
	})

	dst := filepath.Join(t.TempDir(), "out.gif")
	require.NoError(t, client.Download(context.Background(), "job-1", dst))

	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "GIF89a data", string(content))
}

func TestDownload_NotReady(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusConflict, map[string]string{
			"error": "conversion has not completed", "code": "RESULT_NOT_READY",
		})
	})

	err := client.Download(context.Background(), "job-1", filepath.Join(t.TempDir(), "out.gif"))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "RESULT_NOT_READY", apiErr.Code)
}

func TestNew_NoGlobalTimeout(t *testing.T) {
	// Create streams uploads of arbitrary size; a client-wide timeout
	// would cut them off mid-transfer.
	c := New()
	assert.Zero(t, c.httpClient.Timeout)
	assert.Equal(t, 30*time.Second, c.getTimeout)
}

func TestGet_SlowServerHitsDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		writeJSON(t, w, http.StatusOK, map[string]string{"id": "job-1", "status": "RUNNING"})
	}))
	t.Cleanup(server.Close)

	client := New(
		WithBaseURL(server.URL),
		WithMaxRetries(0),
		WithGetTimeout(20*time.Millisecond),
	)

	_, err := client.Get(context.Background(), "job-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context deadline exceeded")
}

func TestCreate_NotBoundByGetTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		time.Sleep(100 * time.Millisecond)
		writeJSON(t, w, http.StatusAccepted, map[string]string{"id": "job-1", "status": "IN_QUEUE"})
	}))
	t.Cleanup(server.Close)

	input := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(input, []byte("payload"), 0o600))

	client := New(WithBaseURL(server.URL), WithGetTimeout(20*time.Millisecond))
	created, err := client.Create(context.Background(), input, Options{})
	require.NoError(t, err)
	assert.Equal(t, "job-1", created.ID)
}
