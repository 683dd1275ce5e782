package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speaker-split/internal/app/capability"
	"speaker-split/internal/app/jobs"
	"speaker-split/internal/app/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRelay(opts Options) (*Relay, jobs.Store) {
	store := jobs.NewMemoryStore()
	if opts.StepInterval == 0 {
		opts.StepInterval = time.Millisecond
	}
	r := New(opts, store, testLogger(), NewMetrics(prometheus.NewRegistry()))
	return r, store
}

func createJob(t *testing.T, store jobs.Store, id string) {
	t.Helper()
	require.NoError(t, store.Create(context.Background(), model.NewJob(id, "u1", "speakerSplit")))
}

// collectEvents parses a captured response body back into events.
func collectEvents(t *testing.T, body []byte) []Event {
	t.Helper()
	var events []Event
	c := NewConsumer(func(ev Event) { events = append(events, ev) })
	_, err := c.Write(body)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	return events
}

func TestRelay_PassThrough_ForwardsStreamAndFinalizesJob(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/split", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))

		fmt.Fprintln(w, `{"progress":10,"stage":"Loading AI models..."}`)
		fmt.Fprintln(w, `{"progress":50,"stage":"Transcribing with WhisperX..."}`)
		fmt.Fprintln(w, `{"progress":100,"stage":"Complete","speakerAudios":{"SPEAKER_00":"s0.wav"}}`)
	}))
	defer backend.Close()

	r, store := newTestRelay(Options{BackendURL: backend.URL, APIKey: "secret"})
	createJob(t, store, "job-1")

	var buf bytes.Buffer
	out := r.Run(context.Background(), capability.SpeakerSplit, Request{JobID: "job-1", AudioPath: "/tmp/a.wav"}, &buf)

	assert.True(t, out.Success)
	assert.Empty(t, out.Message)

	events := collectEvents(t, buf.Bytes())
	require.Len(t, events, 3)
	assert.True(t, events[2].Success())

	job, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusComplete, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, "/api/files/job-1/output/", job.Outputs[model.OutputSpeakerAudio])
	assert.NotNil(t, job.CompletedAt)
}

func TestRelay_PassThrough_MalformedLinesSkipped(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"progress":10}`)
		fmt.Fprintln(w, `this is not JSON`)
		fmt.Fprintln(w, `{"progress":100,"stage":"Complete"}`)
	}))
	defer backend.Close()

	r, store := newTestRelay(Options{BackendURL: backend.URL})
	createJob(t, store, "job-1")

	var buf bytes.Buffer
	out := r.Run(context.Background(), capability.Transcription, Request{JobID: "job-1"}, &buf)

	assert.True(t, out.Success)
	events := collectEvents(t, buf.Bytes())
	assert.Len(t, events, 2, "the garbled line is not forwarded")
}

func TestRelay_PassThrough_ErrorEventFailsJobWithoutConsumingStream(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"progress":30,"stage":"Transcribing with WhisperX..."}`)
		fmt.Fprintln(w, `{"error":"model crashed"}`)
	}))
	defer backend.Close()

	r, store := newTestRelay(Options{BackendURL: backend.URL})
	createJob(t, store, "job-1")

	var buf bytes.Buffer
	out := r.Run(context.Background(), capability.Transcription, Request{JobID: "job-1"}, &buf)

	assert.False(t, out.Success)
	assert.Equal(t, "model crashed", out.Message)

	job, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, job.Status)
	assert.Equal(t, "model crashed", job.Error)
	assert.Equal(t, 30, job.Progress)
}

func TestRelay_BackendUnreachable_ClassifiedTerminalEvent(t *testing.T) {
	r, store := newTestRelay(Options{BackendURL: "http://127.0.0.1:1"})
	createJob(t, store, "job-1")

	var buf bytes.Buffer
	out := r.Run(context.Background(), capability.SpeakerSplit, Request{JobID: "job-1"}, &buf)

	assert.False(t, out.Success)
	assert.Contains(t, out.Message, "Backend server is not running")

	events := collectEvents(t, buf.Bytes())
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Error, "Backend server is not running")

	job, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, job.Status)
}

func TestRelay_BackendUnreachable_FallbackSimulation(t *testing.T) {
	r, store := newTestRelay(Options{
		BackendURL:         "http://127.0.0.1:1",
		FallbackSimulation: true,
	})
	createJob(t, store, "job-1")

	var buf bytes.Buffer
	out := r.Run(context.Background(), capability.SpeakerSplit, Request{JobID: "job-1"}, &buf)

	assert.True(t, out.Success, "fallback serves the scripted stream instead of an error")

	events := collectEvents(t, buf.Bytes())
	require.NotEmpty(t, events)
	assert.True(t, events[len(events)-1].Success())

	job, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusComplete, job.Status)
}

func TestRelay_BackendUnreachable_FallbackRespectsAllowList(t *testing.T) {
	r, store := newTestRelay(Options{
		BackendURL:           "http://127.0.0.1:1",
		FallbackSimulation:   true,
		FallbackCapabilities: map[capability.Capability]bool{capability.Transcription: true},
	})
	createJob(t, store, "job-1")

	var buf bytes.Buffer
	out := r.Run(context.Background(), capability.SpeakerSplit, Request{JobID: "job-1"}, &buf)

	assert.False(t, out.Success, "speakerSplit is not on the fallback allow-list")
	assert.Contains(t, out.Message, "Backend server is not running")
}

func TestRelay_BackendRejectsStreamOpen(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer backend.Close()

	r, store := newTestRelay(Options{BackendURL: backend.URL})
	createJob(t, store, "job-1")

	var buf bytes.Buffer
	out := r.Run(context.Background(), capability.Document, Request{JobID: "job-1"}, &buf)

	assert.False(t, out.Success)
	assert.Equal(t, "Processing backend rejected the request (status 503)", out.Message)
}

func TestRelay_StreamEndsWithoutTerminalEvent(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"progress":42,"stage":"Identifying speakers..."}`)
	}))
	defer backend.Close()

	r, store := newTestRelay(Options{BackendURL: backend.URL})
	createJob(t, store, "job-1")

	var buf bytes.Buffer
	out := r.Run(context.Background(), capability.SpeakerSplit, Request{JobID: "job-1"}, &buf)

	assert.False(t, out.Success)
	assert.Equal(t, "Processing stream ended unexpectedly", out.Message)

	job, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, job.Status)
	assert.Equal(t, 42, job.Progress)
}

func TestRelay_StreamBoundExceeded_TimeoutTerminalEvent(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"progress":10,"stage":"Loading AI models..."}`)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		// Stall until the relay gives up and tears the request down.
		<-r.Context().Done()
	}))
	defer backend.Close()

	r, store := newTestRelay(Options{
		BackendURL: backend.URL,
		StreamBounds: map[capability.Capability]time.Duration{
			capability.Transcription: 30 * time.Millisecond,
		},
	})
	createJob(t, store, "job-1")

	var buf bytes.Buffer
	out := r.Run(context.Background(), capability.Transcription, Request{JobID: "job-1"}, &buf)

	assert.False(t, out.Success)
	assert.False(t, out.Aborted, "a deadline is a timeout, not a caller disconnect")
	assert.Equal(t, "Processing timed out after 30ms", out.Message)

	events := collectEvents(t, buf.Bytes())
	require.NotEmpty(t, events)
	assert.Contains(t, events[len(events)-1].Error, "Processing timed out")

	job, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, job.Status)
	assert.Equal(t, 10, job.Progress, "progress before the deadline is kept")
}

func TestRelay_OversizedLine_DistinctTerminalError(t *testing.T) {
	huge := strings.Repeat("a", 5*1024*1024)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"progress":10}`)
		fmt.Fprintf(w, "{\"progress\":100,\"stage\":\"Complete\",\"transcript\":\"%s\"}\n", huge)
	}))
	defer backend.Close()

	r, store := newTestRelay(Options{BackendURL: backend.URL})
	createJob(t, store, "job-1")

	var buf bytes.Buffer
	out := r.Run(context.Background(), capability.Transcription, Request{JobID: "job-1"}, &buf)

	assert.False(t, out.Success)
	assert.Equal(t, "Processing result was too large to relay", out.Message)

	job, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, job.Status)
}

func TestRelay_SimulationMode_DeterministicCompletion(t *testing.T) {
	for _, cap := range capability.All() {
		t.Run(string(cap), func(t *testing.T) {
			r, store := newTestRelay(Options{Mode: ModeSimulation})
			createJob(t, store, "job-1")

			var buf bytes.Buffer
			out := r.Run(context.Background(), cap, Request{JobID: "job-1"}, &buf)

			assert.True(t, out.Success)

			events := collectEvents(t, buf.Bytes())
			require.NotEmpty(t, events)
			assert.True(t, events[len(events)-1].Success())

			last := -1.0
			for _, ev := range events {
				if ev.Progress != nil {
					assert.GreaterOrEqual(t, *ev.Progress, last)
					last = *ev.Progress
				}
			}

			job, err := store.Get(context.Background(), "job-1")
			require.NoError(t, err)
			assert.Equal(t, model.StatusComplete, job.Status)
		})
	}
}

func TestRelay_CallerDisconnect_JobKeepsLastState(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"progress":10,"stage":"Loading AI models..."}`)
	}))
	defer backend.Close()

	r, store := newTestRelay(Options{BackendURL: backend.URL})
	createJob(t, store, "job-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	out := r.Run(ctx, capability.Transcription, Request{JobID: "job-1"}, &buf)

	assert.False(t, out.Success)
	assert.True(t, out.Aborted)

	job, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.False(t, job.Terminal(), "a disconnect must not fail the job")
}

func TestRelay_Terminate_EmitsSingleErrorEvent(t *testing.T) {
	r, store := newTestRelay(Options{BackendURL: "http://unused"})
	createJob(t, store, "job-1")

	var buf bytes.Buffer
	out := r.Terminate(context.Background(), "job-1", capability.VoiceClone, &buf, "no credits left")

	assert.False(t, out.Success)
	events := collectEvents(t, buf.Bytes())
	require.Len(t, events, 1)
	assert.Equal(t, "no credits left", events[0].Error)

	job, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, job.Status)
}
