package relay

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
	"time"

	"speaker-split/internal/app/capability"
	apperrors "speaker-split/internal/app/errors"
	"speaker-split/internal/app/jobs"
	"speaker-split/internal/app/model"
)

// Mode selects how the relay produces events. The switch is explicit so
// production and demo behavior can never be confused.
type Mode string

const (
	// ModeLive streams the backend's own response through to the caller.
	ModeLive Mode = "live"
	// ModeSimulation never contacts the backend; every operation is served a
	// deterministic scripted stream. Demo deployments only.
	ModeSimulation Mode = "simulation"
)

// Options configures a Relay.
type Options struct {
	BackendURL string
	APIKey     string
	Mode       Mode

	// FallbackSimulation, in live mode, serves a simulated stream when the
	// backend is unreachable or rejects the stream open, instead of the
	// classified error event. Off in production.
	FallbackSimulation bool
	// FallbackCapabilities limits the fallback to specific capabilities.
	// Nil means all capabilities degrade.
	FallbackCapabilities map[capability.Capability]bool

	// StepInterval is the pause between simulated events.
	StepInterval time.Duration

	// StreamBounds overrides the per-capability wall-clock bound. Missing or
	// non-positive entries fall back to the capability default.
	StreamBounds map[capability.Capability]time.Duration

	Client *http.Client
}

// Request carries the backend-specific job parameters. The orchestration
// tier treats everything past JobID as opaque.
type Request struct {
	JobID        string `json:"jobId"`
	AudioPath    string `json:"audioPath"`
	SpeakerCount int    `json:"speakerCount,omitempty"`
	OutputDir    string `json:"outputDir,omitempty"`
}

// Outcome summarizes how a stream terminated.
type Outcome struct {
	// Success is true iff the stream closed with a completion event.
	Success bool
	// Aborted is true when the caller went away before any terminal event.
	// The job is left at its last non-terminal state; the operation may
	// still complete out-of-band.
	Aborted bool
	// Message is the terminal error text, empty on success.
	Message string
}

// Relay turns one backend interaction into a sequence of newline-delimited
// JSON events written to the caller as they occur, applying each event to
// the job record on the way through.
type Relay struct {
	opts    Options
	jobs    jobs.Store
	logger  *slog.Logger
	metrics *Metrics
}

// New creates a relay bound to a job store.
func New(opts Options, store jobs.Store, logger *slog.Logger, metrics *Metrics) *Relay {
	if opts.Mode == "" {
		opts.Mode = ModeLive
	}
	if opts.Client == nil {
		// No client-level timeout: stream duration is bounded per capability
		// by the context in Run.
		opts.Client = &http.Client{}
	}
	if opts.StepInterval == 0 {
		opts.StepInterval = 400 * time.Millisecond
	}
	return &Relay{opts: opts, jobs: store, logger: logger, metrics: metrics}
}

// Run executes one streamed operation and writes its events to w. The stream
// is closed exactly once, after a terminal event or a caller disconnect. Run
// never returns a Go error to the caller: every failure it owns becomes a
// terminal error event on the stream.
//
// Caller disconnects are fire-and-forget: forwarding stops, the in-flight
// backend request is torn down with the context, and the job keeps its last
// non-terminal state.
func (r *Relay) Run(ctx context.Context, cap capability.Capability, req Request, w io.Writer) Outcome {
	ctx, cancel := context.WithTimeout(ctx, r.streamBound(cap))
	defer cancel()

	r.metrics.StreamsStarted.WithLabelValues(string(cap), string(r.opts.Mode)).Inc()

	var out Outcome
	if r.opts.Mode == ModeSimulation {
		out = r.simulate(ctx, cap, req, w)
	} else {
		out = r.passThrough(ctx, cap, req, w)
	}

	outcome := "error"
	switch {
	case out.Success:
		outcome = "success"
	case out.Aborted:
		outcome = "aborted"
	}
	r.metrics.StreamsFinished.WithLabelValues(string(cap), outcome).Inc()
	r.logger.Info("stream finished",
		"job_id", req.JobID,
		"capability", cap,
		"outcome", outcome,
		"message", out.Message,
	)
	return out
}

func (r *Relay) passThrough(ctx context.Context, cap capability.Capability, req Request, w io.Writer) Outcome {
	body, err := json.Marshal(req)
	if err != nil {
		return r.Terminate(ctx, req.JobID, cap, w, "Invalid job parameters")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.opts.BackendURL+cap.BackendPath(), bytes.NewReader(body))
	if err != nil {
		return r.Terminate(ctx, req.JobID, cap, w, "Failed to build backend request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.opts.APIKey != "" {
		httpReq.Header.Set("X-API-Key", r.opts.APIKey)
	}

	resp, err := r.opts.Client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return r.finishInterrupted(ctx, req.JobID, cap, w)
		}
		r.logger.Warn("backend unreachable",
			"job_id", req.JobID,
			"capability", cap,
			"backend_url", r.opts.BackendURL,
			"error", err,
		)
		if r.fallbackAllowed(cap) {
			return r.simulate(ctx, cap, req, w)
		}
		return r.Terminate(ctx, req.JobID, cap, w,
			"Backend server is not running. Please start the processing backend and try again.")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		r.logger.Warn("backend rejected stream open",
			"job_id", req.JobID,
			"capability", cap,
			"status", resp.StatusCode,
		)
		if r.fallbackAllowed(cap) {
			return r.simulate(ctx, cap, req, w)
		}
		return r.Terminate(ctx, req.JobID, cap, w,
			fmt.Sprintf("Processing backend rejected the request (status %d)", resp.StatusCode))
	}

	// The terminal event embeds the full transcript payload, so the line cap
	// must accommodate hours-long recordings.
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			// One garbled line must not abort the stream; later lines may
			// still be valid.
			r.metrics.MalformedLines.Inc()
			r.logger.Warn("skipping malformed stream line", "job_id", req.JobID)
			continue
		}

		r.applyToJob(ctx, req.JobID, ev)
		writeLine(w, line)
		r.metrics.EventsForwarded.WithLabelValues(string(cap)).Inc()

		if ev.Terminal() {
			return Outcome{Success: ev.Success(), Message: ev.Error}
		}
	}

	if ctx.Err() != nil {
		return r.finishInterrupted(ctx, req.JobID, cap, w)
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return r.Terminate(ctx, req.JobID, cap, w, "Processing result was too large to relay")
		}
		return r.Terminate(ctx, req.JobID, cap, w, "Lost connection to the processing backend")
	}
	// Backend closed the stream without a terminal event.
	return r.Terminate(ctx, req.JobID, cap, w, "Processing stream ended unexpectedly")
}

// streamBound returns the wall-clock bound for one streamed operation,
// preferring a configured override.
func (r *Relay) streamBound(cap capability.Capability) time.Duration {
	if d := r.opts.StreamBounds[cap]; d > 0 {
		return d
	}
	return cap.StreamBound()
}

// finishInterrupted distinguishes the capability deadline from a caller
// disconnect once the stream context has been cut.
func (r *Relay) finishInterrupted(ctx context.Context, jobID string, cap capability.Capability, w io.Writer) Outcome {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return r.Terminate(ctx, jobID, cap, w,
			fmt.Sprintf("Processing timed out after %s", r.streamBound(cap)))
	}
	return Outcome{Aborted: true, Message: "caller disconnected"}
}

// Terminate emits a terminal error event, finalizes the job and closes the
// stream without contacting the backend. The quota gate uses it for
// rejections; the relay uses it for every failure it owns.
func (r *Relay) Terminate(ctx context.Context, jobID string, cap capability.Capability, w io.Writer, message string) Outcome {
	ev := errorEvent(message)
	r.applyToJob(ctx, jobID, ev)
	writeLine(w, ev.Encode())
	r.metrics.EventsForwarded.WithLabelValues(string(cap)).Inc()
	return Outcome{Success: false, Message: message}
}

func (r *Relay) applyToJob(ctx context.Context, jobID string, ev Event) {
	// Job updates survive a cut request context; the record must reflect
	// the terminal event even when the caller is gone.
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	_, err := r.jobs.Update(ctx, jobID, func(j *model.Job) error {
		return j.Apply(jobUpdate(jobID, ev))
	})
	if err != nil && !errors.Is(err, apperrors.ErrJobFinalized) {
		r.logger.Error("job update failed", "job_id", jobID, "error", err)
	}
}

func (r *Relay) fallbackAllowed(cap capability.Capability) bool {
	if r.opts.Mode != ModeLive || !r.opts.FallbackSimulation {
		return false
	}
	return r.opts.FallbackCapabilities == nil || r.opts.FallbackCapabilities[cap]
}

// writeLine writes one event line and pushes it to the client immediately so
// progress arrives as it happens, not when the response buffer fills.
func writeLine(w io.Writer, line []byte) {
	w.Write(line)
	w.Write([]byte("\n"))
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
