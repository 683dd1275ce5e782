package relay

import (
	"context"
	"fmt"
	"io"
	"time"

	"speaker-split/internal/app/capability"
)

// simulate plays a deterministic scripted stream for the capability. Used by
// ModeSimulation and, when enabled, as the degraded-experience fallback after
// a failed backend stream open. It is never a silent default; callers reach
// it only through the explicit mode or fallback switches.
func (r *Relay) simulate(ctx context.Context, cap capability.Capability, req Request, w io.Writer) Outcome {
	r.metrics.SimulatedRuns.WithLabelValues(string(cap)).Inc()
	r.logger.Info("serving simulated stream", "job_id", req.JobID, "capability", cap)

	script := simulationScript(cap, req.JobID)
	for i, ev := range script {
		if i > 0 && r.opts.StepInterval > 0 {
			select {
			case <-ctx.Done():
				return r.finishInterrupted(ctx, req.JobID, cap, w)
			case <-time.After(r.opts.StepInterval):
			}
		}

		r.applyToJob(ctx, req.JobID, ev)
		writeLine(w, ev.Encode())
		r.metrics.EventsForwarded.WithLabelValues(string(cap)).Inc()
	}

	return Outcome{Success: true}
}

// simulationScript mirrors the stage sequence the real backend emits for each
// capability, ending in a mock terminal payload.
func simulationScript(cap capability.Capability, jobID string) []Event {
	outputRef := func(name string) string {
		return fmt.Sprintf("/api/files/%s/output/%s", jobID, name)
	}

	switch cap {
	case capability.SpeakerSplit:
		return []Event{
			progressEvent(20, "Loading AI models..."),
			progressEvent(25, "Converting audio format..."),
			progressEvent(30, "Loading audio file..."),
			progressEvent(40, "Transcribing with WhisperX..."),
			progressEvent(60, "Identifying speakers..."),
			progressEvent(70, "Found 2 speakers, separating audio..."),
			progressEvent(85, "Generating speaker audio files..."),
			{
				Progress: floatPtr(100),
				Stage:    "Complete",
				Outputs: map[string]string{
					"speakerAudio": outputRef(""),
					"transcript":   outputRef("transcript.json"),
				},
			},
		}
	case capability.Document:
		return []Event{
			progressEvent(20, "Collecting transcript..."),
			progressEvent(50, "Generating document..."),
			progressEvent(85, "Rendering output..."),
			{
				Progress: floatPtr(100),
				Stage:    "Complete",
				Outputs: map[string]string{
					"document": outputRef("summary.html"),
				},
			},
		}
	case capability.VoiceClone:
		return []Event{
			progressEvent(20, "Loading AI models..."),
			progressEvent(45, "Extracting voice profile..."),
			progressEvent(75, "Synthesizing audio..."),
			{
				Progress: floatPtr(100),
				Stage:    "Complete",
				Outputs: map[string]string{
					"clonedAudio": outputRef("cloned.wav"),
				},
			},
		}
	default: // transcription
		return []Event{
			progressEvent(25, "Loading AI models..."),
			progressEvent(30, "Converting audio format..."),
			progressEvent(35, "Loading audio file..."),
			progressEvent(45, "Transcribing with WhisperX..."),
			progressEvent(60, "Aligning word timestamps..."),
			progressEvent(75, "Identifying speakers..."),
			progressEvent(90, "Formatting transcript..."),
			{
				Progress: floatPtr(100),
				Stage:    "Complete",
				Outputs: map[string]string{
					"transcript": outputRef("transcript.json"),
					"subtitles":  outputRef("transcript.srt"),
					"json":       outputRef("transcript.json"),
				},
			},
		}
	}
}

func floatPtr(f float64) *float64 {
	return &f
}
