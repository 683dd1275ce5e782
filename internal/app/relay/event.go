package relay

import (
	"encoding/json"
	"fmt"
	"strings"

	"speaker-split/internal/app/model"
)

// Event is one self-contained JSON message on the wire, terminated by a
// single newline. All fields are optional per-message. Completion is marked
// by convention: progress == 100 with no error field.
type Event struct {
	Progress      *float64          `json:"progress,omitempty"`
	Stage         string            `json:"stage,omitempty"`
	Error         string            `json:"error,omitempty"`
	Outputs       map[string]string `json:"outputs,omitempty"`
	Transcript    json.RawMessage   `json:"transcript,omitempty"`
	SpeakerAudios json.RawMessage   `json:"speakerAudios,omitempty"`
}

// Terminal reports whether no further events follow this one.
func (e Event) Terminal() bool {
	return e.Error != "" || e.Success()
}

// Success reports whether this event marks successful completion.
func (e Event) Success() bool {
	return e.Error == "" && e.Progress != nil && *e.Progress >= 100
}

// Encode renders the event as a wire line, without the newline terminator;
// the writer owns framing.
func (e Event) Encode() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		// Event only holds marshalable types; this never trips in practice.
		data = []byte(`{"error":"event encoding failed"}`)
	}
	return data
}

func errorEvent(message string) Event {
	return Event{Error: message}
}

func progressEvent(progress float64, stage string) Event {
	return Event{Progress: &progress, Stage: stage}
}

// jobUpdate normalizes a wire event into a job record update.
func jobUpdate(jobID string, ev Event) model.Update {
	u := model.Update{
		Progress: ev.Progress,
		Stage:    ev.Stage,
		Error:    ev.Error,
	}

	if ev.Success() {
		u.Status = model.StatusComplete
	} else if ev.Error == "" && ev.Stage != "" {
		u.Status = statusForStage(ev.Stage)
	}

	outputs := make(map[model.OutputKind]string)
	for kind, ref := range ev.Outputs {
		if k, ok := outputKind(kind); ok {
			outputs[k] = ref
		}
	}
	// The backend reports some artifacts as typed payload fields rather than
	// output references; record them under the files it writes for the job.
	if len(ev.Transcript) > 0 {
		outputs[model.OutputTranscript] = fmt.Sprintf("/api/files/%s/output/transcript.json", jobID)
	}
	if len(ev.SpeakerAudios) > 0 {
		outputs[model.OutputSpeakerAudio] = fmt.Sprintf("/api/files/%s/output/", jobID)
	}
	if len(outputs) > 0 {
		u.Outputs = outputs
	}

	return u
}

func outputKind(s string) (model.OutputKind, bool) {
	switch model.OutputKind(s) {
	case model.OutputTranscript, model.OutputSubtitles, model.OutputJSON,
		model.OutputSpeakerAudio, model.OutputDocument, model.OutputClonedAudio:
		return model.OutputKind(s), true
	}
	return "", false
}

// statusForStage maps the backend's free-form stage labels onto the job's
// capability sub-stages. Unrecognized labels stay in the generic processing
// state; stage text is advisory, never control flow.
func statusForStage(stage string) model.Status {
	s := strings.ToLower(stage)
	switch {
	case strings.Contains(s, "transcrib"):
		return model.StatusTranscribing
	case strings.Contains(s, "identifying speakers"), strings.Contains(s, "diariz"):
		return model.StatusDiarizing
	case strings.Contains(s, "split"), strings.Contains(s, "separating"),
		strings.Contains(s, "speaker audio"):
		return model.StatusSplitting
	default:
		return model.StatusProcessing
	}
}
