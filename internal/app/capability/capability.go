package capability

import (
	"fmt"
	"time"
)

// Capability identifies one of the billable processing operations. Each
// capability draws from its own credit pool and has its own streaming bound.
type Capability string

const (
	Transcription Capability = "transcription"
	SpeakerSplit  Capability = "speakerSplit"
	Document      Capability = "document"
	VoiceClone    Capability = "voiceClone"
)

// All lists every known capability in a stable order.
func All() []Capability {
	return []Capability{Transcription, SpeakerSplit, Document, VoiceClone}
}

// Parse converts a route/query value into a Capability. Route segments use
// kebab-case, credit pool keys use camelCase; both are accepted.
func Parse(s string) (Capability, error) {
	switch s {
	case "transcription", "transcribe":
		return Transcription, nil
	case "speakerSplit", "speaker-split", "split":
		return SpeakerSplit, nil
	case "document":
		return Document, nil
	case "voiceClone", "voice-clone":
		return VoiceClone, nil
	}
	return "", fmt.Errorf("unknown capability: %q", s)
}

// BackendPath returns the backend route segment for the capability.
func (c Capability) BackendPath() string {
	switch c {
	case Transcription:
		return "/transcribe"
	case SpeakerSplit:
		return "/split"
	case Document:
		return "/document"
	case VoiceClone:
		return "/voice-clone"
	}
	return "/" + string(c)
}

// StreamBound is the maximum wall-clock time a single streamed operation may
// take before the relay terminates it with a timeout event.
func (c Capability) StreamBound() time.Duration {
	switch c {
	case SpeakerSplit:
		return 15 * time.Minute
	case Document:
		return 5 * time.Minute
	default:
		return 10 * time.Minute
	}
}

func (c Capability) String() string {
	return string(c)
}
