package vad

// Event is the detection result for one frame.
type Event struct {
	Type EventType

	// Probability is the speech probability of the frame in [0, 1].
	Probability float64
}

// EventType enumerates detection states.
type EventType int

const (
	// SpeechStart marks the first frame of a speech segment.
	SpeechStart EventType = iota

	// SpeechContinue marks a frame inside a speech segment.
	SpeechContinue

	// SpeechEnd marks the frame that closed a speech segment.
	SpeechEnd

	// Silence marks a frame outside any speech segment.
	Silence
)

// IsSpeech reports whether the frame belongs to a speech segment.
func (t EventType) IsSpeech() bool { return t == SpeechStart || t == SpeechContinue }

func (t EventType) String() string {
	switch t {
	case SpeechStart:
		return "speech_start"
	case SpeechContinue:
		return "speech_continue"
	case SpeechEnd:
		return "speech_end"
	case Silence:
		return "silence"
	default:
		return "unknown"
	}
}
