package turn

import "time"

// State is one of the four turn-taking states a call cycles through:
// idle while nothing is happening, listening while inbound audio is
// streamed to STT, processing while the agent is composing a reply,
// and speaking while TTS audio is playing back to the caller.
type State int

const (
	StateIdle State = iota
	StateListening
	StateProcessing
	StateSpeaking
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

type Strategy interface {
	Name() string
	BargeInEnabled() bool
}

type Manager interface {
	OnUserSpeechStart()
	OnUserSpeechEnd()
	OnAgentProcessStart()
	OnAgentProcessEnd()
	OnAgentSpeechStart()
	OnAgentSpeechEnd()
	OnAudioComplete()
	OnSTTInput(duration time.Duration)
	AddListener(listener StateListener)
	State() State
	BargeInLatency() time.Duration
}
