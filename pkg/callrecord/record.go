// Package callrecord holds the per-call memory the call manager owns:
// identity, direction, endpoints, lifecycle timestamps, transcript and
// arbitrary metadata, plus the carrier-visible signaling state.
package callrecord

import (
	"sync"
	"time"

	"github.com/vardirect/callbridge/pkg/turn"
)

// Direction is the call's origination direction.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// SignalingStatus is the carrier-visible call status, a closed set.
type SignalingStatus string

const (
	StatusQueued     SignalingStatus = "queued"
	StatusInitiated  SignalingStatus = "initiated"
	StatusRinging    SignalingStatus = "ringing"
	StatusInProgress SignalingStatus = "in-progress"
	StatusCompleted  SignalingStatus = "completed"
	StatusBusy       SignalingStatus = "busy"
	StatusFailed     SignalingStatus = "failed"
	StatusNoAnswer   SignalingStatus = "no-answer"
	StatusCanceled   SignalingStatus = "canceled"
)

// terminal reports whether a signaling status ends the call.
func (s SignalingStatus) terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusBusy, StatusNoAnswer, StatusCanceled:
		return true
	default:
		return false
	}
}

// TranscriptRole distinguishes caller speech from the agent's replies.
type TranscriptRole string

const (
	RoleUser      TranscriptRole = "user"
	RoleAssistant TranscriptRole = "assistant"
)

// TranscriptEntry is created once and never mutated afterward.
type TranscriptEntry struct {
	Role       TranscriptRole
	Text       string
	Timestamp  time.Time
	Confidence *float64
}

// MetaGreeting is the reserved metadata key holding a pending greeting
// to speak once the media stream attaches.
const MetaGreeting = "_greeting"

// Record is a single call's identity, lifecycle and transcript. All
// field access from outside this package goes through its methods so
// the call manager's per-call actor is the only mutator.
type Record struct {
	mu sync.Mutex

	CallSID   string
	AccountID string
	StreamSID string

	Direction Direction
	From      string
	To        string

	CreatedAt  time.Time
	AnsweredAt time.Time
	EndedAt    time.Time

	Status            SignalingStatus
	ConversationState turn.State

	Transcript []TranscriptEntry
	Metadata   map[string]string

	RecordingURL string
}

// New creates a record in the queued/initiated state.
func New(callSID, accountID string, direction Direction, from, to string) *Record {
	return &Record{
		CallSID:           callSID,
		AccountID:         accountID,
		Direction:         direction,
		From:              from,
		To:                to,
		CreatedAt:         time.Now(),
		Status:            StatusInitiated,
		ConversationState: turn.StateIdle,
		Metadata:          make(map[string]string),
	}
}

// SetStatus applies a new signaling status, returning whether the call
// just became terminal (for one-time resource release).
func (r *Record) SetStatus(status SignalingStatus) (becameTerminal bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wasTerminal := r.Status.terminal()
	r.Status = status
	return !wasTerminal && status.terminal()
}

func (r *Record) GetStatus() SignalingStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Status
}

func (r *Record) IsTerminal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Status.terminal()
}

// MarkAnswered stamps AnsweredAt if not already set.
func (r *Record) MarkAnswered() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.AnsweredAt.IsZero() {
		r.AnsweredAt = time.Now()
	}
}

// MarkEnded stamps EndedAt if not already set, and returns the
// resulting duration in whole seconds (0 if AnsweredAt is unset).
func (r *Record) MarkEnded() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.EndedAt.IsZero() {
		r.EndedAt = time.Now()
	}
	if r.AnsweredAt.IsZero() {
		return 0
	}
	d := r.EndedAt.Sub(r.AnsweredAt)
	if d < 0 {
		return 0
	}
	return int64(d.Seconds())
}

func (r *Record) DurationSeconds() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.AnsweredAt.IsZero() {
		return 0
	}
	end := r.EndedAt
	if end.IsZero() {
		end = time.Now()
	}
	d := end.Sub(r.AnsweredAt)
	if d < 0 {
		return 0
	}
	return int64(d.Seconds())
}

func (r *Record) SetStreamSID(streamSID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StreamSID = streamSID
}

func (r *Record) SetConversationState(s turn.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ConversationState = s
}

func (r *Record) GetConversationState() turn.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ConversationState
}

// AppendTranscript adds an entry; entries are never mutated afterward.
func (r *Record) AppendTranscript(role TranscriptRole, text string, confidence *float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Transcript = append(r.Transcript, TranscriptEntry{
		Role:       role,
		Text:       text,
		Timestamp:  time.Now(),
		Confidence: confidence,
	})
}

func (r *Record) TranscriptSnapshot() []TranscriptEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TranscriptEntry, len(r.Transcript))
	copy(out, r.Transcript)
	return out
}

func (r *Record) SetMetadata(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Metadata[key] = value
}

func (r *Record) GetMetadata(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.Metadata[key]
	return v, ok
}

func (r *Record) DeleteMetadata(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.Metadata, key)
}

// PopGreeting returns and clears any pending greeting stashed via
// MetaGreeting.
func (r *Record) PopGreeting() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.Metadata[MetaGreeting]
	if ok {
		delete(r.Metadata, MetaGreeting)
	}
	return g, ok
}
