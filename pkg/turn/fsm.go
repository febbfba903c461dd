package turn

import (
	"sync"
	"time"
)

// StateChange represents a state transition event.
type StateChange struct {
	FromState State
	ToState   State
	Timestamp time.Time
	Reason    string
}

// StateListener observes turn state changes.
type StateListener interface {
	OnStateChange(event StateChange)
}

// stateMachine implements the finite state machine for turn management.
type stateMachine struct {
	currentState State
	mu           sync.RWMutex

	bargeInThreshold time.Duration

	speakingStartTime  time.Time
	listeningStartTime time.Time

	stateChangeListeners []StateListener

	// emitter carries barge-in interruption and playback-flush control
	// frames to the media-stream session.
	emitter InterruptEmitter
}

// newStateMachine creates a state machine for turn management.
func newStateMachine(bargeInThreshold time.Duration, emitter InterruptEmitter) *stateMachine {
	if bargeInThreshold <= 0 {
		bargeInThreshold = 500 * time.Millisecond
	}
	return &stateMachine{
		currentState:     StateIdle,
		bargeInThreshold: bargeInThreshold,
		emitter:          emitter,
	}
}

// State returns the current state.
func (tm *stateMachine) State() State {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.currentState
}

// transitionValid checks if a state transition is valid (must be called with lock held).
func (tm *stateMachine) transitionValid(from, to State) bool {
	validTransitions := map[State][]State{
		StateIdle:       {StateListening, StateSpeaking},
		StateListening:  {StateProcessing, StateIdle, StateSpeaking},
		StateProcessing: {StateSpeaking, StateListening, StateIdle},
		StateSpeaking:   {StateListening, StateIdle},
	}

	allowedStates, exists := validTransitions[from]
	if !exists {
		return false
	}

	for _, allowed := range allowedStates {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves to a new state with validation.
func (tm *stateMachine) Transition(state State, reason string) error {
	tm.mu.Lock()

	if !tm.transitionValid(tm.currentState, state) {
		tm.mu.Unlock()
		return &InvalidTransitionError{
			From: tm.currentState,
			To:   state,
		}
	}

	oldState := tm.currentState
	tm.currentState = state

	switch state {
	case StateListening:
		tm.listeningStartTime = time.Now()
	case StateSpeaking:
		tm.speakingStartTime = time.Now()
	}

	event := StateChange{
		FromState: oldState,
		ToState:   state,
		Timestamp: time.Now(),
		Reason:    reason,
	}

	listeners := make([]StateListener, len(tm.stateChangeListeners))
	copy(listeners, tm.stateChangeListeners)
	tm.mu.Unlock()

	for _, listener := range listeners {
		listener.OnStateChange(event)
	}

	return nil
}

// AddListener registers a listener for state change events.
func (tm *stateMachine) AddListener(listener StateListener) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.stateChangeListeners = append(tm.stateChangeListeners, listener)
}

// InvalidTransitionError represents an invalid state transition attempt.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return "invalid state transition from " + e.From.String() + " to " + e.To.String()
}

// OnAudioComplete handles the carrier's mark acknowledgement that
// queued TTS audio finished playing. Triggers speaking -> listening.
func (tm *stateMachine) OnAudioComplete() {
	tm.mu.RLock()
	currentState := tm.currentState
	tm.mu.RUnlock()

	if currentState == StateSpeaking {
		_ = tm.Transition(StateListening, "audio playback complete")
	}
}

// OnSTTInput handles STT input and detects barge-in: when in the
// speaking state and inbound speech duration exceeds the threshold,
// it emits a clear/interrupt control frame and returns to listening.
func (tm *stateMachine) OnSTTInput(duration time.Duration) {
	tm.mu.RLock()
	currentState := tm.currentState
	threshold := tm.bargeInThreshold
	emitter := tm.emitter
	tm.mu.RUnlock()

	if currentState == StateSpeaking {
		if duration > threshold {
			if emitter != nil {
				interruptFrame := NewInterruptFrame("", time.Now().UnixNano())
				_ = emitter.Emit(interruptFrame)
			}
			_ = tm.Transition(StateListening, "barge-in detected")
		}
	}
}
