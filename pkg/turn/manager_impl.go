package turn

import (
	"sync"
	"time"

	"github.com/vardirect/callbridge/pkg/frames"
)

type ManagerOptions struct {
	BargeInThreshold time.Duration
	MinBargeIn       time.Duration
}

type manager struct {
	mu              sync.RWMutex
	sm              *stateMachine
	strategy        Strategy
	emit            InterruptEmitter
	lastChange      time.Time
	userSpeechStart time.Time
	minBargeIn      time.Duration
	flushTimer      *time.Timer
}

func NewManager(strategy Strategy, emitter InterruptEmitter) Manager {
	return NewManagerWithOptions(strategy, emitter, ManagerOptions{})
}

func NewManagerWithOptions(strategy Strategy, emitter InterruptEmitter, opts ManagerOptions) Manager {
	sm := newStateMachine(opts.BargeInThreshold, emitter)
	minBargeIn := opts.MinBargeIn
	if minBargeIn <= 0 {
		minBargeIn = 300 * time.Millisecond
	}
	return &manager{
		sm:         sm,
		strategy:   strategy,
		emit:       emitter,
		lastChange: time.Now(),
		minBargeIn: minBargeIn,
	}
}

func (m *manager) State() State {
	return m.sm.State()
}

func (m *manager) setState(s State) {
	m.mu.Lock()
	m.lastChange = time.Now()
	m.mu.Unlock()

	_ = m.sm.Transition(s, "manager state change")
}

// OnUserSpeechStart marks the caller as talking. If this interrupts an
// in-progress agent utterance and the strategy allows barge-in, a flush
// timer arms: if the caller is still talking after minBargeIn, the
// pending TTS playback is cleared.
func (m *manager) OnUserSpeechStart() {
	wasSpeaking := m.sm.State() == StateSpeaking
	m.setState(StateListening)
	m.mu.Lock()
	m.userSpeechStart = time.Now()
	if m.flushTimer != nil {
		m.flushTimer.Stop()
	}
	if wasSpeaking && m.strategy != nil && m.strategy.BargeInEnabled() {
		start := m.userSpeechStart
		m.flushTimer = time.AfterFunc(m.minBargeIn, func() {
			m.mu.Lock()
			active := m.sm.State() == StateListening && m.userSpeechStart.Equal(start)
			m.mu.Unlock()
			if active {
				m.emitFlush()
			}
		})
	}
	m.mu.Unlock()
}

func (m *manager) OnUserSpeechEnd() {
	m.setState(StateProcessing)
	m.mu.Lock()
	if m.flushTimer != nil {
		m.flushTimer.Stop()
	}
	m.mu.Unlock()
}

// OnAgentProcessStart marks the agent as composing a reply, entering
// listening first if the call was idle.
func (m *manager) OnAgentProcessStart() {
	currentState := m.sm.State()
	if currentState == StateIdle {
		_ = m.sm.Transition(StateListening, "agent process start - entering listening")
	}
	m.setState(StateProcessing)
}

func (m *manager) OnAgentProcessEnd() {
}

func (m *manager) OnAgentSpeechStart() {
	m.setState(StateSpeaking)
}

func (m *manager) OnAgentSpeechEnd() {
	m.setState(StateIdle)
}

// OnAudioComplete notifies the state machine that playback is complete.
func (m *manager) OnAudioComplete() {
	m.sm.OnAudioComplete()
}

// OnSTTInput forwards STT input duration to the state machine for barge-in detection.
func (m *manager) OnSTTInput(duration time.Duration) {
	m.sm.OnSTTInput(duration)
}

func (m *manager) BargeInLatency() time.Duration {
	return time.Since(m.lastChange)
}

// AddListener registers a listener for state change events.
func (m *manager) AddListener(listener StateListener) {
	m.sm.AddListener(listener)
}

type AggressiveStrategy struct{}

func (AggressiveStrategy) Name() string         { return "aggressive" }
func (AggressiveStrategy) BargeInEnabled() bool { return true }

type PoliteStrategy struct{}

func (PoliteStrategy) Name() string         { return "polite" }
func (PoliteStrategy) BargeInEnabled() bool { return false }

func (m *manager) emitFlush() {
	m.mu.RLock()
	emit := m.emit
	m.mu.RUnlock()
	if emit != nil {
		meta := map[string]string{
			frames.MetaSource: "turn",
			frames.MetaReason: "barge_in",
		}
		_ = emit.Emit(frames.NewControlFrame("", time.Now().UnixNano(), frames.ControlFlush, meta))
		_ = emit.Emit(frames.NewControlFrame("", time.Now().UnixNano(), frames.ControlCancel, meta))
	}
}
