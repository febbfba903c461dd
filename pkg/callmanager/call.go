package callmanager

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/vardirect/callbridge/pkg/adapters/stt"
	"github.com/vardirect/callbridge/pkg/adapters/tts"
	"github.com/vardirect/callbridge/pkg/audio"
	"github.com/vardirect/callbridge/pkg/callrecord"
	"github.com/vardirect/callbridge/pkg/frames"
	"github.com/vardirect/callbridge/pkg/turn"
)

// mediaSession is the slice of *mediastream.Session the manager needs;
// narrowed to an interface so tests can substitute a fake without a
// real WebSocket.
type mediaSession interface {
	SendAudio(muLawFrame []byte) error
	SendAudioFrames(frames [][]byte) (<-chan struct{}, error)
	ClearAudio() error
	Close() error
	StreamSID() string
}

// call is one live call's single-writer actor: every mutation of its
// record, turn state, STT session or media session runs as a closure
// drained from cmdCh by run, so callbacks arriving concurrently from
// the WebSocket read loop, the STT provider's own goroutines, and the
// webhook's API handlers never race with each other.
type call struct {
	mgr *Manager
	rec *callrecord.Record

	turnMgr turn.Manager
	logger  *slog.Logger

	sttProvider stt.Provider
	session     mediaSession

	// pendingListen, when non-nil, is the reply channel for an
	// in-flight speak_and_listen awaiting the next transcription.
	pendingListen chan string

	// silenceTimer debounces Finalize calls for batch-style STT
	// providers (openai/groq/elevenlabs), which have no native
	// end-of-utterance detection of their own.
	silenceTimer *time.Timer

	cmdCh  chan func()
	stopCh chan struct{}
	closed atomic.Bool
}

// armSilenceTimer (re)starts the batch-STT debounce window. Safe to
// call from the actor goroutine only.
func (c *call) armSilenceTimer() {
	if c.silenceTimer != nil {
		c.silenceTimer.Stop()
	}
	c.silenceTimer = time.AfterFunc(c.mgr.cfg.batchSilence(), func() {
		var provider stt.Provider
		c.submitWait(func() {
			if c.rec.GetConversationState() == turn.StateListening {
				provider = c.sttProvider
			}
		})
		if provider != nil {
			_ = provider.Finalize()
		}
	})
}

// resetSTTBuffer discards a batch provider's partially accumulated
// audio when the call leaves listening without a natural Finalize,
// e.g. an operator-driven Speak interrupts an open listen. Streaming
// providers manage their own utterance boundaries and are left alone.
func (c *call) resetSTTBuffer() {
	if c.sttProvider == nil || !c.mgr.cfg.STTBatch {
		return
	}
	if c.silenceTimer != nil {
		c.silenceTimer.Stop()
	}
	_ = c.sttProvider.Disconnect()
	_ = c.sttProvider.Connect(context.Background(), &sttEventHandler{call: c})
}

func newCall(mgr *Manager, rec *callrecord.Record) *call {
	c := &call{
		mgr:    mgr,
		rec:    rec,
		logger: mgr.logger.With("call_sid", rec.CallSID),
		cmdCh:  make(chan func(), 64),
		stopCh: make(chan struct{}),
	}
	var strategy turn.Strategy = turn.PoliteStrategy{}
	if mgr.cfg.BargeIn {
		strategy = turn.AggressiveStrategy{}
	}
	c.turnMgr = turn.NewManager(strategy, noopInterruptEmitter{})
	c.turnMgr.AddListener(stateListener{c: c})
	go c.run()
	return c
}

func (c *call) run() {
	for {
		select {
		case fn := <-c.cmdCh:
			fn()
		case <-c.stopCh:
			c.drain()
			return
		}
	}
}

func (c *call) drain() {
	for {
		select {
		case fn := <-c.cmdCh:
			fn()
		default:
			return
		}
	}
}

// submit enqueues fn for the actor goroutine, dropping it silently if
// the call has already shut down.
func (c *call) submit(fn func()) {
	select {
	case c.cmdCh <- fn:
	case <-c.stopCh:
	}
}

// submitWait enqueues fn and blocks until it has run (or the call
// shuts down first), for callers that need the result of a mutation
// before proceeding, e.g. connecting STT before the first audio frame
// arrives.
func (c *call) submitWait(fn func()) {
	done := make(chan struct{})
	c.submit(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
	case <-c.stopCh:
	}
}

func (c *call) shutdown() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.stopCh)
	}
}

// speakLocked implements the speak() operation. It must only run on
// the call's own actor goroutine. Synthesis and playback are kicked
// off asynchronously; the eventual mark acknowledgement drives
// speaking -> listening through streamHandler.OnSpeakingFinished, not
// a blocking wait here.
func (c *call) speakLocked(text string) {
	if c.rec.GetConversationState() == turn.StateListening {
		c.resetSTTBuffer()
	}
	c.rec.AppendTranscript(callrecord.RoleAssistant, text, nil)
	c.turnMgr.OnAgentSpeechStart()

	if c.session == nil {
		c.mgr.fallbackSay(context.Background(), c.rec.CallSID, text)
		// TwiML playback completion is not observable; return to
		// listening immediately, matching the accepted tradeoff.
		c.turnMgr.OnUserSpeechStart()
		return
	}

	session := c.session
	go func() {
		ctx := context.Background()
		muLawFrames, err := tts.SynthesizeAllForTwilio(ctx, c.mgr.cfg.TTS, text)
		if err != nil {
			c.logger.Warn("tts_synthesize_failed", "error", err.Error())
			c.mgr.fallbackSay(ctx, c.rec.CallSID, text)
			c.submit(func() { c.turnMgr.OnUserSpeechStart() })
			return
		}
		totalBytes := len(muLawFrames) * audio.FrameBytes
		durationMS := audio.DurationMS(make([]byte, totalBytes), audio.TwilioSampleRate, 1)
		c.mgr.recordMetric("tts.synthesized", c.rec.CallSID, map[string]any{"duration_ms": durationMS})
		if _, err := session.SendAudioFrames(muLawFrames); err != nil {
			c.logger.Warn("media_send_failed", "error", err.Error())
		}
	}()
}

// noopInterruptEmitter satisfies turn.InterruptEmitter for calls. The
// manager's debounced OnUserSpeechStart flush path exists for callers
// that want it (see manager_impl.go), but this integration's barge-in
// signal comes from the STT event handler's OnSpeechStarted, which
// calls session.ClearAudio directly and never drives OnUserSpeechStart
// mid-playback, so no control frame ever reaches this emitter.
type noopInterruptEmitter struct{}

func (noopInterruptEmitter) Emit(frame frames.Frame) error { return nil }

// stateListener mirrors every turn-taking transition onto the call
// record so REST reads of call state never need access to the private
// turn.Manager instance, and records a metrics event per transition.
type stateListener struct{ c *call }

func (l stateListener) OnStateChange(ev turn.StateChange) {
	l.c.rec.SetConversationState(ev.ToState)
	l.c.mgr.recordMetric("turn.transition", l.c.rec.CallSID, map[string]any{
		"from":   ev.FromState.String(),
		"to":     ev.ToState.String(),
		"reason": ev.Reason,
	})
}
