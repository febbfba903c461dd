// Package callmanager orchestrates every live call: it wires each
// call's media-stream session to a per-call speech-to-text provider and
// a shared text-to-speech provider, enforces the turn-taking algorithm
// that gates inbound audio by conversation state, and exposes the
// operations the webhook/API server drives (placing calls, speaking,
// ending calls, reconciling carrier status).
package callmanager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vardirect/callbridge/pkg/adapters/stt"
	"github.com/vardirect/callbridge/pkg/adapters/tts"
	"github.com/vardirect/callbridge/pkg/callrecord"
	"github.com/vardirect/callbridge/pkg/metrics"
	"github.com/vardirect/callbridge/pkg/twiml"
)

// defaultBargeInEnergyThreshold is a conservative RMS cutoff for 16-bit
// PCM: comfortably above line noise/silence, well below normal speech.
const defaultBargeInEnergyThreshold = 800

// TranscriptionListener is notified once per completed caller
// utterance. The webhook server is the only intended subscriber: the
// manager never calls the agent directly, only emits the event and
// later accepts the reply via Speak.
type TranscriptionListener interface {
	OnTranscription(callSID, text string)
}

// TranscriptionListenerFunc adapts a plain function to a TranscriptionListener.
type TranscriptionListenerFunc func(callSID, text string)

func (f TranscriptionListenerFunc) OnTranscription(callSID, text string) { f(callSID, text) }

// Config wires the manager to its dependencies. STTFactory constructs
// a fresh provider instance per call because STT sessions are
// stateful; TTS is shared across calls because synthesis is stateless.
type Config struct {
	Carrier    Carrier
	STTFactory func() stt.Provider
	TTS        tts.Provider

	// StreamURL is the wss:// URL handed to the carrier in
	// <Connect><Stream url="..."/></Connect>.
	StreamURL string

	// StatusCallbackURL and GatherCallbackURL are the public URLs the
	// carrier is told to hit for call-status webhooks and the
	// non-media-stream gather loop, respectively. Both may be empty in
	// development.
	StatusCallbackURL string
	GatherCallbackURL string

	DefaultCountry  string
	Voice           string
	Language        string
	FallbackApology string
	BargeIn         bool

	// FlushFrames overrides pkg/mediastream's inbound buffering
	// depth; zero uses the package default.
	FlushFrames int

	// STTBatch marks the configured STT provider as request/response
	// rather than natively streaming, arming a silence debounce that
	// calls Finalize after BatchSilence of continued listening. Since
	// these providers never emit OnSpeechStarted, it also switches
	// barge-in detection over to the coarse energy-based check below.
	STTBatch     bool
	BatchSilence time.Duration

	// BargeInEnergyThreshold is the RMS threshold audio.DetectSpeechEnergy
	// is checked against for STTBatch providers while the agent is
	// speaking; zero uses the package default.
	BargeInEnergyThreshold int

	SpeakAndListenTimeout time.Duration

	Metrics metrics.Observer
	Logger  *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.DefaultCountry == "" {
		c.DefaultCountry = "+1"
	}
	if c.FallbackApology == "" {
		c.FallbackApology = "Sorry, I'm having trouble responding right now."
	}
	if c.SpeakAndListenTimeout <= 0 {
		c.SpeakAndListenTimeout = 30 * time.Second
	}
	if c.BatchSilence <= 0 {
		c.BatchSilence = 1500 * time.Millisecond
	}
	if c.BargeInEnergyThreshold <= 0 {
		c.BargeInEnergyThreshold = defaultBargeInEnergyThreshold
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NoopObserver{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Manager owns every live call record and its per-call actor.
type Manager struct {
	cfg Config

	mu    sync.RWMutex
	calls map[string]*call

	tlMu      sync.RWMutex
	listeners []TranscriptionListener

	logger *slog.Logger
}

func New(cfg Config) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		cfg:    cfg,
		calls:  make(map[string]*call),
		logger: cfg.Logger.With("component", "callmanager"),
	}
}

// AddTranscriptionListener registers a subscriber for finalized caller
// utterances.
func (m *Manager) AddTranscriptionListener(l TranscriptionListener) {
	m.tlMu.Lock()
	defer m.tlMu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *Manager) emitTranscription(callSID, text string) {
	m.tlMu.RLock()
	listeners := make([]TranscriptionListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.tlMu.RUnlock()
	for _, l := range listeners {
		l.OnTranscription(callSID, text)
	}
}

// GetRecord returns the call record for callSID, or false if unknown.
func (m *Manager) GetRecord(callSID string) (*callrecord.Record, bool) {
	c, ok := m.lookupCall(callSID)
	if !ok {
		return nil, false
	}
	return c.rec, true
}

// ListActiveCalls returns the records of every non-terminal call.
func (m *Manager) ListActiveCalls() []*callrecord.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*callrecord.Record, 0, len(m.calls))
	for _, c := range m.calls {
		if !c.rec.IsTerminal() {
			out = append(out, c.rec)
		}
	}
	return out
}

// ActiveCallCount reports the number of non-terminal calls, for the
// health endpoint.
func (m *Manager) ActiveCallCount() int {
	return len(m.ListActiveCalls())
}

func (m *Manager) lookupCall(callSID string) (*call, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.calls[callSID]
	return c, ok
}

func (m *Manager) registerCall(c *call) {
	m.mu.Lock()
	m.calls[c.rec.CallSID] = c
	m.mu.Unlock()
}

// releaseCall shuts down a call's actor once it reaches a terminal
// signaling status. The record deliberately stays in m.calls rather
// than being deleted: handle_status_callback must stay idempotent
// against a second delivery of the same terminal status (§8 invariant
// 9), which requires the record still being resolvable by call id.
func (m *Manager) releaseCall(callSID string) {
	c, ok := m.lookupCall(callSID)
	if ok {
		c.shutdown()
	}
}

// Shutdown best-effort ends every live call, bounding each hangup by
// perCallTimeout, for graceful process termination.
func (m *Manager) Shutdown(ctx context.Context, perCallTimeout time.Duration) {
	m.mu.RLock()
	sids := make([]string, 0, len(m.calls))
	for sid, c := range m.calls {
		if c.rec.IsTerminal() {
			continue
		}
		sids = append(sids, sid)
	}
	m.mu.RUnlock()

	for _, sid := range sids {
		callCtx, cancel := context.WithTimeout(ctx, perCallTimeout)
		if err := m.EndCall(callCtx, sid, ""); err != nil {
			m.logger.Warn("shutdown_end_call_failed", "call_sid", sid, "error", err.Error())
		}
		cancel()
	}
}

func (m *Manager) recordMetric(name, callSID string, fields map[string]any) {
	m.cfg.Metrics.RecordEvent(metrics.MetricsEvent{
		Name:   name,
		Time:   time.Now(),
		Tags:   map[string]string{"call_sid": callSID},
		Fields: fields,
	})
}

func sayAndHangupTwiML(text, voice, language string) string {
	return twiml.New().Say(text, voice, language).Hangup().String()
}

func sayTwiML(text, voice, language string) string {
	return twiml.New().Say(text, voice, language).String()
}

func connectStreamTwiML(streamURL, track string) string {
	return twiml.New().ConnectStream(streamURL, track).String()
}

func fmtCallNotFound(callSID string) error {
	return fmt.Errorf("callmanager: unknown call %q", callSID)
}

func (c Config) batchSilence() time.Duration {
	if c.BatchSilence <= 0 {
		return 1500 * time.Millisecond
	}
	return c.BatchSilence
}

// fallbackSay pushes a carrier-side <Say> TwiML update for a call with
// no live media session, or whose TTS synthesis just failed.
func (m *Manager) fallbackSay(ctx context.Context, callSID, text string) {
	if m.cfg.Carrier == nil {
		return
	}
	if err := m.cfg.Carrier.UpdateCall(ctx, callSID, sayTwiML(text, m.cfg.Voice, m.cfg.Language)); err != nil {
		m.logger.Warn("carrier_update_failed", "call_sid", callSID, "error", err.Error())
	}
}
