package callmanager

import (
	"context"
	"log/slog"

	"github.com/vardirect/callbridge/pkg/audio"
	"github.com/vardirect/callbridge/pkg/callrecord"
	"github.com/vardirect/callbridge/pkg/turn"
)

// streamHandler adapts one mediastream.Session's lifecycle callbacks
// onto the owning call's actor. All of its methods run on the
// session's own read-loop goroutine (mediastream.EventHandler's
// documented contract), so every mutation is handed to the call actor
// via submit/submitWait rather than touched directly.
type streamHandler struct {
	mgr     *Manager
	session mediaSession
	call    *call
	logger  *slog.Logger
}

func newStreamHandler(mgr *Manager) *streamHandler {
	return &streamHandler{mgr: mgr, logger: mgr.logger.With("component", "media_stream_handler")}
}

// OnConnected resolves the call record the carrier's "start" envelope
// names, attaches the media session and a fresh STT instance, and
// either speaks the pending greeting or moves straight to listening.
func (h *streamHandler) OnConnected(callSID, streamSID string) {
	c, ok := h.mgr.lookupCall(callSID)
	if !ok {
		h.logger.Warn("media_stream_unknown_call", "call_sid", callSID, "stream_sid", streamSID)
		return
	}
	h.call = c

	c.submitWait(func() {
		c.session = h.session
		c.rec.SetStreamSID(streamSID)
		c.rec.SetStatus(callrecord.StatusInProgress)
		c.rec.MarkAnswered()

		if c.mgr.cfg.STTFactory != nil {
			c.sttProvider = c.mgr.cfg.STTFactory()
			if err := c.sttProvider.Connect(context.Background(), &sttEventHandler{call: c}); err != nil {
				c.logger.Warn("stt_connect_failed", "error", err.Error())
				c.sttProvider = nil
			}
		}

		if greeting, ok := c.rec.PopGreeting(); ok && greeting != "" {
			c.speakLocked(greeting)
		} else {
			c.turnMgr.OnUserSpeechStart()
		}
	})
}

// OnAudio forwards a resampled inbound PCM chunk to STT, gated by the
// current conversation state per the turn-taking algorithm: only
// audio arriving while listening is ever sent. While the agent is
// speaking, a batch STT provider has no native speech_started event to
// drive barge-in, so this chunk is instead run through a coarse energy
// check as a substitute VAD.
func (h *streamHandler) OnAudio(pcm16kLE []byte) {
	c := h.call
	if c == nil {
		return
	}
	c.submit(func() {
		state := c.rec.GetConversationState()
		if state == turn.StateSpeaking {
			if c.mgr.cfg.BargeIn && c.mgr.cfg.STTBatch {
				h.checkEnergyBargeIn(c, pcm16kLE)
			}
			return
		}
		if state != turn.StateListening || c.sttProvider == nil {
			return
		}
		if err := c.sttProvider.Send(pcm16kLE); err != nil {
			c.logger.Warn("stt_send_failed", "error", err.Error())
			return
		}
		if c.mgr.cfg.STTBatch {
			c.armSilenceTimer()
		}
	})
}

// checkEnergyBargeIn mirrors sttEventHandler.OnSpeechStarted for
// providers that never emit that event. Must run on the call's actor.
func (h *streamHandler) checkEnergyBargeIn(c *call, pcm16kLE []byte) {
	if !audio.DetectSpeechEnergy(pcm16kLE, c.mgr.cfg.BargeInEnergyThreshold) {
		return
	}
	if c.session != nil {
		_ = c.session.ClearAudio()
	}
	c.turnMgr.OnAudioComplete()
	c.mgr.recordMetric("turn.barge_in", c.rec.CallSID, map[string]any{"source": "energy_vad"})
	c.logger.Info("call_barge_in", "source", "energy_vad")
}

// OnSpeakingFinished is the mark-acknowledgement signal: the carrier
// has finished playing back every frame of the outstanding utterance.
func (h *streamHandler) OnSpeakingFinished() {
	c := h.call
	if c == nil {
		return
	}
	c.submit(func() {
		c.turnMgr.OnAudioComplete()
	})
}

// OnDisconnected releases the media session and STT provider; the
// carrier's status webhook remains the authoritative signal that ends
// the call record itself.
func (h *streamHandler) OnDisconnected() {
	c := h.call
	if c == nil {
		return
	}
	c.submit(func() {
		if c.sttProvider != nil {
			_ = c.sttProvider.Disconnect()
			c.sttProvider = nil
		}
		c.session = nil
	})
}
