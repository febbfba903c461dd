package callmanager

import (
	"github.com/vardirect/callbridge/pkg/adapters/stt"
	"github.com/vardirect/callbridge/pkg/callrecord"
	"github.com/vardirect/callbridge/pkg/turn"
)

// sttEventHandler adapts one provider's events onto its owning call's
// actor. Providers call these methods from their own goroutines
// (a websocket read loop, an HTTP response handler), so every branch
// hands off to the actor via submit rather than touching call state
// directly.
type sttEventHandler struct {
	call *call
}

// OnTranscript implements the core turn-taking invariant: only a final
// transcript observed while listening is accepted; anything else is
// stale and dropped.
func (h *sttEventHandler) OnTranscript(t stt.Transcript) {
	if !t.IsFinal {
		return
	}
	c := h.call
	c.submit(func() {
		if c.rec.GetConversationState() != turn.StateListening {
			return
		}
		if c.silenceTimer != nil {
			c.silenceTimer.Stop()
		}
		c.turnMgr.OnUserSpeechEnd()
		confidence := t.Confidence
		c.rec.AppendTranscript(callrecord.RoleUser, t.Text, &confidence)
		c.mgr.recordMetric("transcript.final", c.rec.CallSID, map[string]any{"chars": len(t.Text)})
		c.mgr.emitTranscription(c.rec.CallSID, t.Text)

		if c.pendingListen != nil {
			select {
			case c.pendingListen <- t.Text:
			default:
			}
			c.pendingListen = nil
		}
	})
}

// OnSpeechStarted implements the optional barge-in policy: cut off
// playback and force speaking -> listening the moment the caller talks
// over an in-progress reply.
func (h *sttEventHandler) OnSpeechStarted() {
	c := h.call
	c.submit(func() {
		if !c.mgr.cfg.BargeIn {
			return
		}
		if c.rec.GetConversationState() != turn.StateSpeaking {
			return
		}
		if c.session != nil {
			_ = c.session.ClearAudio()
		}
		c.turnMgr.OnAudioComplete()
		c.mgr.recordMetric("turn.barge_in", c.rec.CallSID, nil)
		c.logger.Info("call_barge_in")
	})
}

func (h *sttEventHandler) OnDisconnected() {
	c := h.call
	c.submit(func() {
		c.logger.Info("stt_disconnected")
	})
}

func (h *sttEventHandler) OnError(err error) {
	c := h.call
	c.submit(func() {
		c.logger.Warn("stt_error", "error", err.Error())
		c.mgr.recordMetric("stt.error", c.rec.CallSID, map[string]any{"error": err.Error()})
	})
}
