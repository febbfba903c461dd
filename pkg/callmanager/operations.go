package callmanager

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vardirect/callbridge/pkg/callrecord"
	"github.com/vardirect/callbridge/pkg/errorsx"
	"github.com/vardirect/callbridge/pkg/mediastream"
	"github.com/vardirect/callbridge/pkg/twiml"
)

// MakeCall places a one-shot call that plays message then hangs up.
func (m *Manager) MakeCall(ctx context.Context, to, message string, metadata map[string]string) (*callrecord.Record, error) {
	if to == "" || message == "" {
		return nil, fmt.Errorf("callmanager: to and message are required")
	}
	if m.cfg.Carrier == nil {
		return nil, fmt.Errorf("callmanager: no carrier configured")
	}
	normalizedTo := callrecord.NormalizePhone(to, m.cfg.DefaultCountry)
	tw := sayAndHangupTwiML(message, m.cfg.Voice, m.cfg.Language)
	callSID, err := m.cfg.Carrier.PlaceCall(ctx, normalizedTo, tw, m.cfg.StatusCallbackURL)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonCarrierDial)
	}

	rec := callrecord.New(callSID, "", callrecord.DirectionOutbound, "", normalizedTo)
	for k, v := range metadata {
		rec.SetMetadata(k, v)
	}
	rec.AppendTranscript(callrecord.RoleAssistant, message, nil)

	c := newCall(m, rec)
	m.registerCall(c)
	m.recordMetric("call.placed", callSID, map[string]any{"conversation": false})
	return rec, nil
}

// MakeConversationCall places a call whose TwiML opens a media
// WebSocket back to this bridge, stashing greeting to be spoken once
// the stream attaches.
func (m *Manager) MakeConversationCall(ctx context.Context, to, greeting string, metadata map[string]string) (*callrecord.Record, error) {
	if to == "" {
		return nil, fmt.Errorf("callmanager: to is required")
	}
	if m.cfg.Carrier == nil {
		return nil, fmt.Errorf("callmanager: no carrier configured")
	}
	normalizedTo := callrecord.NormalizePhone(to, m.cfg.DefaultCountry)
	tw := connectStreamTwiML(m.cfg.StreamURL, "inbound_track")
	callSID, err := m.cfg.Carrier.PlaceCall(ctx, normalizedTo, tw, m.cfg.StatusCallbackURL)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonCarrierDial)
	}

	rec := callrecord.New(callSID, "", callrecord.DirectionOutbound, "", normalizedTo)
	for k, v := range metadata {
		rec.SetMetadata(k, v)
	}
	if greeting != "" {
		rec.SetMetadata(callrecord.MetaGreeting, greeting)
	}

	c := newCall(m, rec)
	m.registerCall(c)
	m.recordMetric("call.placed", callSID, map[string]any{"conversation": true})
	return rec, nil
}

// HandleMediaStream owns conn for the lifetime of one call's media
// session. It blocks until the carrier closes the socket.
func (m *Manager) HandleMediaStream(conn *websocket.Conn) {
	h := newStreamHandler(m)
	sess := mediastream.New(conn, h, m.cfg.FlushFrames, m.cfg.Logger)
	h.session = sess
	sess.Run()
}

// Speak sets the conversation state to speaking and plays text back,
// either over a live media session or via a carrier TwiML fallback.
func (m *Manager) Speak(ctx context.Context, callSID, text string) error {
	c, ok := m.lookupCall(callSID)
	if !ok {
		return fmtCallNotFound(callSID)
	}
	c.submitWait(func() { c.speakLocked(text) })
	return nil
}

// SpeakAndListen speaks text, then awaits the next finalized
// transcript for this call or returns ok=false on timeout.
func (m *Manager) SpeakAndListen(ctx context.Context, callSID, text string, timeout time.Duration) (reply string, ok bool, err error) {
	c, found := m.lookupCall(callSID)
	if !found {
		return "", false, fmtCallNotFound(callSID)
	}
	if timeout <= 0 {
		timeout = m.cfg.SpeakAndListenTimeout
	}

	waitCh := make(chan string, 1)
	c.submitWait(func() {
		c.pendingListen = waitCh
		c.speakLocked(text)
	})

	select {
	case reply := <-waitCh:
		return reply, true, nil
	case <-time.After(timeout):
		c.submit(func() {
			if c.pendingListen == waitCh {
				c.pendingListen = nil
			}
		})
		return "", false, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

// EndCall optionally speaks a goodbye, hangs up with the carrier, and
// releases the call's stream and STT resources.
func (m *Manager) EndCall(ctx context.Context, callSID, message string) error {
	c, ok := m.lookupCall(callSID)
	if !ok {
		return fmtCallNotFound(callSID)
	}
	if message != "" {
		c.submitWait(func() { c.speakLocked(message) })
	}
	if m.cfg.Carrier != nil {
		if err := m.cfg.Carrier.HangupCall(ctx, callSID); err != nil {
			wrapped := errorsx.Wrap(err, errorsx.ReasonCarrierHangup)
			m.logger.Warn("carrier_hangup_failed", "call_sid", callSID, "reason", errorsx.Reason(wrapped), "error", wrapped.Error())
		}
	}

	becameTerminal := c.rec.SetStatus(callrecord.StatusCompleted)
	duration := c.rec.MarkEnded()
	c.submit(func() {
		if c.sttProvider != nil {
			_ = c.sttProvider.Disconnect()
			c.sttProvider = nil
		}
		if c.session != nil {
			_ = c.session.Close()
			c.session = nil
		}
	})
	if becameTerminal {
		m.recordMetric("call.ended", callSID, map[string]any{"duration_seconds": duration})
	}
	m.releaseCall(callSID)
	return nil
}

// HandleStatusCallback idempotently reconciles the carrier's reported
// status onto the call record, creating one on first observation of an
// inbound call id.
func (m *Manager) HandleStatusCallback(ctx context.Context, params map[string]string) error {
	callSID := params["CallSid"]
	if callSID == "" {
		return fmt.Errorf("callmanager: missing CallSid")
	}
	status := callrecord.ParseStatus(params["CallStatus"])

	c, ok := m.lookupCall(callSID)
	if !ok {
		rec := callrecord.New(callSID, params["AccountSid"], callrecord.DirectionInbound, params["From"], params["To"])
		c = newCall(m, rec)
		m.registerCall(c)
	}

	becameTerminal := c.rec.SetStatus(status)
	if status == callrecord.StatusInProgress {
		c.rec.MarkAnswered()
	}
	if becameTerminal {
		duration := c.rec.MarkEnded()
		c.submit(func() {
			if c.sttProvider != nil {
				_ = c.sttProvider.Disconnect()
				c.sttProvider = nil
			}
			if c.session != nil {
				_ = c.session.Close()
				c.session = nil
			}
		})
		m.recordMetric("call.terminal", callSID, map[string]any{
			"status":           string(status),
			"duration_seconds": duration,
		})
		m.releaseCall(callSID)
	}
	return nil
}

// HandleGatherCallback services the non-media-stream path: the carrier
// gathered speech (and possibly digits) itself and posts the result
// here, expecting TwiML that re-opens the gather loop.
func (m *Manager) HandleGatherCallback(ctx context.Context, params map[string]string) (string, error) {
	callSID := params["CallSid"]
	c, ok := m.lookupCall(callSID)
	if !ok {
		return "", fmtCallNotFound(callSID)
	}

	if text := params["SpeechResult"]; text != "" {
		c.rec.AppendTranscript(callrecord.RoleUser, text, nil)
		m.emitTranscription(callSID, text)
	}
	if digits := params["Digits"]; digits != "" {
		m.recordMetric("call.dtmf", callSID, map[string]any{"digits": digits})
	}

	return twiml.New().Gather(twiml.GatherOptions{
		Action:   m.cfg.GatherCallbackURL,
		Language: m.cfg.Language,
	}).String(), nil
}

// HandleInboundCall creates the call record for a fresh inbound call
// and returns TwiML that opens a media WebSocket back to this bridge.
func (m *Manager) HandleInboundCall(ctx context.Context, params map[string]string, greeting string) (string, error) {
	callSID := params["CallSid"]
	if callSID == "" {
		return "", fmt.Errorf("callmanager: missing CallSid")
	}
	if _, ok := m.lookupCall(callSID); !ok {
		rec := callrecord.New(callSID, params["AccountSid"], callrecord.DirectionInbound, params["From"], params["To"])
		rec.SetStatus(callrecord.StatusInProgress)
		if greeting != "" {
			rec.SetMetadata(callrecord.MetaGreeting, greeting)
		}
		c := newCall(m, rec)
		m.registerCall(c)
		m.recordMetric("call.inbound", callSID, nil)
	}
	return connectStreamTwiML(m.cfg.StreamURL, "inbound_track"), nil
}
