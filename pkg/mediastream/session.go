// Package mediastream owns the carrier WebSocket for a single call: it
// parses inbound media-stream envelopes, buffers and flushes inbound
// audio to the caller of Run, and sends outbound audio with playback
// marks so callers can detect when the carrier has finished playing
// back a synthesized reply.
package mediastream

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/vardirect/callbridge/pkg/audio"
	"github.com/vardirect/callbridge/pkg/errorsx"
)

const (
	// InboundSampleRate is the carrier's fixed inbound telephony rate.
	InboundSampleRate = audio.TwilioSampleRate
	// SttSampleRate is the rate audio is resampled to before being
	// handed to a streaming STT provider.
	SttSampleRate = 16000
	// DefaultFlushFrames buffers this many 20ms inbound frames
	// (~200ms) before resampling and emitting a PCM chunk.
	DefaultFlushFrames = 10
)

// EventHandler receives session lifecycle events on the same goroutine
// that reads the WebSocket, so handler implementations must not block
// on anything that depends on further reads from this session.
type EventHandler interface {
	OnConnected(callSID, streamSID string)
	OnAudio(pcm16kLE []byte)
	OnDisconnected()
	OnSpeakingFinished()
}

// Session owns one carrier WebSocket for one call.
type Session struct {
	conn        *websocket.Conn
	handler     EventHandler
	flushFrames int

	mu         sync.Mutex
	streamSID  string
	callSID    string
	inbound    [][]byte
	markSeq    int64
	pending    map[string]chan struct{}
	isSpeaking bool

	sendCh chan []byte
	closed atomic.Bool
	logger *slog.Logger
}

// New wraps conn for one call. flushFrames <= 0 uses DefaultFlushFrames.
func New(conn *websocket.Conn, handler EventHandler, flushFrames int, logger *slog.Logger) *Session {
	if flushFrames <= 0 {
		flushFrames = DefaultFlushFrames
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		conn:        conn,
		handler:     handler,
		flushFrames: flushFrames,
		pending:     make(map[string]chan struct{}),
		sendCh:      make(chan []byte, 256),
		logger:      logger.With("component", "mediastream"),
	}
	go s.sendLoop()
	return s
}

// StreamSID returns the attached stream id, empty before "start".
func (s *Session) StreamSID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamSID
}

// Run reads inbound envelopes until the connection closes or the
// carrier sends "stop". It blocks the calling goroutine.
func (s *Session) Run() {
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			s.handleDisconnect()
			return
		}
		var env InboundEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			s.logger.Warn("mediastream_bad_envelope", "error", err.Error())
			continue
		}
		switch env.Event {
		case "connected":
			// no-op, waiting for start.
		case "start":
			s.handleStart(env.Start)
		case "media":
			s.handleMedia(env.Media)
		case "mark":
			s.handleMark(env.Mark)
		case "stop":
			s.handleStop()
			return
		}
	}
}

func (s *Session) handleStart(start *InboundStart) {
	if start == nil {
		return
	}
	s.mu.Lock()
	s.streamSID = start.StreamSID
	s.callSID = start.CallSID
	s.mu.Unlock()
	s.handler.OnConnected(start.CallSID, start.StreamSID)
}

func (s *Session) handleMedia(media *InboundMedia) {
	if media == nil {
		return
	}
	payload, err := base64.StdEncoding.DecodeString(media.Payload)
	if err != nil {
		s.logger.Warn("mediastream_bad_payload", "error", err.Error())
		return
	}
	s.mu.Lock()
	s.inbound = append(s.inbound, payload)
	flush := len(s.inbound) >= s.flushFrames
	var frames [][]byte
	if flush {
		frames = s.inbound
		s.inbound = nil
	}
	s.mu.Unlock()
	if flush {
		pcm := audio.ConvertFromTwilio(frames, SttSampleRate)
		s.handler.OnAudio(pcm)
	}
}

func (s *Session) handleMark(mark *InboundMarkAck) {
	if mark == nil {
		return
	}
	s.mu.Lock()
	ch, ok := s.pending[mark.Name]
	if ok {
		delete(s.pending, mark.Name)
	}
	remaining := len(s.pending)
	wasSpeaking := s.isSpeaking
	if remaining == 0 {
		s.isSpeaking = false
	}
	s.mu.Unlock()
	if ok {
		close(ch)
	}
	if remaining == 0 && wasSpeaking {
		s.handler.OnSpeakingFinished()
	}
}

func (s *Session) handleStop() {
	s.mu.Lock()
	frames := s.inbound
	s.inbound = nil
	s.mu.Unlock()
	if len(frames) > 0 {
		pcm := audio.ConvertFromTwilio(frames, SttSampleRate)
		s.handler.OnAudio(pcm)
	}
	s.handleDisconnect()
}

func (s *Session) handleDisconnect() {
	if s.closed.CompareAndSwap(false, true) {
		s.releasePending()
		close(s.sendCh)
		s.handler.OnDisconnected()
	}
}

func (s *Session) releasePending() {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[string]chan struct{})
	s.isSpeaking = false
	s.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
}

// SendAudio enqueues a single media envelope; a warning is logged and
// the frame dropped if the stream has not started yet.
func (s *Session) SendAudio(muLawFrame []byte) error {
	streamSID := s.StreamSID()
	if streamSID == "" {
		s.logger.Warn("mediastream_send_before_start")
		return nil
	}
	return s.enqueue(map[string]any{
		"event":     eventMedia,
		"streamSid": streamSID,
		"media": map[string]any{
			"payload": base64.StdEncoding.EncodeToString(muLawFrame),
		},
	})
}

// SendAudioFrames marks the session speaking, sends every frame, then
// sends one uniquely named mark. It returns a channel that is closed
// once the carrier echoes that mark back, or immediately if the
// session closes first.
func (s *Session) SendAudioFrames(frames [][]byte) (<-chan struct{}, error) {
	streamSID := s.StreamSID()
	if streamSID == "" {
		ch := make(chan struct{})
		close(ch)
		return ch, fmt.Errorf("mediastream: send before stream start")
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.isSpeaking = true
	s.markSeq++
	markName := fmt.Sprintf("mark-%d", s.markSeq)
	s.pending[markName] = done
	s.mu.Unlock()

	for _, f := range frames {
		if err := s.SendAudio(f); err != nil {
			return done, errorsx.Wrap(err, errorsx.ReasonMediaStreamSend)
		}
	}
	if err := s.enqueue(map[string]any{
		"event":     eventMark,
		"streamSid": streamSID,
		"mark":      map[string]any{"name": markName},
	}); err != nil {
		return done, errorsx.Wrap(err, errorsx.ReasonMediaStreamSend)
	}
	return done, nil
}

// ClearAudio discards queued outbound audio: sends "clear", drops all
// pending mark resolvers, and resets the speaking flag.
func (s *Session) ClearAudio() error {
	streamSID := s.StreamSID()
	if streamSID == "" {
		return nil
	}
	s.releasePending()
	return s.enqueue(map[string]any{
		"event":     eventClear,
		"streamSid": streamSID,
	})
}

// Close best-effort flushes any queued sends, then terminates the
// WebSocket.
func (s *Session) Close() error {
	s.handleDisconnect()
	return s.conn.Close()
}

func (s *Session) enqueue(msg map[string]any) error {
	if s.closed.Load() {
		return nil
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case s.sendCh <- b:
	default:
		s.logger.Warn("mediastream_send_buffer_full")
	}
	return nil
}

func (s *Session) sendLoop() {
	for msg := range s.sendCh {
		if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			s.logger.Warn("mediastream_write_error", "error", err.Error())
			return
		}
	}
}
