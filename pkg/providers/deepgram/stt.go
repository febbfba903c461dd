package deepgram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/vardirect/callbridge/pkg/adapters/stt"
	"github.com/vardirect/callbridge/pkg/logging"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

// maxReconnectAttempts caps how many times a dropped streaming
// connection is redialed before the caller is told the session is
// gone for good.
const maxReconnectAttempts = 3

type Params struct {
	UtteranceEndMS int
}

type Config struct {
	APIKey     string
	Model      string
	Language   string
	SampleRate int
	Encoding   string
	Interim    bool
	VADEvents  bool
	StreamID   string
	CallSID    string
	TraceID    string
	Params     Params
}

// STT connects to Deepgram's live transcription websocket and delivers
// events to the handler passed to Connect. Audio submitted through Send
// is piped straight to the streaming connection.
type STT struct {
	cfg Config

	mu         sync.Mutex
	dgClient   *client.WSCallback
	handler    stt.EventHandler
	ctx        context.Context
	cancel     context.CancelFunc
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	metaLogged bool
	logger     *slog.Logger

	utteranceEndMs int

	// reconnecting is true while a dropped connection is being
	// redialed; Send buffers into reconnectBuf instead of writing to a
	// pipe nobody is reading from.
	reconnecting bool
	reconnectBuf bytes.Buffer
}

func New(cfg Config) *STT {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	logger := logging.NewComponentLogger(slog.Default(), "deepgram_stt")
	return &STT{
		cfg:            cfg,
		logger:         logger,
		utteranceEndMs: cfg.Params.UtteranceEndMS,
	}
}

func (s *STT) Name() string { return "deepgram" }

func (s *STT) Connect(ctx context.Context, handler stt.EventHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dgClient != nil {
		s.handler = handler
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.handler = handler
	return s.dialLocked()
}

// dialLocked opens the websocket connection and starts its streaming
// goroutine. Callers must hold s.mu and have already set s.ctx/s.cancel.
func (s *STT) dialLocked() error {
	s.pipeReader, s.pipeWriter = io.Pipe()

	clientOptions := &interfaces.ClientOptions{EnableKeepAlive: true}
	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Model:          s.cfg.Model,
		Language:       s.cfg.Language,
		Encoding:       s.cfg.Encoding,
		SampleRate:     s.cfg.SampleRate,
		InterimResults: s.cfg.Interim,
		VadEvents:      s.cfg.VADEvents,
		SmartFormat:    true,
	}
	if s.utteranceEndMs > 0 {
		transcriptOptions.UtteranceEndMs = fmt.Sprintf("%d", s.utteranceEndMs)
	}

	s.logger.Info("connecting",
		slog.String("stream_id", s.cfg.StreamID),
		slog.String("call_sid", s.cfg.CallSID),
		slog.String("model", s.cfg.Model))

	cb := &callback{parent: s}
	dgClient, err := client.NewWSUsingCallback(s.ctx, s.cfg.APIKey, clientOptions, transcriptOptions, cb)
	if err != nil {
		return fmt.Errorf("deepgram: create client: %w", err)
	}
	s.dgClient = dgClient

	if connected := s.dgClient.Connect(); !connected {
		s.dgClient = nil
		return errors.New("deepgram: connect failed")
	}

	pipeReader := s.pipeReader
	go func() {
		if err := s.dgClient.Stream(pipeReader); err != nil && s.ctx.Err() == nil {
			s.logger.Error("stream error", slog.String("error", err.Error()), slog.String("stream_id", s.cfg.StreamID))
		}
	}()
	return nil
}

func (s *STT) Send(pcm16LE16k []byte) error {
	s.mu.Lock()
	if s.reconnecting {
		s.reconnectBuf.Write(pcm16LE16k)
		s.mu.Unlock()
		return nil
	}
	w := s.pipeWriter
	s.mu.Unlock()
	if w == nil {
		return errors.New("deepgram: not connected")
	}
	_, err := w.Write(pcm16LE16k)
	return err
}

// reconnect redials after an unexpected close, buffering any audio
// Send receives in the meantime and flushing it once the new
// connection is live. Gives up and reports OnDisconnected after
// maxReconnectAttempts, waiting attempt*1s before each try (spec's
// linear backoff).
func (s *STT) reconnect() {
	s.mu.Lock()
	if s.reconnecting {
		s.mu.Unlock()
		return
	}
	s.reconnecting = true
	ctx := s.ctx
	handler := s.handler
	streamID := s.cfg.StreamID
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.reconnecting = false
		s.mu.Unlock()
	}()

	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		time.Sleep(time.Duration(attempt) * time.Second)
		if ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		if s.pipeWriter != nil {
			_ = s.pipeWriter.Close()
		}
		s.dgClient = nil
		err := s.dialLocked()
		s.mu.Unlock()

		if err == nil {
			s.logger.Info("reconnected", slog.String("stream_id", streamID), slog.Int("attempt", attempt))
			s.flushReconnectBuffer()
			return
		}
		s.logger.Warn("reconnect_failed", slog.String("stream_id", streamID), slog.Int("attempt", attempt), slog.String("error", err.Error()))
	}

	s.logger.Error("reconnect_exhausted", slog.String("stream_id", streamID), slog.Int("attempts", maxReconnectAttempts))
	if handler != nil {
		handler.OnDisconnected()
	}
}

func (s *STT) flushReconnectBuffer() {
	s.mu.Lock()
	buffered := append([]byte(nil), s.reconnectBuf.Bytes()...)
	s.reconnectBuf.Reset()
	w := s.pipeWriter
	s.mu.Unlock()
	if len(buffered) > 0 && w != nil {
		_, _ = w.Write(buffered)
	}
}

// Finalize sends the CloseStream control message so Deepgram flushes any
// buffered audio and emits a final transcript before the socket closes.
func (s *STT) Finalize() error {
	s.mu.Lock()
	dg := s.dgClient
	s.mu.Unlock()
	if dg == nil {
		return nil
	}
	dg.Stop()
	return nil
}

func (s *STT) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	if s.pipeWriter != nil {
		_ = s.pipeWriter.Close()
	}
	if s.dgClient != nil {
		s.dgClient.Stop()
		s.dgClient = nil
	}
	s.reconnecting = false
	s.reconnectBuf.Reset()
	return nil
}

// --- Callback Implementation ---

type callback struct {
	parent *STT
}

func (c *callback) Open(or *msginterfaces.OpenResponse) error {
	c.parent.logger.Info("connection opened", slog.String("stream_id", c.parent.cfg.StreamID))
	return nil
}

func (c *callback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	alt := mr.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return nil
	}
	isFinal := mr.IsFinal || mr.SpeechFinal

	c.parent.mu.Lock()
	handler := c.parent.handler
	c.parent.mu.Unlock()
	if handler == nil {
		return nil
	}
	handler.OnTranscript(stt.Transcript{Text: alt.Transcript, Confidence: alt.Confidence, IsFinal: isFinal})
	return nil
}

func (c *callback) Metadata(md *msginterfaces.MetadataResponse) error {
	if !c.parent.metaLogged {
		c.parent.metaLogged = true
		c.parent.logger.Info("metadata received",
			slog.String("stream_id", c.parent.cfg.StreamID),
			slog.String("request_id", md.RequestID))
	}
	return nil
}

func (c *callback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	c.parent.mu.Lock()
	handler := c.parent.handler
	c.parent.mu.Unlock()
	if handler != nil {
		handler.OnSpeechStarted()
	}
	return nil
}

func (c *callback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	return nil
}

// Close fires whenever the websocket goes away, whether from a caller
// Disconnect or a network drop. s.ctx is only ever canceled by
// Disconnect, so its state distinguishes the two: a canceled context
// means the caller is done with this session, otherwise the close was
// unexpected and worth trying to recover from.
func (c *callback) Close(cr *msginterfaces.CloseResponse) error {
	s := c.parent
	s.mu.Lock()
	handler := s.handler
	unexpected := s.ctx != nil && s.ctx.Err() == nil
	s.mu.Unlock()
	s.logger.Info("connection closed", slog.String("stream_id", s.cfg.StreamID), slog.Bool("unexpected", unexpected))
	if !unexpected {
		if handler != nil {
			handler.OnDisconnected()
		}
		return nil
	}
	go s.reconnect()
	return nil
}

func (c *callback) Error(er *msginterfaces.ErrorResponse) error {
	c.parent.mu.Lock()
	handler := c.parent.handler
	c.parent.mu.Unlock()
	c.parent.logger.Error("provider error",
		slog.String("stream_id", c.parent.cfg.StreamID),
		slog.String("error_code", er.ErrCode),
		slog.String("error_message", er.ErrMsg))
	if handler != nil {
		handler.OnError(fmt.Errorf("deepgram: %s: %s", er.ErrCode, er.ErrMsg))
	}
	return nil
}

func (c *callback) UnhandledEvent(byData []byte) error {
	c.parent.logger.Debug("unhandled event", slog.String("stream_id", c.parent.cfg.StreamID), slog.String("data", string(byData)))
	return nil
}

var _ stt.Provider = (*STT)(nil)
