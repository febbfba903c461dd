// Package webhook exposes the carrier-facing signaling/media routes and
// the small REST API a caller uses to drive outbound calls, grounded on
// the teacher's pkg/transports/twilio.Transport route table and the
// original flowly/voice/webhook.py Starlette app it was distilled from.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vardirect/callbridge/pkg/callmanager"
)

// SignatureValidator is the narrow slice of pkg/carrier.Twilio the
// server needs to authenticate inbound carrier webhooks.
type SignatureValidator interface {
	ValidateSignature(requestURL, signature string, form map[string]string) bool
}

// Config wires the server to its dependencies and public addresses.
type Config struct {
	Addr string

	// BaseURL is this bridge's own public https URL, used both to
	// reconstruct the exact URL the carrier signed and to derive the
	// wss:// media-stream URL handed back in TwiML. Empty means
	// development mode: signature verification is skipped when the
	// carrier's signature header is also absent (spec §4.6).
	BaseURL string

	SignatureHeader string

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.SignatureHeader == "" {
		c.SignatureHeader = "X-Twilio-Signature"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

func (c Config) devMode() bool { return strings.TrimSpace(c.BaseURL) == "" }

// Server is the HTTP+WebSocket front door for the bridge.
type Server struct {
	cfg       Config
	manager   *callmanager.Manager
	validator SignatureValidator
	agent     *AgentClient

	upgrader websocket.Upgrader
	logger   *slog.Logger
	http     *http.Server
}

func NewServer(mgr *callmanager.Manager, validator SignatureValidator, agent *AgentClient, cfg Config) *Server {
	cfg = cfg.withDefaults()
	s := &Server{
		cfg:       cfg,
		manager:   mgr,
		validator: validator,
		agent:     agent,
		logger:    cfg.Logger.With("component", "webhook"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	if agent != nil {
		mgr.AddTranscriptionListener(agent)
	}
	mux := http.NewServeMux()
	s.routes(mux)
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /voice/inbound", s.handleInboundCall)
	mux.HandleFunc("POST /voice/status", s.handleStatusCallback)
	mux.HandleFunc("POST /voice/gather", s.handleGatherCallback)
	mux.HandleFunc("GET /voice/stream", s.handleMediaStream)
	mux.HandleFunc("POST /api/call", s.handleAPICall)
	mux.HandleFunc("POST /api/speak", s.handleAPISpeak)
	mux.HandleFunc("POST /api/end", s.handleAPIEnd)
	mux.HandleFunc("GET /api/call/{callSid}", s.handleGetCall)
	mux.HandleFunc("GET /api/calls", s.handleListCalls)
	mux.HandleFunc("GET /health", s.handleHealth)
}

// MediaStreamURL derives the wss:// media-stream URL the carrier is
// told to connect to from this bridge's public base URL. Exported so
// cmd/bridge can compute the same address when building
// pkg/callmanager.Config, ahead of the *Manager the Server itself
// needs to be constructed.
func MediaStreamURL(baseURL string) string {
	base := strings.TrimSuffix(baseURL, "/")
	base = strings.Replace(base, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return base + "/voice/stream"
}

// StatusCallbackURL derives the call-status webhook URL from this
// bridge's public base URL.
func StatusCallbackURL(baseURL string) string {
	return strings.TrimSuffix(baseURL, "/") + "/voice/status"
}

// GatherCallbackURL derives the DTMF/gather webhook URL from this
// bridge's public base URL.
func GatherCallbackURL(baseURL string) string {
	return strings.TrimSuffix(baseURL, "/") + "/voice/gather"
}

// Start begins serving; it blocks until the listener stops.
func (s *Server) Start() error {
	s.logger.Info("webhook_listening", "addr", s.cfg.Addr, "dev_mode", s.cfg.devMode())
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// verifySignature applies spec §4.6's rule: reject with 403 on
// mismatch, except in development mode with no signature header
// present, in which case the request is trusted.
func (s *Server) verifySignature(r *http.Request, form map[string]string) bool {
	signature := r.Header.Get(s.cfg.SignatureHeader)
	if s.cfg.devMode() && signature == "" {
		return true
	}
	if s.validator == nil {
		return s.cfg.devMode()
	}
	requestURL := strings.TrimSuffix(s.cfg.BaseURL, "/") + r.URL.RequestURI()
	return s.validator.ValidateSignature(requestURL, signature, form)
}

func formToMap(r *http.Request) map[string]string {
	out := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		out[k] = r.PostForm.Get(k)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeXML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(body))
}
