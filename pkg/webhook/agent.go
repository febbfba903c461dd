package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vardirect/callbridge/pkg/callmanager"
	"github.com/vardirect/callbridge/pkg/errorsx"
	"github.com/vardirect/callbridge/pkg/resilience"
)

// AgentConfig points the client at the conversational agent's gateway.
type AgentConfig struct {
	GatewayURL      string
	Timeout         time.Duration
	FallbackApology string
	Retry           resilience.RetryPolicy
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

func (c AgentConfig) withDefaults() AgentConfig {
	if c.Timeout <= 0 {
		c.Timeout = 8 * time.Second
	}
	if c.FallbackApology == "" {
		c.FallbackApology = "Sorry, I'm having trouble responding right now."
	}
	if c.Retry == (resilience.RetryPolicy{}) {
		c.Retry = resilience.NewRetryPolicy(1, 300*time.Millisecond)
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

type agentRequest struct {
	CallSID string `json:"call_sid"`
	From    string `json:"from"`
	Text    string `json:"text"`
}

type agentResponse struct {
	Response string `json:"response"`
}

// AgentClient implements callmanager.TranscriptionListener, forwarding
// finalized caller utterances to the conversational agent's gateway and
// relaying any reply back through Manager.Speak. On any failure it
// speaks a fallback apology and leaves the call open, per spec §4.6's
// failure semantics.
type AgentClient struct {
	cfg     AgentConfig
	manager *callmanager.Manager
	logger  *slog.Logger
}

func NewAgentClient(manager *callmanager.Manager, cfg AgentConfig) *AgentClient {
	cfg = cfg.withDefaults()
	return &AgentClient{
		cfg:     cfg,
		manager: manager,
		logger:  cfg.Logger.With("component", "agent_client"),
	}
}

var _ callmanager.TranscriptionListener = (*AgentClient)(nil)

func (a *AgentClient) OnTranscription(callSID, text string) {
	rec, ok := a.manager.GetRecord(callSID)
	if !ok {
		return
	}
	go a.forward(callSID, rec.From, text)
}

func (a *AgentClient) forward(callSID, from, text string) {
	reply, err := a.postMessage(callSID, from, text)
	if err != nil {
		wrapped := errorsx.Wrap(err, errorsx.ReasonAgentForward)
		a.logger.Warn("agent_forward_failed", "call_sid", callSID, "error", wrapped.Error())
		if speakErr := a.manager.Speak(context.Background(), callSID, a.cfg.FallbackApology); speakErr != nil {
			a.logger.Warn("agent_fallback_speak_failed", "call_sid", callSID, "error", speakErr.Error())
		}
		return
	}
	if reply == "" {
		return
	}
	if err := a.manager.Speak(context.Background(), callSID, reply); err != nil {
		a.logger.Warn("agent_reply_speak_failed", "call_sid", callSID, "error", err.Error())
	}
}

func (a *AgentClient) postMessage(callSID, from, text string) (string, error) {
	url := fmt.Sprintf("%s/api/voice/message", trimTrailingSlash(a.cfg.GatewayURL))
	body, err := json.Marshal(agentRequest{CallSID: callSID, From: from, Text: text})
	if err != nil {
		return "", err
	}

	var reply agentResponse
	err = a.cfg.Retry.Do(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.cfg.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("agent gateway returned status %d", resp.StatusCode)
		}
		reply = agentResponse{}
		return json.NewDecoder(resp.Body).Decode(&reply)
	})
	if err != nil {
		return "", err
	}
	return reply.Response, nil
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
