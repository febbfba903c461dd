package webhook

import (
	"encoding/json"
	"net/http"

	"github.com/vardirect/callbridge/pkg/callrecord"
	"github.com/vardirect/callbridge/pkg/redact"
)

func (s *Server) handleInboundCall(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	form := formToMap(r)
	if !s.verifySignature(r, form) {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	twiML, err := s.manager.HandleInboundCall(r.Context(), form, "")
	if err != nil {
		s.logger.Warn("inbound_call_failed", "error", err.Error(), "form", redact.FormParams(form))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeXML(w, twiML)
}

func (s *Server) handleStatusCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	form := formToMap(r)
	if !s.verifySignature(r, form) {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if err := s.manager.HandleStatusCallback(r.Context(), form); err != nil {
		s.logger.Warn("status_callback_failed", "error", err.Error(), "form", redact.FormParams(form))
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGatherCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	form := formToMap(r)
	if !s.verifySignature(r, form) {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	twiML, err := s.manager.HandleGatherCallback(r.Context(), form)
	if err != nil {
		s.logger.Warn("gather_callback_failed", "error", err.Error(), "form", redact.FormParams(form))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeXML(w, twiML)
}

// handleMediaStream never checks a signature: the carrier's media
// stream protocol has no signing story of its own (spec §4.6).
func (s *Server) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("media_stream_upgrade_failed", "error", err.Error())
		return
	}
	s.manager.HandleMediaStream(conn)
}

type apiCallRequest struct {
	To           string            `json:"to"`
	Message      string            `json:"message"`
	Greeting     string            `json:"greeting"`
	Conversation bool              `json:"conversation"`
	Metadata     map[string]string `json:"metadata"`
}

type apiCallResponse struct {
	Success bool   `json:"success"`
	CallSID string `json:"callSid"`
	State   string `json:"state"`
}

func (s *Server) handleAPICall(w http.ResponseWriter, r *http.Request) {
	var req apiCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.To == "" {
		writeError(w, http.StatusBadRequest, "to is required")
		return
	}

	var rec *callrecord.Record
	var err error
	switch {
	case req.Greeting != "" || req.Conversation:
		rec, err = s.manager.MakeConversationCall(r.Context(), req.To, req.Greeting, req.Metadata)
	case req.Message != "":
		rec, err = s.manager.MakeCall(r.Context(), req.To, req.Message, req.Metadata)
	default:
		writeError(w, http.StatusBadRequest, "either message, greeting, or conversation=true is required")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, apiCallResponse{
		Success: true,
		CallSID: rec.CallSID,
		State:   string(rec.GetStatus()),
	})
}

type apiSpeakRequest struct {
	CallSID string `json:"callSid"`
	Message string `json:"message"`
}

func (s *Server) handleAPISpeak(w http.ResponseWriter, r *http.Request) {
	var req apiSpeakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.CallSID == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "callSid and message are required")
		return
	}
	if err := s.manager.Speak(r.Context(), req.CallSID, req.Message); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type apiEndRequest struct {
	CallSID string `json:"callSid"`
	Message string `json:"message"`
}

func (s *Server) handleAPIEnd(w http.ResponseWriter, r *http.Request) {
	var req apiEndRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.CallSID == "" {
		writeError(w, http.StatusBadRequest, "callSid is required")
		return
	}
	if err := s.manager.EndCall(r.Context(), req.CallSID, req.Message); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	callSID := r.PathValue("callSid")
	rec, ok := s.manager.GetRecord(callSID)
	if !ok {
		writeError(w, http.StatusNotFound, "call not found")
		return
	}
	writeJSON(w, http.StatusOK, recordView(rec))
}

func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	records := s.manager.ListActiveCalls()
	views := make([]callSummary, 0, len(records))
	for _, rec := range records {
		views = append(views, recordSummary(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"calls": views})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"activeCalls": s.manager.ActiveCallCount(),
	})
}
