package carrier

import (
	"context"
	"errors"
	"testing"

	api "github.com/twilio/twilio-go/rest/api/v2010"
)

type stubCallClient struct {
	lastCreate *api.CreateCallParams
	lastUpdate *api.UpdateCallParams
	lastSID    string
	sid        string
	err        error
}

func (s *stubCallClient) CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error) {
	s.lastCreate = params
	if s.err != nil {
		return nil, s.err
	}
	return &api.ApiV2010Call{Sid: &s.sid}, nil
}

func (s *stubCallClient) UpdateCall(sid string, params *api.UpdateCallParams) (*api.ApiV2010Call, error) {
	s.lastSID = sid
	s.lastUpdate = params
	if s.err != nil {
		return nil, s.err
	}
	return &api.ApiV2010Call{Sid: &sid}, nil
}

func newTestTwilio(stub *stubCallClient) *Twilio {
	t := New(Config{AccountSID: "AC1", AuthToken: "token", FromNumber: "+15550000000"})
	t.client = stub
	return t
}

func TestPlaceCallSetsFromAndTwiml(t *testing.T) {
	stub := &stubCallClient{sid: "CA123"}
	tw := newTestTwilio(stub)

	sid, err := tw.PlaceCall(context.Background(), "+15551234567", "<Response><Say>hi</Say></Response>", "https://example.com/status")
	if err != nil {
		t.Fatalf("PlaceCall: %v", err)
	}
	if sid != "CA123" {
		t.Fatalf("expected sid CA123, got %q", sid)
	}
	if stub.lastCreate == nil || stub.lastCreate.From == nil || *stub.lastCreate.From != "+15550000000" {
		t.Fatalf("expected From set from config, got %+v", stub.lastCreate)
	}
	if stub.lastCreate.To == nil || *stub.lastCreate.To != "+15551234567" {
		t.Fatalf("expected To set")
	}
	if stub.lastCreate.StatusCallback == nil || *stub.lastCreate.StatusCallback != "https://example.com/status" {
		t.Fatalf("expected status callback set")
	}
}

func TestPlaceCallRequiresCredentials(t *testing.T) {
	tw := New(Config{FromNumber: "+15550000000"})
	tw.client = &stubCallClient{sid: "CA1"}
	if _, err := tw.PlaceCall(context.Background(), "+1555", "<Response/>", ""); err == nil {
		t.Fatalf("expected error for missing credentials")
	}
}

func TestUpdateCallSendsTwiml(t *testing.T) {
	stub := &stubCallClient{}
	tw := newTestTwilio(stub)
	if err := tw.UpdateCall(context.Background(), "CA1", "<Response><Say>bye</Say></Response>"); err != nil {
		t.Fatalf("UpdateCall: %v", err)
	}
	if stub.lastSID != "CA1" {
		t.Fatalf("expected call sid CA1, got %q", stub.lastSID)
	}
	if stub.lastUpdate == nil || stub.lastUpdate.Twiml == nil {
		t.Fatalf("expected twiml param set")
	}
}

func TestHangupCallSetsCompletedStatus(t *testing.T) {
	stub := &stubCallClient{}
	tw := newTestTwilio(stub)
	if err := tw.HangupCall(context.Background(), "CA1"); err != nil {
		t.Fatalf("HangupCall: %v", err)
	}
	if stub.lastUpdate == nil || stub.lastUpdate.Status == nil || *stub.lastUpdate.Status != "completed" {
		t.Fatalf("expected status=completed param, got %+v", stub.lastUpdate)
	}
}

func TestPlaceCallPropagatesCreateError(t *testing.T) {
	stub := &stubCallClient{err: errors.New("boom")}
	tw := newTestTwilio(stub)
	if _, err := tw.PlaceCall(context.Background(), "+1555", "<Response/>", ""); err == nil {
		t.Fatalf("expected propagated error")
	}
}

func TestValidateSignatureRejectsMissingToken(t *testing.T) {
	tw := New(Config{})
	if tw.ValidateSignature("https://example.com/voice/status", "sig", map[string]string{"CallSid": "CA1"}) {
		t.Fatalf("expected validation to fail without an auth token configured")
	}
}

func TestValidateSignatureRejectsEmptySignature(t *testing.T) {
	tw := New(Config{AuthToken: "token"})
	if tw.ValidateSignature("https://example.com/voice/status", "", map[string]string{"CallSid": "CA1"}) {
		t.Fatalf("expected validation to fail without a signature header")
	}
}
