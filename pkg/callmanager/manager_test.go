package callmanager

import (
	"context"
	"testing"
	"time"

	"github.com/vardirect/callbridge/pkg/callrecord"
	"github.com/vardirect/callbridge/pkg/metrics"
)

func newTestManager(carrier *fakeCarrier) *Manager {
	return New(Config{
		Carrier:  carrier,
		TTS:      &fakeTTS{},
		Voice:    "alice",
		Language: "en-US",
	})
}

func TestMakeCallAndEndCallRecordMetricsEvents(t *testing.T) {
	obs := metrics.NewMemoryObserver()
	m := New(Config{
		Carrier: &fakeCarrier{nextSID: "CA_metrics"},
		TTS:     &fakeTTS{},
		Metrics: obs,
	})

	rec, err := m.MakeCall(context.Background(), "5551234567", "hi", nil)
	if err != nil {
		t.Fatalf("MakeCall: %v", err)
	}
	if err := m.EndCall(context.Background(), rec.CallSID, ""); err != nil {
		t.Fatalf("EndCall: %v", err)
	}

	var sawPlaced, sawEnded bool
	for _, ev := range obs.Events {
		switch ev.Name {
		case "call.placed":
			sawPlaced = true
		case "call.ended":
			sawEnded = true
		}
	}
	if !sawPlaced {
		t.Fatalf("expected a call.placed event, got %+v", obs.Events)
	}
	if !sawEnded {
		t.Fatalf("expected a call.ended event, got %+v", obs.Events)
	}
}

func TestMakeCallRecordsAssistantTranscript(t *testing.T) {
	carrier := &fakeCarrier{nextSID: "CA123"}
	m := newTestManager(carrier)

	rec, err := m.MakeCall(context.Background(), "5551234567", "hello", nil)
	if err != nil {
		t.Fatalf("MakeCall: %v", err)
	}
	if rec.CallSID != "CA123" {
		t.Fatalf("expected call sid CA123, got %q", rec.CallSID)
	}
	if rec.To != "+15551234567" {
		t.Fatalf("expected normalized to, got %q", rec.To)
	}
	snap := rec.TranscriptSnapshot()
	if len(snap) != 1 || snap[0].Role != callrecord.RoleAssistant {
		t.Fatalf("expected one assistant transcript entry, got %+v", snap)
	}
	if len(carrier.placed) != 1 {
		t.Fatalf("expected one placed call, got %d", len(carrier.placed))
	}
}

func TestMakeCallRequiresToAndMessage(t *testing.T) {
	m := newTestManager(&fakeCarrier{})
	if _, err := m.MakeCall(context.Background(), "", "hi", nil); err == nil {
		t.Fatalf("expected error for missing to")
	}
	if _, err := m.MakeCall(context.Background(), "5551234567", "", nil); err == nil {
		t.Fatalf("expected error for missing message")
	}
}

func TestMakeConversationCallStashesGreeting(t *testing.T) {
	carrier := &fakeCarrier{nextSID: "CA456"}
	m := newTestManager(carrier)

	rec, err := m.MakeConversationCall(context.Background(), "5551234567", "hi there", map[string]string{"source": "test"})
	if err != nil {
		t.Fatalf("MakeConversationCall: %v", err)
	}
	greeting, ok := rec.GetMetadata(callrecord.MetaGreeting)
	if !ok || greeting != "hi there" {
		t.Fatalf("expected stashed greeting, got %q ok=%v", greeting, ok)
	}
	if v, _ := rec.GetMetadata("source"); v != "test" {
		t.Fatalf("expected metadata carried through, got %q", v)
	}
}

func TestHandleStatusCallbackIsIdempotent(t *testing.T) {
	m := newTestManager(&fakeCarrier{})
	params := map[string]string{
		"CallSid":    "CA789",
		"CallStatus": "completed",
		"From":       "+15551234567",
		"To":         "+15557654321",
	}

	if err := m.HandleStatusCallback(context.Background(), params); err != nil {
		t.Fatalf("first callback: %v", err)
	}
	rec, ok := m.GetRecord("CA789")
	if !ok {
		t.Fatalf("expected record to exist after first callback")
	}
	firstDuration := rec.DurationSeconds()

	if err := m.HandleStatusCallback(context.Background(), params); err != nil {
		t.Fatalf("second callback: %v", err)
	}
	rec2, ok := m.GetRecord("CA789")
	if !ok {
		t.Fatalf("expected record to still exist after second callback")
	}
	if rec2 != rec {
		t.Fatalf("expected the same record instance to be reused")
	}
	if rec2.DurationSeconds() != firstDuration {
		t.Fatalf("expected duration unchanged on second callback: %d != %d", rec2.DurationSeconds(), firstDuration)
	}
	if rec2.GetStatus() != callrecord.StatusCompleted {
		t.Fatalf("expected status to remain completed, got %v", rec2.GetStatus())
	}
}

func TestHandleStatusCallbackCreatesRecordOnFirstObservation(t *testing.T) {
	m := newTestManager(&fakeCarrier{})
	err := m.HandleStatusCallback(context.Background(), map[string]string{
		"CallSid":    "CA_inbound",
		"CallStatus": "ringing",
		"From":       "+15551234567",
		"To":         "+15557654321",
	})
	if err != nil {
		t.Fatalf("HandleStatusCallback: %v", err)
	}
	rec, ok := m.GetRecord("CA_inbound")
	if !ok {
		t.Fatalf("expected a record to be created")
	}
	if rec.Direction != callrecord.DirectionInbound {
		t.Fatalf("expected inbound direction, got %v", rec.Direction)
	}
	if rec.GetStatus() != callrecord.StatusRinging {
		t.Fatalf("expected ringing status, got %v", rec.GetStatus())
	}
}

func TestEndCallHangsUpAndMarksCompleted(t *testing.T) {
	carrier := &fakeCarrier{nextSID: "CA999"}
	m := newTestManager(carrier)
	rec, err := m.MakeCall(context.Background(), "5551234567", "hi", nil)
	if err != nil {
		t.Fatalf("MakeCall: %v", err)
	}

	if err := m.EndCall(context.Background(), rec.CallSID, ""); err != nil {
		t.Fatalf("EndCall: %v", err)
	}
	if len(carrier.hungUp) != 1 || carrier.hungUp[0] != rec.CallSID {
		t.Fatalf("expected hangup for %q, got %+v", rec.CallSID, carrier.hungUp)
	}
	if rec.GetStatus() != callrecord.StatusCompleted {
		t.Fatalf("expected completed status, got %v", rec.GetStatus())
	}
}

func TestSpeakWithoutLiveSessionFallsBackToTwiML(t *testing.T) {
	carrier := &fakeCarrier{nextSID: "CA111"}
	m := newTestManager(carrier)
	rec, err := m.MakeConversationCall(context.Background(), "5551234567", "", nil)
	if err != nil {
		t.Fatalf("MakeConversationCall: %v", err)
	}

	if err := m.Speak(context.Background(), rec.CallSID, "are you still there"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if len(carrier.updated) != 1 {
		t.Fatalf("expected one carrier TwiML fallback update, got %d", len(carrier.updated))
	}
	snap := rec.TranscriptSnapshot()
	if len(snap) != 1 || snap[0].Text != "are you still there" {
		t.Fatalf("expected the fallback speech appended to the transcript, got %+v", snap)
	}
}

func TestUnknownCallOperationsReturnError(t *testing.T) {
	m := newTestManager(&fakeCarrier{})
	if err := m.Speak(context.Background(), "missing", "hi"); err == nil {
		t.Fatalf("expected error speaking to unknown call")
	}
	if err := m.EndCall(context.Background(), "missing", ""); err == nil {
		t.Fatalf("expected error ending unknown call")
	}
	if _, _, err := m.SpeakAndListen(context.Background(), "missing", "hi", time.Second); err == nil {
		t.Fatalf("expected error for speak_and_listen on unknown call")
	}
}
