package twiml

import "testing"

func TestSayAndHangup(t *testing.T) {
	got := New().Say("Your package has arrived.", "Polly.Joanna", "en-US").Hangup().String()
	want := `<Response><Say voice="Polly.Joanna" language="en-US">Your package has arrived.</Say><Hangup/></Response>`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestConnectStreamTrack(t *testing.T) {
	got := New().ConnectStream("wss://host/voice/stream", "inbound_track").String()
	want := `<Response><Connect><Stream url="wss://host/voice/stream" track="inbound_track"/></Connect></Response>`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestEscapeAllFiveCharacters(t *testing.T) {
	got := Escape(`& < > " '`)
	want := `&amp; &lt; &gt; &quot; &apos;`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSayOmitsEmptyAttributes(t *testing.T) {
	got := New().Say("hello", "", "").String()
	want := `<Response><Say>hello</Say></Response>`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestGatherWithNestedPrompt(t *testing.T) {
	got := New().Gather(GatherOptions{
		Timeout:    5,
		Language:   "en-US",
		Action:     "/voice/gather",
		PromptText: "How can I help?",
	}).String()
	want := `<Response><Gather input="speech" method="POST" timeout="5" speechTimeout="auto" language="en-US" action="/voice/gather"><Say>How can I help?</Say></Gather></Response>`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
