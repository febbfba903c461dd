package callmanager

import (
	"context"
	"errors"
	"sync"

	"github.com/vardirect/callbridge/pkg/adapters/stt"
)

// fakeCarrier records every call it is asked to make, never touching
// the network.
type fakeCarrier struct {
	mu      sync.Mutex
	nextSID string
	placed  []string
	updated []string
	hungUp  []string
}

func (f *fakeCarrier) PlaceCall(ctx context.Context, to, twiml, statusCallbackURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, to)
	sid := f.nextSID
	if sid == "" {
		sid = "CA_fake"
	}
	return sid, nil
}

func (f *fakeCarrier) UpdateCall(ctx context.Context, callSID, twiml string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, callSID)
	return nil
}

func (f *fakeCarrier) HangupCall(ctx context.Context, callSID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hungUp = append(f.hungUp, callSID)
	return nil
}

// fakeSession is a mediaSession that records every outbound action and
// echoes marks back immediately.
type fakeSession struct {
	mu      sync.Mutex
	sent    [][]byte
	cleared int
	closed  bool
}

func (f *fakeSession) SendAudio(muLawFrame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, muLawFrame)
	return nil
}

func (f *fakeSession) SendAudioFrames(frames [][]byte) (<-chan struct{}, error) {
	f.mu.Lock()
	f.sent = append(f.sent, frames...)
	f.mu.Unlock()
	done := make(chan struct{})
	close(done)
	return done, nil
}

func (f *fakeSession) ClearAudio() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	return nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSession) StreamSID() string { return "MZ_fake" }

// fakeSTT is a stt.Provider stub that lets tests trigger events on
// demand via its captured handler.
type fakeSTT struct {
	mu        sync.Mutex
	connected bool
	sent      [][]byte
	finalized int
	handler   stt.EventHandler
	failFinal bool
}

func (f *fakeSTT) Name() string { return "fake" }

func (f *fakeSTT) Connect(ctx context.Context, handler stt.EventHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	f.handler = handler
	return nil
}

func (f *fakeSTT) Send(pcm16LE16k []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return errors.New("not connected")
	}
	f.sent = append(f.sent, pcm16LE16k)
	return nil
}

func (f *fakeSTT) Finalize() error {
	f.mu.Lock()
	f.finalized++
	handler := f.handler
	f.mu.Unlock()
	if handler == nil {
		return nil
	}
	if f.failFinal {
		handler.OnError(errors.New("finalize failed"))
		return nil
	}
	handler.OnTranscript(stt.Transcript{Text: "hello there", IsFinal: true})
	return nil
}

func (f *fakeSTT) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

// fakeTTS returns a fixed short PCM buffer regardless of text.
type fakeTTS struct {
	calls int
	fail  bool
	mu    sync.Mutex
}

func (f *fakeTTS) Name() string { return "fake" }

func (f *fakeTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail {
		return nil, errors.New("synthesize failed")
	}
	// A short silence buffer at the TTS output rate is enough to
	// exercise framing without asserting on audio content.
	return make([]byte, 960*2), nil
}
