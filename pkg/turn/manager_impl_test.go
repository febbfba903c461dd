package turn

import (
	"sync"
	"testing"
	"time"

	"github.com/vardirect/callbridge/pkg/frames"
)

type recordingEmitter struct {
	mu     sync.Mutex
	frames []frames.Frame
}

func (r *recordingEmitter) Emit(f frames.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
	return nil
}

func (r *recordingEmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func TestManagerHappyPathTransitions(t *testing.T) {
	m := NewManager(AggressiveStrategy{}, &recordingEmitter{})

	m.OnUserSpeechStart()
	if m.State() != StateListening {
		t.Fatalf("expected listening, got %s", m.State())
	}
	m.OnUserSpeechEnd()
	if m.State() != StateProcessing {
		t.Fatalf("expected processing, got %s", m.State())
	}
	m.OnAgentSpeechStart()
	if m.State() != StateSpeaking {
		t.Fatalf("expected speaking, got %s", m.State())
	}
	m.OnAudioComplete()
	if m.State() != StateListening {
		t.Fatalf("expected listening after playback complete, got %s", m.State())
	}
}

func TestManagerBargeInFlushesOnAggressiveStrategy(t *testing.T) {
	emitter := &recordingEmitter{}
	m := NewManagerWithOptions(AggressiveStrategy{}, emitter, ManagerOptions{MinBargeIn: 10 * time.Millisecond})

	m.OnUserSpeechStart()
	m.OnUserSpeechEnd()
	m.OnAgentSpeechStart()

	m.OnUserSpeechStart() // interrupts speaking

	time.Sleep(30 * time.Millisecond)
	if emitter.count() == 0 {
		t.Fatalf("expected flush/cancel frames to be emitted on barge-in")
	}
}

func TestManagerPoliteStrategyDoesNotFlush(t *testing.T) {
	emitter := &recordingEmitter{}
	m := NewManagerWithOptions(PoliteStrategy{}, emitter, ManagerOptions{MinBargeIn: 10 * time.Millisecond})

	m.OnUserSpeechStart()
	m.OnUserSpeechEnd()
	m.OnAgentSpeechStart()
	m.OnUserSpeechStart()

	time.Sleep(30 * time.Millisecond)
	if emitter.count() != 0 {
		t.Fatalf("expected no flush for polite strategy, got %d frames", emitter.count())
	}
}

func TestManagerAgentProcessFromIdle(t *testing.T) {
	m := NewManager(PoliteStrategy{}, &recordingEmitter{})
	m.OnAgentProcessStart()
	if m.State() != StateProcessing {
		t.Fatalf("expected processing after agent process start from idle, got %s", m.State())
	}
}
