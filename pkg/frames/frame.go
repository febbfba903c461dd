// Package frames defines the small set of control signals that flow
// between turn-taking and the media-stream session: barge-in
// interruption and playback flush/cancel. It once carried a general
// audio/text/image pipeline vocabulary; that surface is gone because
// nothing in this repo pipes frames through a multi-stage processor
// chain, only the carrier's own audio and this control channel.
package frames

import (
	"sync"
	"time"
)

type Kind string

const (
	KindControl Kind = "control"
)

type ControlCode string

const (
	ControlCancel            ControlCode = "cancel"
	ControlFlush             ControlCode = "flush"
	ControlStartInterruption ControlCode = "start_interruption"
)

// Meta keys attached to control frames.
const (
	MetaStreamID = "stream_id"
	MetaSource   = "source"
	MetaReason   = "reason"
)

type Frame interface {
	Kind() Kind
	PTS() int64
	Meta() map[string]string
}

type ControlFrame struct {
	pts  int64
	code ControlCode
	meta map[string]string
}

func NewControlFrame(streamID string, pts int64, code ControlCode, meta map[string]string) ControlFrame {
	return ControlFrame{
		pts:  pts,
		code: code,
		meta: mergeMeta(streamID, meta),
	}
}

func (c ControlFrame) Kind() Kind              { return KindControl }
func (c ControlFrame) PTS() int64              { return c.pts }
func (c ControlFrame) Meta() map[string]string { return cloneMeta(c.meta) }
func (c ControlFrame) Code() ControlCode       { return c.code }

// PTSGen hands out monotonically increasing per-stream timestamps for
// control frames, which have no wall-clock meaning of their own.
type PTSGen struct {
	mu    sync.Mutex
	value map[string]int64
}

func NewPTSGen() *PTSGen {
	return &PTSGen{value: make(map[string]int64)}
}

func (g *PTSGen) Next(streamID string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	v := g.value[streamID] + time.Millisecond.Nanoseconds()
	g.value[streamID] = v
	return v
}

func mergeMeta(streamID string, meta map[string]string) map[string]string {
	out := make(map[string]string, 2+len(meta))
	if streamID != "" {
		out[MetaStreamID] = streamID
	}
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func cloneMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
