package turn

import (
	"github.com/vardirect/callbridge/pkg/frames"
)

// InterruptEmitter carries turn-taking control signals out to whatever
// owns the media-stream session, so it can clear queued playback and
// tell the carrier to drop buffered audio.
type InterruptEmitter interface {
	Emit(frame frames.Frame) error
}

// NewInterruptFrame builds the control frame the state machine's
// duration-threshold barge-in path (stateMachine.OnSTTInput) emits when
// inbound speech runs past bargeInThreshold while the agent is speaking.
func NewInterruptFrame(streamID string, pts int64) frames.ControlFrame {
	return frames.NewControlFrame(streamID, pts, frames.ControlStartInterruption, nil)
}
