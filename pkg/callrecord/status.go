package callrecord

import "strings"

// ParseStatus maps a carrier status string to the closed set,
// case-insensitively; unknown strings default to initiated.
func ParseStatus(raw string) SignalingStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued":
		return StatusQueued
	case "initiated":
		return StatusInitiated
	case "ringing":
		return StatusRinging
	case "in-progress", "inprogress", "answered", "active":
		return StatusInProgress
	case "completed", "hangup":
		return StatusCompleted
	case "busy":
		return StatusBusy
	case "failed", "error":
		return StatusFailed
	case "no-answer", "no_answer", "noanswer":
		return StatusNoAnswer
	case "canceled", "cancelled":
		return StatusCanceled
	default:
		return StatusInitiated
	}
}
