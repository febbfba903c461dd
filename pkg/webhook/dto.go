package webhook

import (
	"time"

	"github.com/vardirect/callbridge/pkg/callrecord"
)

// callSummary is the compact shape returned by GET /api/calls.
type callSummary struct {
	CallSID           string `json:"callSid"`
	Direction         string `json:"direction"`
	From              string `json:"from"`
	To                string `json:"to"`
	Status            string `json:"status"`
	ConversationState string `json:"conversationState"`
	DurationSeconds   int64  `json:"durationSeconds"`
}

// callDetail is the full shape returned by GET /api/call/:callSid,
// including the transcript.
type callDetail struct {
	callSummary
	CreatedAt  time.Time         `json:"createdAt"`
	Transcript []transcriptEntry `json:"transcript"`
}

type transcriptEntry struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func recordSummary(rec *callrecord.Record) callSummary {
	return callSummary{
		CallSID:           rec.CallSID,
		Direction:         string(rec.Direction),
		From:              rec.From,
		To:                rec.To,
		Status:            string(rec.GetStatus()),
		ConversationState: rec.GetConversationState().String(),
		DurationSeconds:   rec.DurationSeconds(),
	}
}

func recordView(rec *callrecord.Record) callDetail {
	snap := rec.TranscriptSnapshot()
	entries := make([]transcriptEntry, len(snap))
	for i, e := range snap {
		entries[i] = transcriptEntry{Role: string(e.Role), Text: e.Text, Timestamp: e.Timestamp}
	}
	return callDetail{
		callSummary: recordSummary(rec),
		CreatedAt:   rec.CreatedAt,
		Transcript:  entries,
	}
}
