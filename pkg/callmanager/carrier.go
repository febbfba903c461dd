package callmanager

import "context"

// Carrier is the narrow outbound-signaling contract the manager needs
// from the telephony transport: originating calls and steering a live
// one with fresh TwiML or a hangup. Implemented by pkg/carrier.
type Carrier interface {
	// PlaceCall originates a call to `to` with inline TwiML fetched by
	// the carrier once the callee answers, and returns the
	// carrier-assigned call id.
	PlaceCall(ctx context.Context, to, twiml, statusCallbackURL string) (callSID string, err error)

	// UpdateCall pushes inline TwiML to redirect a live call, e.g. a
	// fallback <Say> when a live media session is unavailable.
	UpdateCall(ctx context.Context, callSID, twiml string) error

	// HangupCall terminates a live call immediately.
	HangupCall(ctx context.Context, callSID string) error
}
