// Package carrier implements callmanager.Carrier against Twilio's REST
// API and validates that inbound webhook requests really came from
// Twilio, the way the teacher's pkg/transports/twilio dialer/transport
// pair does, split into the narrower place/update/hangup contract
// pkg/callmanager needs.
package carrier

import (
	"context"
	"errors"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

type callClient interface {
	CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error)
	UpdateCall(sid string, params *api.UpdateCallParams) (*api.ApiV2010Call, error)
}

// Twilio implements callmanager.Carrier.
type Twilio struct {
	cfg    Config
	client callClient
}

func New(cfg Config) *Twilio {
	return &Twilio{cfg: cfg.withDefaults()}
}

func (t *Twilio) restClient() callClient {
	if t.client != nil {
		return t.client
	}
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: t.cfg.AccountSID,
		Password: t.cfg.AuthToken,
	})
	return rest.Api
}

// PlaceCall originates an outbound call whose initial TwiML is embedded
// directly rather than fetched from a URL, since the manager already
// has the exact document to play.
func (t *Twilio) PlaceCall(ctx context.Context, to, twiml, statusCallbackURL string) (string, error) {
	_ = ctx
	if to == "" || twiml == "" {
		return "", errors.New("carrier: to and twiml are required")
	}
	if t.cfg.AccountSID == "" || t.cfg.AuthToken == "" {
		return "", errors.New("carrier: missing twilio credentials")
	}
	if t.cfg.FromNumber == "" {
		return "", errors.New("carrier: missing from number")
	}
	params := &api.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(t.cfg.FromNumber)
	params.SetTwiml(twiml)
	if statusCallbackURL != "" {
		params.SetStatusCallback(statusCallbackURL)
		params.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})
		params.SetStatusCallbackMethod("POST")
	}
	resp, err := t.restClient().CreateCall(params)
	if err != nil {
		t.cfg.Logger.Error("place_call_failed", "to", to, "error", err.Error())
		return "", err
	}
	if resp == nil || resp.Sid == nil {
		return "", errors.New("carrier: missing call sid in response")
	}
	return *resp.Sid, nil
}

// UpdateCall redirects a live call to fresh TwiML, e.g. the fallback
// <Say> path when a call has no attached media session.
func (t *Twilio) UpdateCall(ctx context.Context, callSID, twiml string) error {
	_ = ctx
	if callSID == "" {
		return errors.New("carrier: call sid required")
	}
	params := &api.UpdateCallParams{}
	params.SetTwiml(twiml)
	_, err := t.restClient().UpdateCall(callSID, params)
	if err != nil {
		t.cfg.Logger.Error("update_call_failed", "call_sid", callSID, "error", err.Error())
	}
	return err
}

// HangupCall ends a live call by transitioning its status to completed.
func (t *Twilio) HangupCall(ctx context.Context, callSID string) error {
	_ = ctx
	if callSID == "" {
		return errors.New("carrier: call sid required")
	}
	params := &api.UpdateCallParams{}
	params.SetStatus("completed")
	_, err := t.restClient().UpdateCall(callSID, params)
	if err != nil {
		t.cfg.Logger.Error("hangup_call_failed", "call_sid", callSID, "error", err.Error())
	}
	return err
}

// ValidateSignature checks the X-Twilio-Signature header against the
// request URL and form-encoded body, the same way the teacher's
// transport.validateTwilioRequest does. requestURL must be the exact
// URL Twilio signed, including scheme and host.
func (t *Twilio) ValidateSignature(requestURL, signature string, form map[string]string) bool {
	if signature == "" || t.cfg.AuthToken == "" {
		return false
	}
	validator := twilioclient.NewRequestValidator(t.cfg.AuthToken)
	return validator.Validate(requestURL, form, signature)
}
