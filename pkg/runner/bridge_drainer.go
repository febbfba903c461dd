package runner

import (
	"context"
	"time"
)

// CallManager is the slice of *callmanager.Manager the bridge drainer
// needs at shutdown. Declared locally instead of importing
// pkg/callmanager to keep pkg/runner free of a domain dependency.
type CallManager interface {
	Shutdown(ctx context.Context, perCallTimeout time.Duration)
}

// HTTPServer is the slice of *webhook.Server the bridge drainer needs
// at shutdown.
type HTTPServer interface {
	Shutdown(ctx context.Context) error
}

// BridgeDrainer implements Drainer for the call bridge: it hangs up
// every live call before closing the HTTP+WebSocket front door, so the
// carrier sees a clean EndCall on each line instead of a dropped
// connection (spec S6).
type BridgeDrainer struct {
	Manager        CallManager
	Server         HTTPServer
	Timeout        time.Duration
	PerCallTimeout time.Duration
}

func (d BridgeDrainer) Drain() error {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	perCall := d.PerCallTimeout
	if perCall <= 0 {
		perCall = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if d.Manager != nil {
		d.Manager.Shutdown(ctx, perCall)
	}
	if d.Server != nil {
		return d.Server.Shutdown(ctx)
	}
	return nil
}

var _ Drainer = BridgeDrainer{}
