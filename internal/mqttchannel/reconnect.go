package mqttchannel

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Reconnector drives the MQTT Client Actor's reconnect backoff: initial 1s,
// cap 60s, jitter +-20%. It is reset to its initial interval on every
// successful connect.
type Reconnector struct {
	b backoff.BackOff
}

// NewReconnector builds the standard reconnect policy.
func NewReconnector() *Reconnector {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 1 * time.Second
	eb.MaxInterval = 60 * time.Second
	eb.RandomizationFactor = 0.2
	eb.MaxElapsedTime = 0 // retry forever until shutdown
	// NewExponentialBackOff already reset itself with its default interval;
	// reset again so the first Wait starts from InitialInterval.
	eb.Reset()
	return &Reconnector{b: eb}
}

// Reset returns the policy to its initial interval, called after every
// successful connect so a later failure starts backing off from 1s again.
func (r *Reconnector) Reset() {
	r.b.Reset()
}

// Wait sleeps for the next backoff interval, returning false if ctx is
// done first (in which case the caller must stop retrying).
func (r *Reconnector) Wait(ctx context.Context) bool {
	d := r.b.NextBackOff()
	if d == backoff.Stop {
		return false
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
