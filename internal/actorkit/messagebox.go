package actorkit

import "context"

// RuntimeRequest is the signal type every actor's MessageBox fans in
// alongside its peer input. Shutdown is the only variant today; the type
// exists so the Supervisor can add more without breaking MessageBox's shape.
type RuntimeRequest int

const (
	// Shutdown asks the owning actor to stop at the next opportunity.
	Shutdown RuntimeRequest = iota
)

// MessageBox is the single fan-in point for one actor: peer input plus the
// runtime's shutdown signal. Nothing else may write to the peer channel.
type MessageBox[In any] struct {
	peerInput <-chan In
	signal    <-chan RuntimeRequest
	shutdown  bool
}

// NewMessageBox builds a MessageBox fed by peerInput and signal.
func NewMessageBox[In any](peerInput <-chan In, signal <-chan RuntimeRequest) *MessageBox[In] {
	return &MessageBox[In]{peerInput: peerInput, signal: signal}
}

// Recv returns the next input, or ok=false once the peer stream has ended,
// a shutdown signal has arrived, or ctx is done (the Supervisor cancels
// the actor's context when it fans out Shutdown, so both paths land here).
// Shutdown is checked non-blockingly before every receive so a pending
// Shutdown is preferred over a simultaneously-ready input; once Recv has
// returned ok=false for Shutdown it never again reads from peerInput.
func (b *MessageBox[In]) Recv(ctx context.Context) (In, bool) {
	var zero In
	if b.shutdown {
		return zero, false
	}

	select {
	case <-b.signal:
		b.shutdown = true
		return zero, false
	case <-ctx.Done():
		b.shutdown = true
		return zero, false
	default:
	}

	select {
	case <-b.signal:
		b.shutdown = true
		return zero, false
	case <-ctx.Done():
		b.shutdown = true
		return zero, false
	case v, ok := <-b.peerInput:
		if !ok {
			return zero, false
		}
		return v, true
	}
}

// ShuttingDown reports whether this box has already observed Shutdown.
func (b *MessageBox[In]) ShuttingDown() bool {
	return b.shutdown
}
