// Package lifecycle implements the Signal & Lifecycle actors: UNIX signal
// ingestion into a runtime shutdown request, and a periodic health-publish
// actor with last-will backing.
package lifecycle

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github/bherbruck/edgeagent/internal/actorkit"
)

// SignalActor listens for SIGINT, SIGTERM, SIGQUIT and requests shutdown
// on the first one received; further signals are ignored.
type SignalActor struct {
	name   string
	signal <-chan actorkit.RuntimeRequest
	handle actorkit.Handle

	once sync.Once
}

// NewSignalActor builds a SignalActor that requests shutdown through
// handle on the first SIGINT/SIGTERM/SIGQUIT.
func NewSignalActor(handle actorkit.Handle, shutdown <-chan actorkit.RuntimeRequest) *SignalActor {
	return &SignalActor{name: "signal", signal: shutdown, handle: handle}
}

func (a *SignalActor) Name() string { return a.name }

// Run exits once the Supervisor itself is shutting down, whether it was
// this actor's own request or any other actor's fatal error that
// triggered it.
func (a *SignalActor) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.signal:
			return nil
		case sig := <-sigCh:
			a.once.Do(func() {
				slog.Info("lifecycle: received signal, requesting shutdown", "signal", sig.String())
				a.handle.RequestShutdown(ctx)
			})
		}
	}
}

// SignalActorBuilder is the actorkit.Builder for SignalActor.
type SignalActorBuilder struct {
	handle actorkit.Handle
	signal *actorkit.Channel[actorkit.RuntimeRequest]
}

// NewSignalActorBuilder builds the wiring-stage object; Signal() returns a
// sender that stops this actor directly. Under a Supervisor the actor exits
// when Spawn cancels its context, whatever requested the shutdown.
func NewSignalActorBuilder(handle actorkit.Handle) *SignalActorBuilder {
	return &SignalActorBuilder{handle: handle, signal: actorkit.NewChannel[actorkit.RuntimeRequest](1)}
}

func (b *SignalActorBuilder) Signal() actorkit.DynSender[actorkit.RuntimeRequest] {
	return b.signal.Sender()
}

func (b *SignalActorBuilder) TryBuild() (*SignalActor, error) {
	return NewSignalActor(b.handle, b.signal.Receiver()), nil
}
