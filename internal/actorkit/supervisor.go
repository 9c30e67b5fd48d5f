package actorkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// RuntimeAction is the event stream the Supervisor listens on. Shutdown is
// the only variant today; any actor (or the Signal actor) may send it via
// the handle returned by GetHandle.
type RuntimeAction int

const (
	// ActionShutdown requests an orderly shutdown of every spawned actor.
	ActionShutdown RuntimeAction = iota
)

// handle is the cloneable sender side of the Supervisor's action channel.
type handle struct {
	actions DynSender[RuntimeAction]
}

// Handle lets any actor request shutdown without holding a reference to the
// Supervisor itself: actors reach into this common coordinator instead of
// each other, which keeps the topology free of cycles.
type Handle interface {
	RequestShutdown(ctx context.Context)
}

func (h handle) RequestShutdown(ctx context.Context) {
	_ = h.actions.Send(ctx, ActionShutdown)
}

type spawned struct {
	name   string
	signal *Channel[RuntimeRequest]
	done   chan struct{} // closed once Run has returned
	err    error         // valid only after done is closed
}

// Supervisor owns the set of spawned actors, a shutdown fan-out, and a
// completion barrier. The zero value is not usable; use NewSupervisor.
type Supervisor struct {
	mu         sync.Mutex
	actors     []*spawned
	actions    *Channel[RuntimeAction]
	grace      time.Duration
	shutdownCh chan struct{}
	once       sync.Once
}

// NewSupervisor creates a Supervisor with the given grace period: the
// maximum time actors are given to drain after Shutdown before their tasks
// are abandoned.
func NewSupervisor(grace time.Duration) *Supervisor {
	if grace <= 0 {
		grace = 10 * time.Second
	}
	return &Supervisor{
		actions:    NewChannel[RuntimeAction](8),
		grace:      grace,
		shutdownCh: make(chan struct{}),
	}
}

// GetHandle returns a cloneable handle actors can use to request shutdown.
func (s *Supervisor) GetHandle() Handle {
	return handle{actions: s.actions.Sender()}
}

// Spawn builds the actor via b, records its shutdown signal channel, and
// starts Run in its own goroutine. Spawn must be called before
// RunToCompletion; actors spawned after shutdown has begun are rejected.
func Spawn[A Actor](s *Supervisor, b Builder[A]) error {
	actor, err := b.TryBuild()
	if err != nil {
		return err
	}

	s.mu.Lock()
	select {
	case <-s.shutdownCh:
		s.mu.Unlock()
		return errors.New("actorkit: supervisor already shutting down")
	default:
	}

	sig := NewChannel[RuntimeRequest](1)
	rec := &spawned{name: actor.Name(), signal: sig, done: make(chan struct{})}
	s.actors = append(s.actors, rec)
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		// Forward the per-actor shutdown signal into context cancellation
		// so actors written against context.Context (e.g. blocking network
		// calls) observe shutdown the same way actors polling MessageBox do.
		select {
		case <-sig.Receiver():
			cancel()
		case <-ctx.Done():
		}
	}()

	go func() {
		defer cancel()
		rec.err = runActor(ctx, actor)
		close(rec.done)
		if rec.err != nil && !errors.Is(rec.err, context.Canceled) {
			// A fatal actor error shuts down the remaining actors.
			select {
			case s.actions.ch <- ActionShutdown:
			default:
			}
		}
	}()

	return nil
}

// runActor invokes Run, converting a panic in the actor's task into a
// fatal error so it triggers full shutdown like any other actor failure.
func runActor(ctx context.Context, actor Actor) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return actor.Run(ctx)
}

// RunToCompletion waits for either all spawned actors to exit or an
// ActionShutdown event, then sends Shutdown to every actor's signal
// channel and awaits them within the configured grace period. It returns
// the first non-cancellation error encountered, aggregated across actors.
func (s *Supervisor) RunToCompletion(ctx context.Context) error {
	allDone := make(chan struct{})
	go func() {
		s.mu.Lock()
		actors := append([]*spawned(nil), s.actors...)
		s.mu.Unlock()
		for _, a := range actors {
			<-a.done
		}
		close(allDone)
	}()

	select {
	case <-allDone:
		return s.collectErrors()
	case <-s.actions.Receiver():
		slog.Info("supervisor: shutdown requested")
	case <-ctx.Done():
		slog.Info("supervisor: context cancelled")
	}

	s.shutdown()

	select {
	case <-allDone:
	case <-time.After(s.grace):
		slog.Warn("supervisor: grace period elapsed, abandoning remaining actors")
	}

	return s.collectErrors()
}

// shutdown sends Shutdown to every actor exactly once; a second call is a
// no-op.
func (s *Supervisor) shutdown() {
	s.once.Do(func() {
		s.mu.Lock()
		actors := append([]*spawned(nil), s.actors...)
		s.mu.Unlock()
		for _, a := range actors {
			_ = a.signal.Sender().Send(context.Background(), Shutdown)
		}
		close(s.shutdownCh)
	})
}

func (s *Supervisor) collectErrors() error {
	s.mu.Lock()
	actors := append([]*spawned(nil), s.actors...)
	s.mu.Unlock()

	var first error
	for _, a := range actors {
		select {
		case <-a.done:
			if a.err == nil || errors.Is(a.err, context.Canceled) {
				// Cancellation is shutdown, not failure.
				continue
			}
			slog.Error("actor exited with error", "actor", a.name, "error", a.err)
			if first == nil {
				first = &RuntimeError{Actor: a.name, Err: a.err}
			}
		default:
			// Still running past the grace period: treated as cancelled,
			// not an error.
		}
	}
	return first
}
