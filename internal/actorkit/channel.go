// Package actorkit implements the typed actor runtime: channels, senders,
// message boxes, the actor/builder contract and the runtime supervisor that
// wires everything else in this repository together.
package actorkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrChannelClosed is returned by a DynSender when its receiving end has
// gone away. Callers recover locally: drop the message, optionally log.
var ErrChannelClosed = errors.New("actorkit: channel closed")

// DynSender is an ownership-erased, cloneable, async send handle onto some
// channel. It carries no information about who is on the other end.
type DynSender[T any] interface {
	// Send delivers v, suspending if the channel is at capacity. It returns
	// ErrChannelClosed if the receiving end has already gone away.
	Send(ctx context.Context, v T) error
	// Clone returns an independent handle onto the same underlying channel.
	Clone() DynSender[T]
}

// Channel is a multi-producer, single-consumer async queue. The zero value
// is not usable; construct with NewChannel.
type Channel[T any] struct {
	ch     chan T
	closed chan struct{}
}

// NewChannel creates a bounded channel with the given capacity. A capacity
// of 0 yields a synchronous (unbuffered) rendezvous channel.
func NewChannel[T any](capacity int) *Channel[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Channel[T]{
		ch:     make(chan T, capacity),
		closed: make(chan struct{}),
	}
}

// Sender returns a DynSender writing onto this channel.
func (c *Channel[T]) Sender() DynSender[T] {
	return &chanSender[T]{ch: c}
}

// Receiver returns the read-only channel end. Receive stops (returns zero
// value, ok=false) once Close has been called and the buffer is drained.
func (c *Channel[T]) Receiver() <-chan T {
	return c.ch
}

// Close marks the channel closed; further Send calls return
// ErrChannelClosed. Close is idempotent.
func (c *Channel[T]) Close() {
	select {
	case <-c.closed:
		return
	default:
		close(c.closed)
		close(c.ch)
	}
}

type chanSender[T any] struct {
	ch *Channel[T]
}

func (s *chanSender[T]) Send(ctx context.Context, v T) error {
	select {
	case <-s.ch.closed:
		return ErrChannelClosed
	default:
	}
	select {
	case s.ch.ch <- v:
		return nil
	case <-s.ch.closed:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *chanSender[T]) Clone() DynSender[T] {
	return &chanSender[T]{ch: s.ch}
}

// MappingSender wraps a DynSender[T] so it accepts U, dropping any value for
// which f returns (zero, false).
type MappingSender[U any, T any] struct {
	target DynSender[T]
	f      func(U) (T, bool)
}

// NewMappingSender builds a DynSender[U] that forwards f(u) to target
// whenever f reports ok; otherwise the value is silently dropped.
func NewMappingSender[U any, T any](target DynSender[T], f func(U) (T, bool)) DynSender[U] {
	return &MappingSender[U, T]{target: target, f: f}
}

func (m *MappingSender[U, T]) Send(ctx context.Context, u U) error {
	t, ok := m.f(u)
	if !ok {
		return nil
	}
	return m.target.Send(ctx, t)
}

func (m *MappingSender[U, T]) Clone() DynSender[U] {
	return &MappingSender[U, T]{target: m.target.Clone(), f: m.f}
}

// LoggingSender wraps a DynSender[T], emitting a debug log entry for every
// value sent, tagged with the owning actor's name.
type LoggingSender[T any] struct {
	target DynSender[T]
	actor  string
}

// NewLoggingSender wraps target, logging each send at debug level under the
// given actor name.
func NewLoggingSender[T any](target DynSender[T], actorName string) DynSender[T] {
	return &LoggingSender[T]{target: target, actor: actorName}
}

func (l *LoggingSender[T]) Send(ctx context.Context, v T) error {
	err := l.target.Send(ctx, v)
	if err != nil {
		slog.Debug("actor send failed", "actor", l.actor, "message", fmt.Sprintf("%+v", v), "error", err)
	} else {
		slog.Debug("actor send", "actor", l.actor, "message", fmt.Sprintf("%+v", v))
	}
	return err
}

func (l *LoggingSender[T]) Clone() DynSender[T] {
	return &LoggingSender[T]{target: l.target.Clone(), actor: l.actor}
}

// NullSender discards every value sent to it. Useful as a default peer for
// optional sinks during wiring.
type NullSender[T any] struct{}

// NewNullSender returns a DynSender[T] that discards everything.
func NewNullSender[T any]() DynSender[T] { return NullSender[T]{} }

func (NullSender[T]) Send(context.Context, T) error { return nil }
func (n NullSender[T]) Clone() DynSender[T]         { return n }
