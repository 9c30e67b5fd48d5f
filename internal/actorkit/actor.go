package actorkit

import (
	"context"
	"errors"
	"fmt"
)

// Actor is a long-lived logical process. Run consumes inputs and produces
// outputs until either its input stream ends or the context is cancelled by
// the Supervisor's shutdown. A Run that returns means "done, do not
// revive": actors are never restarted inside the same Supervisor.
type Actor interface {
	Name() string
	Run(ctx context.Context) error
}

// RuntimeError wraps an actor error with the actor's name for aggregate
// reporting by the Supervisor.
type RuntimeError struct {
	Actor string
	Err   error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("actor %q: %v", e.Actor, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// ErrBuild is the sentinel wrapped by every BuildError.
var ErrBuild = errors.New("actorkit: build error")

// BuildError reports a failure at Builder.TryBuild time: a missing required
// peer, a disallowed duplicate sink, or invalid configuration.
type BuildError struct {
	Reason string
}

func (e *BuildError) Error() string { return "actorkit: build failed: " + e.Reason }
func (e *BuildError) Unwrap() error { return ErrBuild }

// NewBuildError constructs a BuildError with a formatted reason.
func NewBuildError(format string, args ...any) error {
	return &BuildError{Reason: fmt.Sprintf(format, args...)}
}

// MessageSink is a port a peer's builder exposes during the wiring stage:
// "I accept Msg; hand me a sender." GetSender returns a sender that
// delivers into the sink owner's fan-in.
type MessageSink[Msg any] interface {
	GetSender() DynSender[Msg]
}

// Inbox is a channel-backed MessageSink: peers obtain senders through
// GetSender, and the owning actor drains Receiver (typically through a
// MessageBox). Every sender delivers onto the same channel, so fan-in
// ordering follows the channel's FIFO-per-sender guarantee.
type Inbox[Msg any] struct {
	ch *Channel[Msg]
}

// NewInbox creates an Inbox with the given capacity.
func NewInbox[Msg any](capacity int) *Inbox[Msg] {
	return &Inbox[Msg]{ch: NewChannel[Msg](capacity)}
}

func (i *Inbox[Msg]) GetSender() DynSender[Msg] { return i.ch.Sender() }

// Receiver returns the drain side of the inbox.
func (i *Inbox[Msg]) Receiver() <-chan Msg { return i.ch.Receiver() }

// Close closes the inbox; pending values remain readable until drained.
func (i *Inbox[Msg]) Close() { i.ch.Close() }

// MessageSource is a port this builder exposes to downstream peers:
// "I can send you messages of type Msg; configure my sending with Cfg."
// ConnectSink wires a peer's sink directly; ConnectMappedSink interposes a
// MappingSender so the peer can receive a projection of Msg.
type MessageSource[Msg any, Cfg any] struct {
	sender DynSender[Msg]
	cfg    Cfg
	wired  bool
}

// NewMessageSource creates an unwired source; call ConnectSink (or
// ConnectMappedSink) during the wiring stage before TryBuild.
func NewMessageSource[Msg any, Cfg any]() *MessageSource[Msg, Cfg] {
	return &MessageSource[Msg, Cfg]{}
}

// ConnectSink stores peer's sender and the source's configuration for this
// connection. A source accepts exactly one sink; a second connect is a
// BuildError.
func (s *MessageSource[Msg, Cfg]) ConnectSink(cfg Cfg, peer MessageSink[Msg]) error {
	if s.wired {
		return NewBuildError("source already connected to a sink")
	}
	s.sender = peer.GetSender()
	s.cfg = cfg
	s.wired = true
	return nil
}

// ConnectMappedSink is like ConnectSink but wraps the peer's sender with a
// MappingSender built from f, so this source may emit Msg while the peer
// observes a different type.
func ConnectMappedSink[Msg any, Cfg any, PeerMsg any](
	s *MessageSource[Msg, Cfg], cfg Cfg, peer MessageSink[PeerMsg], f func(Msg) (PeerMsg, bool),
) error {
	if s.wired {
		return NewBuildError("source already connected to a sink")
	}
	s.sender = NewMappingSender[Msg, PeerMsg](peer.GetSender(), f)
	s.cfg = cfg
	s.wired = true
	return nil
}

// Sender returns the wired sender, or NullSender if nothing was connected
// (an optional source peers chose not to use).
func (s *MessageSource[Msg, Cfg]) Sender() DynSender[Msg] {
	if !s.wired {
		return NewNullSender[Msg]()
	}
	return s.sender
}

// Config returns the configuration supplied by ConnectSink/ConnectMappedSink.
func (s *MessageSource[Msg, Cfg]) Config() Cfg { return s.cfg }

// Wired reports whether a peer has connected to this source.
func (s *MessageSource[Msg, Cfg]) Wired() bool { return s.wired }

// Builder produces exactly one Actor instance. Before TryBuild, a concrete
// Builder exposes typed MessageSource/MessageSink ports (see component
// implementations) so peers can wire themselves in; after TryBuild the
// topology is frozen.
type Builder[A Actor] interface {
	TryBuild() (A, error)
}

// prebuilt adapts an already-constructed actor to Builder, for components
// (like the Bridge) whose own TryBuild wires and returns several finished
// actors at once rather than one per Builder.
type prebuilt[A Actor] struct{ actor A }

func (p prebuilt[A]) TryBuild() (A, error) { return p.actor, nil }

// Prebuilt wraps actor so Spawn can register it with a Supervisor.
func Prebuilt[A Actor](actor A) Builder[A] {
	return prebuilt[A]{actor: actor}
}
