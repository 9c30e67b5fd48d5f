package operation

import (
	"github/bherbruck/edgeagent/internal/actorkit"
	"github/bherbruck/edgeagent/internal/mqttchannel"
)

// Builder is the actorkit.Builder for an operation Actor. It takes its
// input channel and publish target directly at construction — wired by the
// caller via an actorkit.Inbox registered on the local
// mqttchannel.ClientActorBuilder, plus that builder's Input() — rather
// than exposing generic MessageSource/MessageSink ports, since each
// operation actor has exactly one fixed peer (the MQTT client actor for
// the local broker).
type Builder struct {
	kind     Kind
	resTopic string
	handler  Handler
	signer   *Signer
	input    <-chan mqttchannel.Message
	target   actorkit.DynSender[mqttchannel.Request]
	signal   *actorkit.Channel[actorkit.RuntimeRequest]
}

// NewBuilder constructs a Builder for kind, consuming request envelopes
// from input and publishing responses to resTopic through target. The
// default handler is StubHandler; use WithHandler to override and
// WithSigner to enable acknowledgement signing.
func NewBuilder(kind Kind, resTopic string, input <-chan mqttchannel.Message, target actorkit.DynSender[mqttchannel.Request]) *Builder {
	return &Builder{
		kind:     kind,
		resTopic: resTopic,
		handler:  StubHandler,
		input:    input,
		target:   target,
		signal:   actorkit.NewChannel[actorkit.RuntimeRequest](1),
	}
}

func (b *Builder) WithHandler(h Handler) *Builder {
	b.handler = h
	return b
}

func (b *Builder) WithSigner(s *Signer) *Builder {
	b.signer = s
	return b
}

func (b *Builder) Signal() actorkit.DynSender[actorkit.RuntimeRequest] {
	return b.signal.Sender()
}

func (b *Builder) TryBuild() (*Actor, error) {
	if b.input == nil {
		return nil, actorkit.NewBuildError("operation: %s actor has no request source wired", b.kind)
	}
	if b.target == nil {
		return nil, actorkit.NewBuildError("operation: %s actor has no MQTT client target", b.kind)
	}
	return &Actor{
		name:     "operation-" + string(b.kind),
		kind:     b.kind,
		resTopic: b.resTopic,
		handler:  b.handler,
		signer:   b.signer,
		input:    b.input,
		signal:   b.signal.Receiver(),
		target:   b.target,
	}, nil
}
