package transform

import (
	"github/bherbruck/edgeagent/internal/actorkit"
	"github/bherbruck/edgeagent/internal/mqttchannel"
)

// Builder is the actorkit.Builder for Actor. Like operation.Builder, it
// takes its input channel and publish target directly at construction
// rather than exposing generic wiring ports.
type Builder struct {
	name   string
	fn     Func
	input  <-chan mqttchannel.Message
	target actorkit.DynSender[mqttchannel.Request]
	signal *actorkit.Channel[actorkit.RuntimeRequest]
}

// NewBuilder constructs a Builder named name, reading from input and
// publishing through target. fn defaults to nil, which TryBuild rejects —
// callers must set one explicitly via WithFunc (even if that's Identity).
func NewBuilder(name string, input <-chan mqttchannel.Message, target actorkit.DynSender[mqttchannel.Request]) *Builder {
	return &Builder{
		name:   name,
		input:  input,
		target: target,
		signal: actorkit.NewChannel[actorkit.RuntimeRequest](1),
	}
}

func (b *Builder) WithFunc(fn Func) *Builder {
	b.fn = fn
	return b
}

func (b *Builder) Signal() actorkit.DynSender[actorkit.RuntimeRequest] {
	return b.signal.Sender()
}

func (b *Builder) TryBuild() (*Actor, error) {
	if b.input == nil {
		return nil, actorkit.NewBuildError("transform: %s has no input source wired", b.name)
	}
	if b.target == nil {
		return nil, actorkit.NewBuildError("transform: %s has no MQTT client target", b.name)
	}
	if b.fn == nil {
		return nil, actorkit.NewBuildError("transform: %s has no transform function configured", b.name)
	}
	return &Actor{
		name:   b.name,
		fn:     b.fn,
		input:  b.input,
		signal: b.signal.Receiver(),
		target: b.target,
	}, nil
}
