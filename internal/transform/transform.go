// Package transform provides the transformation placeholder actor: an
// opaque stand-in for an external transformation/mapping pipeline. It has
// exactly one MQTT input port and one MQTT output port and applies a
// caller-supplied Func to every message; the Identity Func republishes
// unchanged, so wiring this actor with it behaves as a transparent relay.
package transform

import (
	"context"
	"log/slog"

	"github/bherbruck/edgeagent/internal/actorkit"
	"github/bherbruck/edgeagent/internal/mqttchannel"
)

// Func maps one inbound message to zero or one outbound messages. Returning
// ok=false drops the message without publishing anything (e.g. a filter
// stage). Identity(outTopic) builds the Func that republishes msg unchanged
// on outTopic; a nil Func is rejected by Builder.TryBuild.
type Func func(msg mqttchannel.Message) (mqttchannel.Message, bool)

// Identity republishes msg verbatim under outTopic, preserving QoS and
// retain.
func Identity(outTopic string) Func {
	return func(msg mqttchannel.Message) (mqttchannel.Message, bool) {
		return mqttchannel.NewMessage(outTopic, msg.Payload, msg.QoS, msg.Retain), true
	}
}

// Actor is the runnable placeholder: read from input, apply fn, publish
// through target. A real transformation/mapping DSL would replace fn with
// something driven by configuration; this package only provides the MQTT
// plumbing around it.
type Actor struct {
	name   string
	fn     Func
	input  <-chan mqttchannel.Message
	signal <-chan actorkit.RuntimeRequest
	target actorkit.DynSender[mqttchannel.Request]
}

func (a *Actor) Name() string { return a.name }

func (a *Actor) Run(ctx context.Context) error {
	box := actorkit.NewMessageBox(a.input, a.signal)
	for {
		msg, ok := box.Recv(ctx)
		if !ok {
			return nil
		}
		out, ok := a.fn(msg)
		if !ok {
			continue
		}
		if err := a.target.Send(ctx, mqttchannel.NewPublishRequest(out)); err != nil {
			slog.Warn("transform: publish dropped, target channel closed", "actor", a.name, "topic", out.Topic)
		}
	}
}
