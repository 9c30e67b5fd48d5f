package mqttchannel

import (
	"github/bherbruck/edgeagent/internal/actorkit"
)

const defaultSubscriberQueueCapacity = 256

// ClientActorBuilder is the wiring-stage object for a ClientActor: peers
// call RegisterSubscriber to wire themselves in before TryBuild freezes
// the topology, and Input/Signal hand out the senders they need to drive
// the actor afterward.
type ClientActorBuilder struct {
	name     string
	cfg      ClientConfig
	input    *actorkit.Channel[Request]
	signal   *actorkit.Channel[actorkit.RuntimeRequest]
	registry *Registry
	metrics  *Metrics
}

// NewClientActorBuilder creates a builder for one broker connection. cfg is
// validated at TryBuild, not here, so callers may finish filling it in
// after construction (e.g. once TLS material is loaded).
func NewClientActorBuilder(name string, cfg ClientConfig) *ClientActorBuilder {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = defaultSubscriberQueueCapacity
	}
	return &ClientActorBuilder{
		name:     name,
		cfg:      cfg,
		input:    actorkit.NewChannel[Request](cfg.QueueCapacity),
		signal:   actorkit.NewChannel[actorkit.RuntimeRequest](1),
		registry: NewRegistry(),
		metrics:  NewMetrics(cfg.ClientID),
	}
}

// Input returns the sender peers use to submit Publish/Subscribe requests.
func (b *ClientActorBuilder) Input() actorkit.DynSender[Request] {
	return b.input.Sender()
}

// Signal returns the sender used to request shutdown of this actor.
func (b *ClientActorBuilder) Signal() actorkit.DynSender[actorkit.RuntimeRequest] {
	return b.signal.Sender()
}

// RegisterSubscriber wires peer into the actor's Dynamic Subscription
// Registry under clientID with the given initial filter. The broker-level
// SUBSCRIBE for any pattern this adds is issued once the actor connects,
// alongside the rest of the aggregate filter set.
func (b *ClientActorBuilder) RegisterSubscriber(clientID string, filter *TopicFilter, peer actorkit.MessageSink[Message]) {
	b.registry.Register(clientID, filter, peer.GetSender())
}

// RegisterSubscriberChannel is RegisterSubscriber for callers that want to
// own the delivery channel directly rather than wiring through a peer's
// MessageSink (e.g. the Bridge, whose Coordinator reads straight off a
// Channel it owns).
func (b *ClientActorBuilder) RegisterSubscriberChannel(clientID string, filter *TopicFilter) *actorkit.Channel[Message] {
	ch := actorkit.NewChannel[Message](b.cfg.QueueCapacity)
	b.registry.Register(clientID, filter, ch.Sender())
	return ch
}

// TryBuild freezes the topology and returns the runnable actor.
func (b *ClientActorBuilder) TryBuild() (*ClientActor, error) {
	if b.cfg.Host == "" {
		return nil, actorkit.NewBuildError("mqttchannel: %s: host must not be empty", b.name)
	}
	if b.cfg.ClientID == "" {
		return nil, actorkit.NewBuildError("mqttchannel: %s: client id must not be empty", b.name)
	}
	return &ClientActor{
		name:      b.name,
		cfg:       b.cfg,
		requests:  b.input.Receiver(),
		signal:    b.signal.Receiver(),
		registry:  b.registry,
		metrics:   b.metrics,
		reconnect: NewReconnector(),
	}, nil
}
