package lifecycle

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github/bherbruck/edgeagent/internal/actorkit"
	"github/bherbruck/edgeagent/internal/mqttchannel"
)

// HealthActor periodically republishes a retained "up" health message so a
// watcher can distinguish "still alive" from "stuck since last connect";
// the MQTT Client Actor itself only publishes on connect/disconnect
// transitions.
type HealthActor struct {
	name     string
	topic    string
	interval time.Duration
	target   actorkit.DynSender[mqttchannel.Request]
	signal   <-chan actorkit.RuntimeRequest
}

type healthPayload struct {
	Status string `json:"status"`
	PID    int    `json:"pid"`
	Time   string `json:"time"`
}

func (a *HealthActor) Name() string { return a.name }

func (a *HealthActor) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.publish("down")
			return nil
		case <-a.signal:
			a.publish("down")
			return nil
		case <-ticker.C:
			a.publish("up")
		}
	}
}

func (a *HealthActor) publish(status string) {
	payload, err := json.Marshal(healthPayload{Status: status, PID: os.Getpid(), Time: time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		return
	}
	msg := mqttchannel.NewMessage(a.topic, payload, mqttchannel.AtLeastOnce, true)
	_ = a.target.Send(context.Background(), mqttchannel.NewPublishRequest(msg))
}

// HealthActorBuilder is the actorkit.Builder for HealthActor. Unlike a
// port-exposing builder, it takes its target sender directly at
// construction: the MQTT Client Actor it publishes through is wired once,
// at startup, not reconfigured by an arbitrary peer.
type HealthActorBuilder struct {
	topic    string
	interval time.Duration
	target   actorkit.DynSender[mqttchannel.Request]
	signal   *actorkit.Channel[actorkit.RuntimeRequest]
}

// NewHealthActorBuilder builds a health actor publishing to topic every
// interval (a non-positive interval defaults to 30s) through target.
func NewHealthActorBuilder(topic string, interval time.Duration, target actorkit.DynSender[mqttchannel.Request]) *HealthActorBuilder {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HealthActorBuilder{
		topic:    topic,
		interval: interval,
		target:   target,
		signal:   actorkit.NewChannel[actorkit.RuntimeRequest](1),
	}
}

func (b *HealthActorBuilder) Signal() actorkit.DynSender[actorkit.RuntimeRequest] {
	return b.signal.Sender()
}

func (b *HealthActorBuilder) TryBuild() (*HealthActor, error) {
	if b.target == nil {
		return nil, actorkit.NewBuildError("lifecycle: health actor has no MQTT client target")
	}
	return &HealthActor{
		name:     "health",
		topic:    b.topic,
		interval: b.interval,
		target:   b.target,
		signal:   b.signal.Receiver(),
	}, nil
}
