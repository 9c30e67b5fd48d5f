package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github/bherbruck/edgeagent/internal/actorkit"
	"github/bherbruck/edgeagent/internal/mqttchannel"
)

// Config assembles everything needed to build one Bridge instance: two
// broker endpoints, the rule set, a health topic, and an optional durable
// store.
type Config struct {
	Name        string
	Local       mqttchannel.ClientConfig
	Cloud       mqttchannel.ClientConfig
	Rules       RuleSet
	HealthTopic string
	Store       *StoreConfig
}

// Bridge is the built, spawnable bundle of actors: two MQTT Client Actors
// plus a Coordinator per direction. All four actors must be registered
// with the same Supervisor so shutdown reaches both halves together.
type Bridge struct {
	Name         string
	Local        *mqttchannel.ClientActor
	Cloud        *mqttchannel.ClientActor
	LocalToCloud *Coordinator
	CloudToLocal *Coordinator

	health        *HealthAggregator
	metrics       *Metrics
	store         *Store
	healthTopic   string
	healthPublish actorkit.DynSender[mqttchannel.Request]
}

// Builder is the actorkit.Builder for a Bridge: TryBuild validates the
// rule set, opens the store, and wires the local/cloud client actors plus
// the two coordinators together.
type Builder struct {
	cfg Config
}

// NewBuilder creates a Builder from cfg. Rule validation happens in
// TryBuild; an invalid rule set aborts bridge startup.
func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg}
}

func (b *Builder) TryBuild() (*Bridge, error) {
	if err := b.cfg.Rules.Validate(); err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}

	metrics := NewMetrics(b.cfg.Name)
	var store *Store
	if b.cfg.Store != nil {
		s, err := OpenStore(*b.cfg.Store)
		if err != nil {
			return nil, err
		}
		store = s
	}

	br := &Bridge{
		Name:        b.cfg.Name,
		metrics:     metrics,
		store:       store,
		healthTopic: b.cfg.HealthTopic,
	}
	br.health = NewHealthAggregator(br.publishHealth)

	localCfg := b.cfg.Local
	cloudCfg := b.cfg.Cloud
	// Each half has exactly one subscriber (its direction's Coordinator),
	// so deferring the inbound ack to the Coordinator is unambiguous: a
	// QoS>=1 publish is only acked to its source broker once the opposite
	// broker has acknowledged the forwarded copy.
	localCfg.ManualAcks = true
	cloudCfg.ManualAcks = true
	// CloudToLocal publishes to the local side, so a local reconnect is
	// what makes replaying its pending rows useful; symmetrically,
	// LocalToCloud replays when the cloud side comes back up. Replay runs
	// in its own goroutine since OnConnectionChange fires from the client
	// actor's own goroutine and must not block it.
	localCfg.OnConnectionChange = func(up bool) {
		br.health.SetLocal(up)
		if up {
			go br.CloudToLocal.ReplayPending(context.Background())
		}
	}
	cloudCfg.OnConnectionChange = func(up bool) {
		br.health.SetCloud(up)
		if up {
			go br.LocalToCloud.ReplayPending(context.Background())
		}
	}

	localBuilder := mqttchannel.NewClientActorBuilder(b.cfg.Name+"-local", localCfg)
	cloudBuilder := mqttchannel.NewClientActorBuilder(b.cfg.Name+"-cloud", cloudCfg)

	l2cFilter, err := patternFilter(b.cfg.Rules.SourcePatterns(LocalToCloud))
	if err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}
	c2lFilter, err := patternFilter(b.cfg.Rules.SourcePatterns(CloudToLocal))
	if err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}

	l2cCh := localBuilder.RegisterSubscriberChannel(b.cfg.Name+"-l2c", l2cFilter)
	c2lCh := cloudBuilder.RegisterSubscriberChannel(b.cfg.Name+"-c2l", c2lFilter)

	local, err := localBuilder.TryBuild()
	if err != nil {
		return nil, fmt.Errorf("bridge: building local client: %w", err)
	}
	cloud, err := cloudBuilder.TryBuild()
	if err != nil {
		return nil, fmt.Errorf("bridge: building cloud client: %w", err)
	}

	br.Local = local
	br.Cloud = cloud
	br.LocalToCloud = NewCoordinator(b.cfg.Name+"-l2c", LocalToCloud, &b.cfg.Rules, l2cCh.Receiver(), cloudBuilder.Input(), store, metrics)
	br.CloudToLocal = NewCoordinator(b.cfg.Name+"-c2l", CloudToLocal, &b.cfg.Rules, c2lCh.Receiver(), localBuilder.Input(), store, metrics)
	if b.cfg.HealthTopic != "" {
		br.healthPublish = cloudBuilder.Input()
	}
	return br, nil
}

// patternFilter builds a TopicFilter from patterns. With no patterns the
// filter accepts nothing, which is correct for a direction with no rules.
func patternFilter(patterns []string) (*mqttchannel.TopicFilter, error) {
	return mqttchannel.NewTopicFilter(mqttchannel.AtLeastOnce, patterns...)
}

func (br *Bridge) publishHealth(status string) {
	if br.metrics != nil {
		br.metrics.SetHealth(status == "up")
	}
	if br.healthPublish == nil || br.healthTopic == "" {
		return
	}

	payload, err := json.Marshal(struct {
		Status string `json:"status"`
		PID    int    `json:"pid"`
		Time   string `json:"time"`
	}{Status: status, PID: os.Getpid(), Time: time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		return
	}

	msg := mqttchannel.NewMessage(br.healthTopic, payload, mqttchannel.AtLeastOnce, true)
	_ = br.healthPublish.Send(context.Background(), mqttchannel.NewPublishRequest(msg))
}
