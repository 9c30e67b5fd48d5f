// Package localbroker wraps github.com/mochi-mqtt/server/v2 in an
// actorkit.Actor: an in-process MQTT broker cmd/edgeagentd can start on
// mqtt.bind.host/port when mqtt.bridge.built_in is set, so the bridge's
// "local" side has somewhere to dial without an external broker.
package localbroker

import (
	"context"
	"fmt"
	"log/slog"

	mqttServer "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"

	"github/bherbruck/edgeagent/internal/actorkit"
)

// Config mirrors the mqtt.bind.* keys, plus a retained-message capability
// toggle.
type Config struct {
	Host            string
	Port            int
	RetainAvailable bool
}

func (c Config) addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// Broker runs an embedded MQTT broker for the lifetime of the actor. It
// accepts any client: this process's own MQTT Client Actors are the only
// expected connections, so there is no auth/ACL enforcement.
type Broker struct {
	name   string
	cfg    Config
	signal <-chan actorkit.RuntimeRequest
}

func (b *Broker) Name() string { return b.name }

func (b *Broker) Run(ctx context.Context) error {
	opts := &mqttServer.Options{Capabilities: mqttServer.NewDefaultServerCapabilities()}
	if !b.cfg.RetainAvailable {
		opts.Capabilities.RetainAvailable = 0
	}

	server := mqttServer.New(opts)
	if err := server.AddHook(new(allowAllHook), nil); err != nil {
		return fmt.Errorf("localbroker: adding allow hook: %w", err)
	}

	tcp := listeners.NewTCP(listeners.Config{ID: "tcp", Address: b.cfg.addr()})
	if err := server.AddListener(tcp); err != nil {
		return fmt.Errorf("localbroker: adding TCP listener on %s: %w", b.cfg.addr(), err)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve() }()
	slog.Info("localbroker: listening", "addr", b.cfg.addr())

	select {
	case <-ctx.Done():
	case <-b.signal:
	case err := <-serveErr:
		return err
	}

	return server.Close()
}

// allowAllHook permits every connection and publish/subscribe: the only
// clients dialing this broker are this process's own MQTT Client Actors on
// loopback, so auth/ACL enforcement belongs to the network boundary, not
// this broker.
type allowAllHook struct {
	mqttServer.HookBase
}

func (h *allowAllHook) ID() string { return "edgeagent-allow-all" }

func (h *allowAllHook) Provides(b byte) bool {
	return b == mqttServer.OnConnectAuthenticate || b == mqttServer.OnACLCheck
}

func (h *allowAllHook) OnConnectAuthenticate(cl *mqttServer.Client, pk packets.Packet) bool {
	return true
}

func (h *allowAllHook) OnACLCheck(cl *mqttServer.Client, topic string, write bool) bool {
	return true
}

// Builder is the actorkit.Builder for Broker.
type Builder struct {
	cfg    Config
	signal *actorkit.Channel[actorkit.RuntimeRequest]
}

// NewBuilder builds a Builder bound to cfg.
func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg, signal: actorkit.NewChannel[actorkit.RuntimeRequest](1)}
}

func (b *Builder) Signal() actorkit.DynSender[actorkit.RuntimeRequest] {
	return b.signal.Sender()
}

func (b *Builder) TryBuild() (*Broker, error) {
	if b.cfg.Host == "" {
		return nil, actorkit.NewBuildError("localbroker: bind host must not be empty")
	}
	if b.cfg.Port <= 0 {
		return nil, actorkit.NewBuildError("localbroker: bind port must be positive")
	}
	return &Broker{name: "local-broker", cfg: b.cfg, signal: b.signal.Receiver()}, nil
}
