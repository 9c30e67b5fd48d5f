// Command edgeagentd is the edge agent process: it wires the MQTT Client
// Actor(s), the bridge (when the provisioning file declares one), the
// operation envelope actors, and the Signal & Lifecycle actors behind one
// Supervisor, then runs until shutdown.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github/bherbruck/edgeagent/internal/actorkit"
	"github/bherbruck/edgeagent/internal/bridge"
	"github/bherbruck/edgeagent/internal/config"
	"github/bherbruck/edgeagent/internal/lifecycle"
	"github/bherbruck/edgeagent/internal/localbroker"
	"github/bherbruck/edgeagent/internal/mqttchannel"
	"github/bherbruck/edgeagent/internal/operation"
	"github/bherbruck/edgeagent/internal/transform"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if cfg.Version {
		fmt.Println("edgeagentd", version)
		return
	}

	setupLogging(cfg.Log, os.Stdout)
	slog.Info("edgeagentd starting", "version", version, "config_file", cfg.ConfigFile)

	if err := run(cfg); err != nil {
		slog.Error("edgeagentd exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("edgeagentd stopped")
}

// setupLogging installs the process-wide slog handler per cfg.Level/Format.
func setupLogging(cfg config.LogConfig, w io.Writer) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func run(cfg *config.Config) error {
	var provisioning *config.ProvisioningConfig
	if cfg.ConfigFile != "" {
		p, err := config.LoadProvisioning(cfg.ConfigFile)
		if err != nil {
			return fmt.Errorf("loading provisioning file: %w", err)
		}
		provisioning = p
		slog.Info("loaded provisioning file", "path", cfg.ConfigFile, "bridges", len(p.Bridges))
	}

	sup := actorkit.NewSupervisor(10 * time.Second)

	if cfg.Bridge.BuiltIn {
		brokerBuilder := localbroker.NewBuilder(localbroker.Config{
			Host:            cfg.MQTT.Bind.Host,
			Port:            cfg.MQTT.Bind.Port,
			RetainAvailable: true,
		})
		if err := actorkit.Spawn[*localbroker.Broker](sup, brokerBuilder); err != nil {
			return fmt.Errorf("spawning local broker: %w", err)
		}
		slog.Info("built-in local broker enabled", "host", cfg.MQTT.Bind.Host, "port", cfg.MQTT.Bind.Port)
	}

	localCfg := mqttchannel.ClientConfig{
		Host:          cfg.MQTT.Client.Host,
		Port:          cfg.MQTT.Client.Port,
		ClientID:      "edgeagent",
		CleanSession:  false,
		KeepAlive:     30 * time.Second,
		QueueCapacity: cfg.MQTT.QueueCapacity,
		HealthTopic:   "tedge/health/edgeagent",
	}
	localBuilder := mqttchannel.NewClientActorBuilder("local", localCfg)

	var operationBuilders []*operation.Builder
	var transformBuilders []*transform.Builder
	if provisioning != nil {
		operationBuilders = wireOperations(localBuilder, provisioning.Operations)
		transformBuilders = wireTransforms(localBuilder, provisioning.Transforms)
	}

	if err := actorkit.Spawn[*mqttchannel.ClientActor](sup, localBuilder); err != nil {
		return fmt.Errorf("spawning local MQTT client: %w", err)
	}

	for _, b := range operationBuilders {
		if err := actorkit.Spawn[*operation.Actor](sup, b); err != nil {
			return fmt.Errorf("spawning operation actor: %w", err)
		}
	}

	for _, b := range transformBuilders {
		if err := actorkit.Spawn[*transform.Actor](sup, b); err != nil {
			return fmt.Errorf("spawning transform actor: %w", err)
		}
	}

	if provisioning != nil {
		for _, b := range provisioning.Bridges {
			if err := spawnBridge(sup, cfg, b); err != nil {
				return fmt.Errorf("bridge %q: %w", b.Name, err)
			}
		}
	}

	handle := sup.GetHandle()
	signalBuilder := lifecycle.NewSignalActorBuilder(handle)
	if err := actorkit.Spawn[*lifecycle.SignalActor](sup, signalBuilder); err != nil {
		return fmt.Errorf("spawning signal actor: %w", err)
	}

	healthBuilder := lifecycle.NewHealthActorBuilder(localCfg.HealthTopic, 30*time.Second, localBuilder.Input())
	if err := actorkit.Spawn[*lifecycle.HealthActor](sup, healthBuilder); err != nil {
		return fmt.Errorf("spawning health actor: %w", err)
	}

	slog.Info("edgeagentd ready")
	return sup.RunToCompletion(context.Background())
}

// wireOperations registers a subscriber channel on localBuilder for every
// provisioning-enabled operation kind and returns the resulting Builders,
// ready to Spawn once the local client actor's topology is frozen.
func wireOperations(localBuilder *mqttchannel.ClientActorBuilder, toggles config.OperationTogglesConfig) []*operation.Builder {
	var builders []*operation.Builder
	enabled := map[operation.Kind]bool{
		operation.SoftwareUpdate: toggles.SoftwareUpdate,
		operation.ConfigSnapshot: toggles.ConfigSnapshot,
		operation.ConfigUpdate:   toggles.ConfigUpdate,
		operation.LogRequest:     toggles.LogRequest,
		operation.Restart:        toggles.Restart,
		operation.Firmware:       toggles.Firmware,
	}
	for kind, on := range enabled {
		if !on {
			continue
		}
		reqTopic := fmt.Sprintf("tedge/commands/req/%s", kind)
		resTopic := fmt.Sprintf("tedge/commands/res/%s", kind)
		filter, err := mqttchannel.NewTopicFilter(mqttchannel.AtLeastOnce, reqTopic)
		if err != nil {
			slog.Warn("skipping operation actor: invalid request topic", "kind", kind, "error", err)
			continue
		}
		inbox := actorkit.NewInbox[mqttchannel.Message](64)
		localBuilder.RegisterSubscriber(string(kind), filter, inbox)
		builders = append(builders, operation.NewBuilder(kind, resTopic, inbox.Receiver(), localBuilder.Input()))
	}
	return builders
}

// wireTransforms registers a subscriber on localBuilder for every declared
// transform relay and returns the resulting Builders, each republishing
// its source pattern's traffic under the configured target topic.
func wireTransforms(localBuilder *mqttchannel.ClientActorBuilder, transforms []config.TransformConfig) []*transform.Builder {
	var builders []*transform.Builder
	for _, tc := range transforms {
		filter, err := mqttchannel.NewTopicFilter(mqttchannel.AtLeastOnce, tc.Source)
		if err != nil {
			slog.Warn("skipping transform actor: invalid source pattern", "name", tc.Name, "error", err)
			continue
		}
		inbox := actorkit.NewInbox[mqttchannel.Message](64)
		localBuilder.RegisterSubscriber("transform-"+tc.Name, filter, inbox)
		builders = append(builders, transform.NewBuilder(tc.Name, inbox.Receiver(), localBuilder.Input()).
			WithFunc(transform.Identity(tc.Target)))
	}
	return builders
}

func spawnBridge(sup *actorkit.Supervisor, cfg *config.Config, b config.BridgeRuleConfig) error {
	rules, err := b.RuleSet()
	if err != nil {
		return fmt.Errorf("building rule set: %w", err)
	}

	localCfg := mqttchannel.ClientConfig{
		Host:          cfg.MQTT.Client.Host,
		Port:          cfg.MQTT.Client.Port,
		ClientID:      "edgeagent-bridge-" + b.Name + "-local",
		QueueCapacity: cfg.MQTT.QueueCapacity,
	}

	cloudCfg := mqttchannel.ClientConfig{
		Host:          cfg.Cloud.C8Y.URL,
		Port:          8883,
		ClientID:      "edgeagent-bridge-" + b.Name + "-cloud",
		QueueCapacity: cfg.MQTT.QueueCapacity,
	}
	if cfg.Device.CertPath != "" && cfg.Device.KeyPath != "" {
		tlsCfg, err := mqttchannel.LoadTLSConfig(mqttchannel.TLSFiles{
			DeviceCertPath: cfg.Device.CertPath,
			DeviceKeyPath:  cfg.Device.KeyPath,
			RootCertPath:   cfg.Cloud.C8Y.RootCertPath,
		})
		if err != nil {
			return fmt.Errorf("loading cloud TLS material: %w", err)
		}
		cloudCfg.TLS = tlsCfg
	}

	storeCfg := bridge.StoreConfig{
		Driver:           cfg.Bridge.Store.Driver,
		ConnectionString: cfg.Bridge.Store.DSN,
	}

	br, err := bridge.NewBuilder(bridge.Config{
		Name:        b.Name,
		Local:       localCfg,
		Cloud:       cloudCfg,
		Rules:       rules,
		HealthTopic: fmt.Sprintf("tedge/health/bridge/%s", b.Name),
		Store:       &storeCfg,
	}).TryBuild()
	if err != nil {
		return err
	}

	if err := actorkit.Spawn[*mqttchannel.ClientActor](sup, actorkit.Prebuilt[*mqttchannel.ClientActor](br.Local)); err != nil {
		return err
	}
	if err := actorkit.Spawn[*mqttchannel.ClientActor](sup, actorkit.Prebuilt[*mqttchannel.ClientActor](br.Cloud)); err != nil {
		return err
	}
	if err := actorkit.Spawn[*bridge.Coordinator](sup, actorkit.Prebuilt[*bridge.Coordinator](br.LocalToCloud)); err != nil {
		return err
	}
	if err := actorkit.Spawn[*bridge.Coordinator](sup, actorkit.Prebuilt[*bridge.Coordinator](br.CloudToLocal)); err != nil {
		return err
	}

	slog.Info("bridge spawned", "name", b.Name, "rules", len(rules.Rules))
	return nil
}
