// Package config implements the edge agent's configuration loader:
// struct-tag driven settings with flag > env > default precedence, bound
// at runtime through a reflect-based walker, plus the optional YAML
// provisioning file for bridge rules and operation toggles.
package config

import (
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
)

// Config holds every recognized configuration key.
type Config struct {
	Version    bool   `flag:"version,v" desc:"Show version and exit"`
	ConfigFile string `env:"CONFIG_FILE" flag:"config,c" desc:"Path to YAML provisioning file (bridge rules, operation toggles)"`

	MQTT   MQTTConfig   `desc:"MQTT bind and client settings"`
	Cloud  CloudConfig  `desc:"Cloud endpoint settings"`
	Device DeviceConfig `desc:"Device identity material"`
	Bridge BridgeConfig `desc:"Built-in bridge toggle"`
	Run    RunConfig    `desc:"Runtime state directory"`
	Log    LogConfig    `desc:"Logging settings"`
}

// MQTTConfig covers mqtt.bind.*, mqtt.client.*, and mqtt.queue.capacity.
type MQTTConfig struct {
	Bind          BindConfig   `desc:"Local MQTT bind address, when running the built-in broker"`
	Client        ClientConfig `desc:"MQTT broker this agent connects to as a client"`
	QueueCapacity int          `env:"MQTT_QUEUE_CAPACITY" flag:"mqtt-queue-capacity" default:"1024" desc:"Per-client-actor inbound queue capacity"`
}

type BindConfig struct {
	Host string `env:"MQTT_BIND_HOST" flag:"mqtt-bind-host" default:"localhost" desc:"Bind host for the built-in broker"`
	Port int    `env:"MQTT_BIND_PORT" flag:"mqtt-bind-port" default:"1883" desc:"Bind port for the built-in broker"`
}

type ClientConfig struct {
	Host string `env:"MQTT_CLIENT_HOST" flag:"mqtt-client-host" default:"localhost" desc:"MQTT broker host"`
	Port int    `env:"MQTT_CLIENT_PORT" flag:"mqtt-client-port" default:"1883" desc:"MQTT broker port"`
}

// CloudConfig covers c8y.url, az.url, aws.url, and the matching
// *.root_cert_path keys. Each cloud is its own struct (rather than one
// struct reused three times) so each field carries its own explicit env
// and flag names.
type CloudConfig struct {
	C8Y C8YConfig `desc:"Cumulocity IoT endpoint"`
	Az  AzConfig  `desc:"Azure IoT Hub endpoint"`
	AWS AWSConfig `desc:"AWS IoT Core endpoint"`
}

type C8YConfig struct {
	URL          string `env:"C8Y_URL" flag:"c8y-url" desc:"Cumulocity tenant URL"`
	RootCertPath string `env:"C8Y_ROOT_CERT_PATH" flag:"c8y-root-cert-path" desc:"Root CA bundle for the Cumulocity TLS connection"`
}

type AzConfig struct {
	URL          string `env:"AZ_URL" flag:"az-url" desc:"Azure IoT Hub hostname"`
	RootCertPath string `env:"AZ_ROOT_CERT_PATH" flag:"az-root-cert-path" desc:"Root CA bundle for the Azure TLS connection"`
}

type AWSConfig struct {
	URL          string `env:"AWS_URL" flag:"aws-url" desc:"AWS IoT Core endpoint"`
	RootCertPath string `env:"AWS_ROOT_CERT_PATH" flag:"aws-root-cert-path" desc:"Root CA bundle for the AWS TLS connection"`
}

// DeviceConfig covers device.cert.path and device.key.path.
type DeviceConfig struct {
	CertPath string `env:"DEVICE_CERT_PATH" flag:"device-cert-path" desc:"Device identity certificate (PEM)"`
	KeyPath  string `env:"DEVICE_KEY_PATH" flag:"device-key-path" desc:"Device identity private key (PEM)"`
}

// BridgeConfig covers mqtt.bridge.built_in and the bridge persistence store.
type BridgeConfig struct {
	BuiltIn bool        `env:"MQTT_BRIDGE_BUILT_IN" flag:"mqtt-bridge-built-in" desc:"Run the cloud bridge against the built-in local broker instead of an external one"`
	Store   StoreConfig `desc:"Durable store for un-ACKed QoS>=1 bridge forwards"`
}

// StoreConfig covers bridge.store.driver and bridge.store.dsn: the SQL
// backend for the bridge's inflight message queue. Every provisioned
// bridge shares one store, keyed internally by bridge name and direction.
type StoreConfig struct {
	Driver string `env:"BRIDGE_STORE_DRIVER" flag:"bridge-store-driver" default:"sqlite" desc:"Bridge inflight store driver (sqlite, postgres, mysql)"`
	DSN    string `env:"BRIDGE_STORE_DSN" flag:"bridge-store-dsn" desc:"Bridge inflight store connection string (sqlite file path or driver DSN)"`
}

// RunConfig covers run.path.
type RunConfig struct {
	Path string `env:"RUN_PATH" flag:"run-path" default:"/etc/edgeagent" desc:"Directory for runtime state (persistent sessions, health markers)"`
}

// LogConfig covers log.*: one process-wide level and format knob.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" flag:"log-level" default:"info" desc:"Log level (debug, info, warn, error)"`
	Format string `env:"LOG_FORMAT" flag:"log-format" default:"text" desc:"Log format (text, json)"`
}

// Load parses args against the Config struct's flag/env/default tags and
// validates the result. Precedence is flag > env > default: flags win when
// passed; otherwise the environment, then the tag default, apply.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	fs := flag.NewFlagSet("edgeagentd", flag.ContinueOnError)

	bind(reflect.ValueOf(cfg).Elem(), fs)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// bind walks v's fields, recursing into nested structs, and registers a
// flag (with env/default-derived initial value) for every field tagged
// `flag`.
func bind(v reflect.Value, fs *flag.FlagSet) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		fv := v.Field(i)

		if fv.Kind() == reflect.Struct {
			bind(fv, fs)
			continue
		}

		flagTag, ok := sf.Tag.Lookup("flag")
		if !ok {
			continue
		}
		names := strings.Split(flagTag, ",")
		desc := sf.Tag.Get("desc")

		value := sf.Tag.Get("default")
		if env := sf.Tag.Get("env"); env != "" {
			if v, ok := os.LookupEnv(env); ok {
				value = v
			}
		}

		switch fv.Kind() {
		case reflect.String:
			p := fv.Addr().Interface().(*string)
			for _, name := range names {
				fs.StringVar(p, name, value, desc)
			}
		case reflect.Int:
			n, _ := strconv.Atoi(value)
			p := fv.Addr().Interface().(*int)
			for _, name := range names {
				fs.IntVar(p, name, n, desc)
			}
		case reflect.Bool:
			b, _ := strconv.ParseBool(value)
			p := fv.Addr().Interface().(*bool)
			for _, name := range names {
				fs.BoolVar(p, name, b, desc)
			}
		}
	}
}

// Validate checks cross-field constraints Load's tag defaults can't express.
func (c *Config) Validate() error {
	if c.MQTT.Client.Host == "" {
		return fmt.Errorf("mqtt.client.host must not be empty")
	}
	if c.MQTT.Client.Port < 1 || c.MQTT.Client.Port > 65535 {
		return fmt.Errorf("mqtt.client.port %d out of range", c.MQTT.Client.Port)
	}
	if c.MQTT.QueueCapacity <= 0 {
		return fmt.Errorf("mqtt.queue.capacity must be positive, got %d", c.MQTT.QueueCapacity)
	}
	if (c.Device.CertPath == "") != (c.Device.KeyPath == "") {
		return fmt.Errorf("device.cert.path and device.key.path must both be set or both empty")
	}
	if c.Run.Path == "" {
		return fmt.Errorf("run.path must not be empty")
	}
	switch c.Bridge.Store.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("bridge.store.driver must be one of sqlite, postgres, mysql, got %q", c.Bridge.Store.Driver)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be one of text, json, got %q", c.Log.Format)
	}
	return nil
}
