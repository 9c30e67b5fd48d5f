package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github/bherbruck/edgeagent/internal/bridge"
	"github/bherbruck/edgeagent/internal/mqttchannel"
)

// ProvisioningConfig is the optional YAML file named by
// --config/CONFIG_FILE: static bridge rule sets, transform relays, and
// operation actor toggles.
type ProvisioningConfig struct {
	Bridges    []BridgeRuleConfig     `yaml:"bridges"`
	Transforms []TransformConfig      `yaml:"transforms"`
	Operations OperationTogglesConfig `yaml:"operations"`
}

// BridgeRuleConfig names one bridge and its static rule table.
type BridgeRuleConfig struct {
	Name  string            `yaml:"name"`
	Rules []BridgeTopicRule `yaml:"rules"`
}

// BridgeTopicRule is the YAML shape of a bridge.Rule.
type BridgeTopicRule struct {
	Direction string `yaml:"direction"` // "local_to_cloud" or "cloud_to_local"
	Source    string `yaml:"source"`
	Target    string `yaml:"target"`
	QoS       int    `yaml:"qos"`
	Retain    string `yaml:"retain,omitempty"` // "preserve" (default), "always", "never"
}

// TransformConfig declares one transform relay actor: messages arriving on
// the Source pattern are republished under the Target topic.
type TransformConfig struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

// OperationTogglesConfig enables/disables the operation envelope actors.
type OperationTogglesConfig struct {
	SoftwareUpdate bool `yaml:"software_update"`
	ConfigSnapshot bool `yaml:"config_snapshot"`
	ConfigUpdate   bool `yaml:"config_update"`
	LogRequest     bool `yaml:"log_request"`
	Restart        bool `yaml:"restart"`
	Firmware       bool `yaml:"firmware"`
}

// LoadProvisioning reads path, expands ${VAR} references against the
// process environment, and parses the result as a ProvisioningConfig.
func LoadProvisioning(path string) (*ProvisioningConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read provisioning file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg ProvisioningConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse provisioning file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid provisioning file: %w", err)
	}
	return &cfg, nil
}

// Validate rejects duplicate bridge names and malformed rules.
func (c *ProvisioningConfig) Validate() error {
	seen := make(map[string]bool)
	for _, b := range c.Bridges {
		if b.Name == "" {
			return fmt.Errorf("bridge missing name")
		}
		if seen[b.Name] {
			return fmt.Errorf("duplicate bridge name: %s", b.Name)
		}
		seen[b.Name] = true

		if len(b.Rules) == 0 {
			return fmt.Errorf("bridge %q has no rules configured", b.Name)
		}
		for i, r := range b.Rules {
			if r.Direction != "local_to_cloud" && r.Direction != "cloud_to_local" {
				return fmt.Errorf("bridge %q rule %d: direction must be local_to_cloud or cloud_to_local, got %q", b.Name, i, r.Direction)
			}
			if r.Source == "" || r.Target == "" {
				return fmt.Errorf("bridge %q rule %d: source and target must not be empty", b.Name, i)
			}
			if r.QoS < 0 || r.QoS > 2 {
				return fmt.Errorf("bridge %q rule %d: qos must be 0, 1, or 2, got %d", b.Name, i, r.QoS)
			}
		}
	}

	names := make(map[string]bool)
	for _, tr := range c.Transforms {
		if tr.Name == "" {
			return fmt.Errorf("transform missing name")
		}
		if names[tr.Name] {
			return fmt.Errorf("duplicate transform name: %s", tr.Name)
		}
		names[tr.Name] = true

		if err := mqttchannel.ValidatePattern(tr.Source); err != nil {
			return fmt.Errorf("transform %q source: %w", tr.Name, err)
		}
		if err := mqttchannel.ValidateTopic(tr.Target); err != nil {
			return fmt.Errorf("transform %q target: %w", tr.Name, err)
		}
	}
	return nil
}

// RuleSet converts this bridge's YAML rule table into a bridge.RuleSet.
func (b *BridgeRuleConfig) RuleSet() (bridge.RuleSet, error) {
	rs := bridge.RuleSet{Rules: make([]bridge.Rule, 0, len(b.Rules))}
	for _, r := range b.Rules {
		dir := bridge.LocalToCloud
		if r.Direction == "cloud_to_local" {
			dir = bridge.CloudToLocal
		}

		retain := bridge.RetainPreserve
		switch r.Retain {
		case "always":
			retain = bridge.RetainAlways
		case "never":
			retain = bridge.RetainNever
		}

		rs.Rules = append(rs.Rules, bridge.Rule{
			Direction:     dir,
			SourcePattern: r.Source,
			TargetPattern: r.Target,
			QoS:           mqttchannel.QoS(r.QoS),
			Retain:        retain,
		})
	}
	if err := rs.Validate(); err != nil {
		return bridge.RuleSet{}, fmt.Errorf("bridge %q: %w", b.Name, err)
	}
	return rs, nil
}
