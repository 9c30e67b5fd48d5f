// Package bridge implements the MQTT Bridge: two MQTT Client Actors glued
// by a directed rule set, with per-direction topic rewriting, in-flight
// tracking, and health aggregation.
package bridge

import (
	"fmt"

	"github/bherbruck/edgeagent/internal/mqttchannel"
)

// Direction is one of the bridge's two forwarding directions.
type Direction int

const (
	LocalToCloud Direction = iota
	CloudToLocal
)

func (d Direction) String() string {
	if d == LocalToCloud {
		return "local->cloud"
	}
	return "cloud->local"
}

// RetainPolicy controls how a rule sets the retain flag on the forwarded
// message.
type RetainPolicy int

const (
	RetainPreserve RetainPolicy = iota
	RetainAlways
	RetainNever
)

// Rule maps topics matching SourcePattern on one side of the bridge to
// TargetPattern on the other.
type Rule struct {
	Direction     Direction
	SourcePattern string
	TargetPattern string
	QoS           mqttchannel.QoS
	Retain        RetainPolicy
}

// Rewrite maps topic from SourcePattern's shape into TargetPattern's shape.
func (r Rule) Rewrite(topic string) string {
	return mqttchannel.RewriteTopic(topic, r.SourcePattern, r.TargetPattern)
}

// ApplyRetain computes the outbound retain flag per the rule's policy.
func (r Rule) ApplyRetain(retain bool) bool {
	switch r.Retain {
	case RetainAlways:
		return true
	case RetainNever:
		return false
	default:
		return retain
	}
}

// RuleSet holds both directed rule lists.
type RuleSet struct {
	Rules []Rule
}

// ForDirection returns the rules configured for d, in declaration order.
func (rs *RuleSet) ForDirection(d Direction) []Rule {
	var out []Rule
	for _, r := range rs.Rules {
		if r.Direction == d {
			out = append(out, r)
		}
	}
	return out
}

// SourcePatterns returns the subscription patterns the Bridge must request
// on the source side of direction d.
func (rs *RuleSet) SourcePatterns(d Direction) []string {
	var out []string
	for _, r := range rs.ForDirection(d) {
		out = append(out, r.SourcePattern)
	}
	return out
}

// Match returns the first rule in direction d whose source pattern accepts
// topic.
func (rs *RuleSet) Match(d Direction, topic string) (Rule, bool) {
	for _, r := range rs.ForDirection(d) {
		if mqttchannel.MatchTopic(topic, r.SourcePattern) {
			return r, true
		}
	}
	return Rule{}, false
}

// Validate rejects unparsable or duplicate rules; a bad rule set aborts
// bridge startup rather than silently dropping traffic.
func (rs *RuleSet) Validate() error {
	seen := make(map[string]struct{})
	for _, r := range rs.Rules {
		if err := mqttchannel.ValidatePattern(r.SourcePattern); err != nil {
			return fmt.Errorf("bridge: rule source pattern: %w", err)
		}
		if err := mqttchannel.ValidatePattern(r.TargetPattern); err != nil {
			return fmt.Errorf("bridge: rule target pattern: %w", err)
		}
		key := fmt.Sprintf("%d|%s|%s", r.Direction, r.SourcePattern, r.TargetPattern)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("bridge: duplicate rule %s %s -> %s", r.Direction, r.SourcePattern, r.TargetPattern)
		}
		seen[key] = struct{}{}
	}
	return nil
}
