package mqttchannel

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github/bherbruck/edgeagent/internal/actorkit"
)

// subscriber is one registered peer: its own filter and where to deliver
// matching messages.
type subscriber struct {
	filter *TopicFilter
	sender actorkit.DynSender[Message]
}

// Registry is the Dynamic Subscription Registry. It is confined to the
// MQTT Client Actor that owns it; no other actor reaches into it directly,
// so the mutex only serializes the actor's own loop against wiring-stage
// registration.
type Registry struct {
	mu          sync.Mutex
	subscribers map[string]*subscriber
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{subscribers: make(map[string]*subscriber)}
}

// Delta is the minimal set of broker-facing SUBSCRIBE/UNSUBSCRIBE patterns
// implied by a registry mutation.
type Delta struct {
	Subscribe   []string
	Unsubscribe []string
}

// Register adds a new client with its initial filter, returning the
// broker-facing SUBSCRIBE delta (patterns not already covered by any other
// client).
func (r *Registry) Register(clientID string, filter *TopicFilter, sender actorkit.DynSender[Message]) Delta {
	r.mu.Lock()
	defer r.mu.Unlock()

	added := r.patternsNotCoveredLocked(filter.Patterns, clientID)
	r.subscribers[clientID] = &subscriber{filter: filter, sender: sender}
	return Delta{Subscribe: added}
}

// ApplyDiff mutates clientID's filter by diff, returning the minimal
// broker-facing SUBSCRIBE (for genuinely new patterns) and UNSUBSCRIBE
// (for patterns no remaining client needs) delta. Two clients sharing a
// pattern only trigger UNSUBSCRIBE once both have dropped it.
func (r *Registry) ApplyDiff(clientID string, diff SubscriptionDiff) (Delta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subscribers[clientID]
	if !ok {
		return Delta{}, &UnknownClientError{ClientID: clientID}
	}

	for _, p := range diff.Subscribe {
		if err := ValidatePattern(p); err != nil {
			return Delta{}, err
		}
	}

	toSubscribe := make(map[string]struct{})
	for _, p := range diff.Subscribe {
		if _, already := sub.filter.Patterns[p]; !already {
			toSubscribe[p] = struct{}{}
		}
		sub.filter.Patterns[p] = struct{}{}
	}

	toUnsubscribe := make(map[string]struct{})
	for _, p := range diff.Unsubscribe {
		delete(sub.filter.Patterns, p)
	}

	added := r.patternsNotCoveredLocked(toSubscribe, clientID)
	for _, p := range diff.Unsubscribe {
		if !r.anyOtherClientHasLocked(p, clientID) {
			toUnsubscribe[p] = struct{}{}
		}
	}

	return Delta{Subscribe: added, Unsubscribe: sortedKeys(toUnsubscribe)}, nil
}

// Unregister removes clientID entirely, returning the UNSUBSCRIBE delta for
// patterns no other client still needs.
func (r *Registry) Unregister(clientID string) Delta {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subscribers[clientID]
	if !ok {
		return Delta{}
	}
	delete(r.subscribers, clientID)

	removed := make(map[string]struct{})
	for p := range sub.filter.Patterns {
		if !r.anyOtherClientHasLocked(p, "") {
			removed[p] = struct{}{}
		}
	}
	return Delta{Unsubscribe: sortedKeys(removed)}
}

// AggregatePatterns returns the union of every registered client's
// patterns, for resubscribing the whole filter set after a reconnect.
func (r *Registry) AggregatePatterns() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := make(map[string]struct{})
	for _, sub := range r.subscribers {
		for p := range sub.filter.Patterns {
			set[p] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// Route delivers msg to every subscriber whose filter accepts its topic.
// Senders reporting ErrChannelClosed are unregistered after the full
// iteration completes.
func (r *Registry) Route(ctx context.Context, msg Message) {
	r.mu.Lock()
	type target struct {
		id     string
		sender actorkit.DynSender[Message]
	}
	var targets []target
	for id, sub := range r.subscribers {
		if sub.filter.Accept(msg.Topic) {
			targets = append(targets, target{id: id, sender: sub.sender})
		}
	}
	r.mu.Unlock()

	var closed []string
	for _, t := range targets {
		if err := t.sender.Send(ctx, msg); err != nil {
			slog.Warn("mqttchannel: dropping subscriber with closed channel", "client_id", t.id, "topic", msg.Topic)
			closed = append(closed, t.id)
		}
	}

	for _, id := range closed {
		r.Unregister(id)
	}
}

// patternsNotCoveredLocked returns, from patterns, those not already
// subscribed by any client other than exclude. Callers must hold r.mu.
func (r *Registry) patternsNotCoveredLocked(patterns map[string]struct{}, exclude string) []string {
	var out []string
	for p := range patterns {
		if !r.anyOtherClientHasLocked(p, exclude) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Registry) anyOtherClientHasLocked(pattern, exclude string) bool {
	for id, sub := range r.subscribers {
		if id == exclude {
			continue
		}
		if _, ok := sub.filter.Patterns[pattern]; ok {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// UnknownClientError is returned by ApplyDiff for a client that was never
// registered.
type UnknownClientError struct {
	ClientID string
}

func (e *UnknownClientError) Error() string {
	return "mqttchannel: unknown client " + e.ClientID
}
