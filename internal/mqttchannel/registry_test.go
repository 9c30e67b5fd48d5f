package mqttchannel

import (
	"context"
	"sort"
	"testing"

	"github/bherbruck/edgeagent/internal/actorkit"
)

func mustFilter(t *testing.T, patterns ...string) *TopicFilter {
	t.Helper()
	f, err := NewTopicFilter(AtLeastOnce, patterns...)
	if err != nil {
		t.Fatalf("NewTopicFilter: %v", err)
	}
	return f
}

func TestRegisterReturnsOnlyUncoveredPatterns(t *testing.T) {
	r := NewRegistry()
	ch1 := actorkit.NewChannel[Message](4)
	ch2 := actorkit.NewChannel[Message](4)

	d1 := r.Register("a", mustFilter(t, "a/+"), ch1.Sender())
	sort.Strings(d1.Subscribe)
	if len(d1.Subscribe) != 1 || d1.Subscribe[0] != "a/+" {
		t.Fatalf("expected [a/+], got %v", d1.Subscribe)
	}

	d2 := r.Register("b", mustFilter(t, "a/+", "b/#"), ch2.Sender())
	sort.Strings(d2.Subscribe)
	if len(d2.Subscribe) != 1 || d2.Subscribe[0] != "b/#" {
		t.Fatalf("expected only [b/#] since a/+ is already covered, got %v", d2.Subscribe)
	}
}

func TestApplyDiffUnsubscribeOnlyWhenNoClientRemains(t *testing.T) {
	r := NewRegistry()
	ch1 := actorkit.NewChannel[Message](4)
	ch2 := actorkit.NewChannel[Message](4)
	r.Register("a", mustFilter(t, "shared/topic"), ch1.Sender())
	r.Register("b", mustFilter(t, "shared/topic"), ch2.Sender())

	delta, err := r.ApplyDiff("a", SubscriptionDiff{Unsubscribe: []string{"shared/topic"}})
	if err != nil {
		t.Fatalf("ApplyDiff: %v", err)
	}
	if len(delta.Unsubscribe) != 0 {
		t.Fatalf("expected no broker UNSUBSCRIBE since b still wants it, got %v", delta.Unsubscribe)
	}

	delta, err = r.ApplyDiff("b", SubscriptionDiff{Unsubscribe: []string{"shared/topic"}})
	if err != nil {
		t.Fatalf("ApplyDiff: %v", err)
	}
	if len(delta.Unsubscribe) != 1 || delta.Unsubscribe[0] != "shared/topic" {
		t.Fatalf("expected broker UNSUBSCRIBE now that both dropped it, got %v", delta.Unsubscribe)
	}
}

func TestApplyDiffSubscribeNewPatternOnly(t *testing.T) {
	r := NewRegistry()
	ch := actorkit.NewChannel[Message](4)
	r.Register("a", mustFilter(t, "x/y"), ch.Sender())

	delta, err := r.ApplyDiff("a", SubscriptionDiff{Subscribe: []string{"x/y", "z/w"}})
	if err != nil {
		t.Fatalf("ApplyDiff: %v", err)
	}
	if len(delta.Subscribe) != 1 || delta.Subscribe[0] != "z/w" {
		t.Fatalf("expected only [z/w], got %v", delta.Subscribe)
	}
}

func TestApplyDiffUnknownClient(t *testing.T) {
	r := NewRegistry()
	_, err := r.ApplyDiff("ghost", SubscriptionDiff{Subscribe: []string{"a"}})
	var uce *UnknownClientError
	if err == nil {
		t.Fatalf("expected error for unknown client")
	}
	if !asUnknownClientError(err, &uce) {
		t.Fatalf("expected *UnknownClientError, got %T", err)
	}
}

func asUnknownClientError(err error, target **UnknownClientError) bool {
	uce, ok := err.(*UnknownClientError)
	if !ok {
		return false
	}
	*target = uce
	return true
}

func TestRouteDeliversToMatchingSubscribersOnly(t *testing.T) {
	r := NewRegistry()
	chA := actorkit.NewChannel[Message](4)
	chB := actorkit.NewChannel[Message](4)
	r.Register("a", mustFilter(t, "sensors/+/temp"), chA.Sender())
	r.Register("b", mustFilter(t, "sensors/+/humidity"), chB.Sender())

	ctx := context.Background()
	r.Route(ctx, NewMessage("sensors/1/temp", []byte("21"), AtMostOnce, false))

	select {
	case got := <-chA.Receiver():
		if got.Topic != "sensors/1/temp" {
			t.Fatalf("unexpected topic: %s", got.Topic)
		}
	default:
		t.Fatal("expected a to receive the message")
	}

	select {
	case got := <-chB.Receiver():
		t.Fatalf("b should not have received anything, got %v", got)
	default:
	}
}

func TestRouteUnregistersClosedSenders(t *testing.T) {
	r := NewRegistry()
	ch := actorkit.NewChannel[Message](1)
	r.Register("a", mustFilter(t, "x/#"), ch.Sender())
	ch.Close()

	r.Route(context.Background(), NewMessage("x/y", nil, AtMostOnce, false))

	delta := r.Unregister("a")
	if len(delta.Unsubscribe) != 0 {
		t.Fatalf("client should already be gone, got delta %v", delta)
	}
}
