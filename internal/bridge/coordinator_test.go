package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github/bherbruck/edgeagent/internal/actorkit"
	"github/bherbruck/edgeagent/internal/mqttchannel"
)

// recordingTarget is a test double for actorkit.DynSender[Request] that
// records every publish it receives and immediately acks QoS>=1 publishes
// as if the broker had confirmed them.
type recordingTarget struct {
	mu       sync.Mutex
	received []mqttchannel.Request
}

func (t *recordingTarget) Send(_ context.Context, r mqttchannel.Request) error {
	t.mu.Lock()
	t.received = append(t.received, r)
	t.mu.Unlock()
	if r.Ack != nil {
		r.Ack <- nil
	}
	return nil
}

func (t *recordingTarget) Clone() actorkit.DynSender[mqttchannel.Request] { return t }

func (t *recordingTarget) snapshot() []mqttchannel.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]mqttchannel.Request, len(t.received))
	copy(out, t.received)
	return out
}

func testRuleSet() *RuleSet {
	return &RuleSet{Rules: []Rule{
		{Direction: LocalToCloud, SourcePattern: "tedge/measurements/#", TargetPattern: "c8y/s/us/#", QoS: mqttchannel.AtLeastOnce},
	}}
}

func TestCoordinatorDropsMessagesMatchingNoRule(t *testing.T) {
	ch := actorkit.NewChannel[mqttchannel.Message](4)
	target := &recordingTarget{}
	c := NewCoordinator("test", LocalToCloud, testRuleSet(), ch.Receiver(), target, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	_ = ch.Sender().Send(context.Background(), mqttchannel.NewMessage("unmatched/topic", []byte("x"), mqttchannel.AtMostOnce, false))
	time.Sleep(50 * time.Millisecond)

	if got := target.snapshot(); len(got) != 0 {
		t.Fatalf("expected no forwards for an unmatched topic, got %d", len(got))
	}

	cancel()
	<-done
}

func TestCoordinatorRewritesAndForwardsMatchedMessage(t *testing.T) {
	ch := actorkit.NewChannel[mqttchannel.Message](4)
	target := &recordingTarget{}
	c := NewCoordinator("test", LocalToCloud, testRuleSet(), ch.Receiver(), target, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	_ = ch.Sender().Send(context.Background(), mqttchannel.NewMessage("tedge/measurements/temperature", []byte("21"), mqttchannel.AtLeastOnce, false))
	time.Sleep(50 * time.Millisecond)

	got := target.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected exactly one forward, got %d", len(got))
	}
	if got[0].Publish.Topic != "c8y/s/us/temperature" {
		t.Fatalf("unexpected rewritten topic: %s", got[0].Publish.Topic)
	}

	cancel()
	<-done
}

// droppingTarget never acks, so a QoS>=1 forward stays recorded in the
// store as pending instead of being marked acked.
type droppingTarget struct{}

func (droppingTarget) Send(context.Context, mqttchannel.Request) error  { return nil }
func (t droppingTarget) Clone() actorkit.DynSender[mqttchannel.Request] { return t }

func TestCoordinatorReplaysPendingAfterReconnect(t *testing.T) {
	store := openTestStore(t)

	ch := actorkit.NewChannel[mqttchannel.Message](4)
	c := NewCoordinator("replay-test", LocalToCloud, testRuleSet(), ch.Receiver(), droppingTarget{}, store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	_ = ch.Sender().Send(context.Background(), mqttchannel.NewMessage("tedge/measurements/temperature", []byte("21"), mqttchannel.AtLeastOnce, false))
	time.Sleep(50 * time.Millisecond)

	pending, err := store.Pending("replay-test", LocalToCloud)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending row before replay, got %d", len(pending))
	}

	cancel()
	<-done

	// A fresh coordinator stands in for the reconnected bridge half;
	// its target now acks, the way the real broker connection would once
	// back up.
	target := &recordingTarget{}
	c2 := NewCoordinator("replay-test", LocalToCloud, testRuleSet(), ch.Receiver(), target, store, nil)
	c2.ReplayPending(context.Background())
	time.Sleep(50 * time.Millisecond)

	got := target.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected 1 replayed forward, got %d", len(got))
	}
	if got[0].Publish.Topic != "c8y/s/us/temperature" {
		t.Fatalf("unexpected replayed topic: %s", got[0].Publish.Topic)
	}

	pending, err = store.Pending("replay-test", LocalToCloud)
	if err != nil {
		t.Fatalf("Pending after replay: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected 0 pending after replay acked, got %d", len(pending))
	}
}

func TestCoordinatorReplayPendingNoopWithoutStore(t *testing.T) {
	ch := actorkit.NewChannel[mqttchannel.Message](4)
	target := &recordingTarget{}
	c := NewCoordinator("no-store", LocalToCloud, testRuleSet(), ch.Receiver(), target, nil, nil)

	// Must not panic when store is nil; nothing to replay.
	c.ReplayPending(context.Background())

	if got := target.snapshot(); len(got) != 0 {
		t.Fatalf("expected no forwards without a store, got %d", len(got))
	}
}

func TestCoordinatorDefersInboundAckUntilTargetAck(t *testing.T) {
	ch := actorkit.NewChannel[mqttchannel.Message](4)
	c := NewCoordinator("test", LocalToCloud, testRuleSet(), ch.Receiver(), droppingTarget{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	acked := make(chan struct{}, 1)
	msg := mqttchannel.NewMessage("tedge/measurements/temperature", []byte("21"), mqttchannel.AtLeastOnce, false).
		WithAck(func() { acked <- struct{}{} })
	_ = ch.Sender().Send(context.Background(), msg)

	// The target never acks, so the inbound publish must stay unacked.
	select {
	case <-acked:
		t.Fatal("inbound publish acked before the target broker confirmed the forward")
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	<-done
}

func TestCoordinatorAcksInboundAfterTargetAck(t *testing.T) {
	ch := actorkit.NewChannel[mqttchannel.Message](4)
	target := &recordingTarget{}
	c := NewCoordinator("test", LocalToCloud, testRuleSet(), ch.Receiver(), target, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	acked := make(chan struct{}, 1)
	msg := mqttchannel.NewMessage("tedge/measurements/temperature", []byte("21"), mqttchannel.AtLeastOnce, false).
		WithAck(func() { acked <- struct{}{} })
	_ = ch.Sender().Send(context.Background(), msg)

	select {
	case <-acked:
	case <-time.After(time.Second):
		t.Fatal("inbound publish not acked after the target confirmed the forward")
	}

	cancel()
	<-done
}

func TestCoordinatorAcksInboundImmediatelyForQoSZero(t *testing.T) {
	rules := &RuleSet{Rules: []Rule{
		{Direction: LocalToCloud, SourcePattern: "tedge/events/#", TargetPattern: "c8y/events/#", QoS: mqttchannel.AtMostOnce},
	}}
	ch := actorkit.NewChannel[mqttchannel.Message](4)
	c := NewCoordinator("test", LocalToCloud, rules, ch.Receiver(), droppingTarget{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	acked := make(chan struct{}, 1)
	msg := mqttchannel.NewMessage("tedge/events/login", []byte("x"), mqttchannel.AtLeastOnce, false).
		WithAck(func() { acked <- struct{}{} })
	_ = ch.Sender().Send(context.Background(), msg)

	// At-most-once forwards have no outbound ack to wait for.
	select {
	case <-acked:
	case <-time.After(time.Second):
		t.Fatal("inbound publish not acked for a QoS 0 rule")
	}

	cancel()
	<-done
}

func TestCoordinatorPreservesPerTopicOrder(t *testing.T) {
	ch := actorkit.NewChannel[mqttchannel.Message](16)
	target := &recordingTarget{}
	c := NewCoordinator("test", LocalToCloud, testRuleSet(), ch.Receiver(), target, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	for i := 0; i < 5; i++ {
		payload := []byte{byte(i)}
		_ = ch.Sender().Send(context.Background(), mqttchannel.NewMessage("tedge/measurements/temperature", payload, mqttchannel.AtLeastOnce, false))
	}
	time.Sleep(100 * time.Millisecond)

	got := target.snapshot()
	if len(got) != 5 {
		t.Fatalf("expected 5 forwards, got %d", len(got))
	}
	for i, r := range got {
		if len(r.Publish.Payload) != 1 || r.Publish.Payload[0] != byte(i) {
			t.Fatalf("forward %d out of order: %v", i, r.Publish.Payload)
		}
	}

	cancel()
	<-done
}
