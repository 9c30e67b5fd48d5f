package lifecycle

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github/bherbruck/edgeagent/internal/actorkit"
	"github/bherbruck/edgeagent/internal/mqttchannel"
)

type recordingSender struct {
	mu       sync.Mutex
	received []mqttchannel.Request
}

func (s *recordingSender) Send(_ context.Context, r mqttchannel.Request) error {
	s.mu.Lock()
	s.received = append(s.received, r)
	s.mu.Unlock()
	return nil
}

func (s *recordingSender) Clone() actorkit.DynSender[mqttchannel.Request] { return s }

func (s *recordingSender) snapshot() []mqttchannel.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]mqttchannel.Request, len(s.received))
	copy(out, s.received)
	return out
}

func TestHealthActorBuilderRejectsMissingTarget(t *testing.T) {
	if _, err := NewHealthActorBuilder("tedge/health", time.Second, nil).TryBuild(); err == nil {
		t.Fatal("expected build to fail without a target sender")
	}
}

func TestHealthActorPublishesUpThenDownOnShutdown(t *testing.T) {
	target := &recordingSender{}
	builder := NewHealthActorBuilder("tedge/health/agent", 20*time.Millisecond, target)
	a, err := builder.TryBuild()
	if err != nil {
		t.Fatalf("TryBuild: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(60 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("health actor did not exit after cancellation")
	}

	got := target.snapshot()
	if len(got) < 2 {
		t.Fatalf("expected at least one periodic 'up' publish plus a final 'down', got %d", len(got))
	}

	last := got[len(got)-1]
	if last.Publish.Topic != "tedge/health/agent" {
		t.Fatalf("unexpected topic: %s", last.Publish.Topic)
	}
	if !last.Publish.Retain {
		t.Fatal("expected health messages to be retained")
	}

	var payload healthPayload
	if err := json.Unmarshal(last.Publish.Payload, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.Status != "down" {
		t.Fatalf("expected final status 'down', got %q", payload.Status)
	}

	var first healthPayload
	if err := json.Unmarshal(got[0].Publish.Payload, &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if first.Status != "up" {
		t.Fatalf("expected periodic status 'up', got %q", first.Status)
	}
}

func TestHealthActorPublishesDownOnSignal(t *testing.T) {
	target := &recordingSender{}
	builder := NewHealthActorBuilder("tedge/health/agent", time.Hour, target)
	a, err := builder.TryBuild()
	if err != nil {
		t.Fatalf("TryBuild: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	_ = builder.Signal().Send(context.Background(), actorkit.Shutdown)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("health actor did not exit after signal")
	}

	got := target.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected exactly one publish (the shutdown 'down'), got %d", len(got))
	}
	var payload healthPayload
	if err := json.Unmarshal(got[0].Publish.Payload, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.Status != "down" {
		t.Fatalf("expected status 'down', got %q", payload.Status)
	}
}
