package actorkit

import (
	"context"
	"errors"
	"testing"
)

func TestConnectSinkDeliversIntoPeerInbox(t *testing.T) {
	source := NewMessageSource[int, string]()
	inbox := NewInbox[int](4)

	if err := source.ConnectSink("cfg", inbox); err != nil {
		t.Fatalf("ConnectSink: %v", err)
	}
	if !source.Wired() {
		t.Fatal("expected source to report wired")
	}
	if source.Config() != "cfg" {
		t.Fatalf("unexpected config: %q", source.Config())
	}

	if err := source.Sender().Send(context.Background(), 7); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := <-inbox.Receiver(); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
}

func TestConnectSinkRejectsSecondSink(t *testing.T) {
	source := NewMessageSource[int, struct{}]()
	if err := source.ConnectSink(struct{}{}, NewInbox[int](1)); err != nil {
		t.Fatalf("first ConnectSink: %v", err)
	}
	err := source.ConnectSink(struct{}{}, NewInbox[int](1))
	if !errors.Is(err, ErrBuild) {
		t.Fatalf("expected a BuildError for a duplicate sink, got %v", err)
	}
}

func TestConnectMappedSinkProjectsAndFilters(t *testing.T) {
	source := NewMessageSource[string, struct{}]()
	inbox := NewInbox[int](4)

	err := ConnectMappedSink(source, struct{}{}, inbox, func(s string) (int, bool) {
		if s == "skip" {
			return 0, false
		}
		return len(s), true
	})
	if err != nil {
		t.Fatalf("ConnectMappedSink: %v", err)
	}

	ctx := context.Background()
	_ = source.Sender().Send(ctx, "skip")
	_ = source.Sender().Send(ctx, "hello")
	inbox.Close()

	got, ok := <-inbox.Receiver()
	if !ok || got != 5 {
		t.Fatalf("expected single mapped value 5, got %d ok=%v", got, ok)
	}
	if _, ok := <-inbox.Receiver(); ok {
		t.Fatal("expected the filtered value to have been dropped")
	}
}

func TestUnwiredSourceDiscardsSends(t *testing.T) {
	source := NewMessageSource[int, struct{}]()
	if source.Wired() {
		t.Fatal("fresh source should not be wired")
	}
	if err := source.Sender().Send(context.Background(), 1); err != nil {
		t.Fatalf("an unwired source's sender should discard, not error: %v", err)
	}
}

func TestInboxSendersShareOneChannel(t *testing.T) {
	inbox := NewInbox[int](4)
	a := inbox.GetSender()
	b := inbox.GetSender()

	ctx := context.Background()
	_ = a.Send(ctx, 1)
	_ = b.Send(ctx, 2)

	if got := <-inbox.Receiver(); got != 1 {
		t.Fatalf("expected 1 first, got %d", got)
	}
	if got := <-inbox.Receiver(); got != 2 {
		t.Fatalf("expected 2 second, got %d", got)
	}
}

func TestBuildErrorWrapsSentinel(t *testing.T) {
	err := NewBuildError("missing peer %q", "input")
	if !errors.Is(err, ErrBuild) {
		t.Fatalf("expected errors.Is(err, ErrBuild), got %v", err)
	}
}
