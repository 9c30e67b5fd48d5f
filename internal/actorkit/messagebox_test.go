package actorkit

import (
	"context"
	"testing"
)

func TestMessageBoxFIFOFromSingleSender(t *testing.T) {
	peer := NewChannel[int](10)
	sig := NewChannel[RuntimeRequest](1)
	box := NewMessageBox[int](peer.Receiver(), sig.Receiver())

	sender := peer.Sender()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = sender.Send(ctx, i)
	}
	peer.Close()

	for i := 0; i < 3; i++ {
		v, ok := box.Recv(ctx)
		if !ok || v != i {
			t.Fatalf("expected %d, got %d ok=%v", i, v, ok)
		}
	}

	if _, ok := box.Recv(ctx); ok {
		t.Fatalf("expected Recv to report done after peer closed")
	}
}

func TestMessageBoxShutdownEndsReceive(t *testing.T) {
	peer := NewChannel[int](10)
	sig := NewChannel[RuntimeRequest](1)
	box := NewMessageBox[int](peer.Receiver(), sig.Receiver())

	ctx := context.Background()
	_ = sig.Sender().Send(ctx, Shutdown)

	if _, ok := box.Recv(ctx); ok {
		t.Fatalf("expected Recv to report done once shutdown observed")
	}
	if !box.ShuttingDown() {
		t.Fatalf("expected ShuttingDown to be true")
	}

	// No further inputs are read after shutdown, even if one was already queued.
	_ = peer.Sender().Send(ctx, 99)
	if _, ok := box.Recv(ctx); ok {
		t.Fatalf("expected Recv to stay done after shutdown, even with queued input")
	}
}

func TestMessageBoxContextCancelEndsReceive(t *testing.T) {
	peer := NewChannel[int](10)
	sig := NewChannel[RuntimeRequest](1)
	box := NewMessageBox[int](peer.Receiver(), sig.Receiver())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := box.Recv(ctx); ok {
		t.Fatalf("expected Recv to report done for a cancelled context")
	}
	if !box.ShuttingDown() {
		t.Fatalf("expected ShuttingDown to be true after context cancellation")
	}
}

func TestMessageBoxIdempotentShutdown(t *testing.T) {
	peer := NewChannel[int](1)
	sig := NewChannel[RuntimeRequest](2)
	box := NewMessageBox[int](peer.Receiver(), sig.Receiver())

	ctx := context.Background()
	_ = sig.Sender().Send(ctx, Shutdown)
	_ = sig.Sender().Send(ctx, Shutdown)

	_, ok1 := box.Recv(ctx)
	_, ok2 := box.Recv(ctx)
	if ok1 || ok2 {
		t.Fatalf("two shutdowns should behave like one, both receives should report done")
	}
}
