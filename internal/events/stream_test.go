package events

import (
	"context"
	"testing"
	"time"

	"multiverse/sim/internal/state"
)

func receiveEnvelope(t *testing.T, sub *Subscription) *Envelope {
	t.Helper()
	select {
	case env := <-sub.Events():
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestPublishDeliversInOrder(t *testing.T) {
	stream := NewStream(Config{})
	sub, err := stream.Subscribe(context.Background(), "viewer-1", 8)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Close()

	//1.- Publish distinct events and confirm sequencing starts at one.
	first, err := stream.Publish(&state.Event{Type: state.EventTeleport, EntityID: "character"})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	second, _ := stream.Publish(&state.Event{Type: state.EventProjectileExpired, EntityID: "ball-1"})
	if first != 1 || second != 2 {
		t.Fatalf("unexpected sequences: %d, %d", first, second)
	}

	env := receiveEnvelope(t, sub)
	if env.Sequence != 1 || env.Kind != KindTeleport {
		t.Fatalf("unexpected first envelope: %+v", env)
	}
	env = receiveEnvelope(t, sub)
	if env.Sequence != 2 || env.Kind != KindLifecycle {
		t.Fatalf("unexpected second envelope: %+v", env)
	}
	if env.Event.EntityID != "ball-1" {
		t.Fatalf("unexpected payload: %+v", env.Event)
	}
}

func TestReplayOnResubscribe(t *testing.T) {
	stream := NewStream(Config{})
	ctx := context.Background()

	sub, err := stream.Subscribe(ctx, "viewer-1", 8)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	stream.Publish(&state.Event{Type: state.EventTeleport, EntityID: "character"})
	stream.Publish(&state.Event{Type: state.EventModeChanged, Detail: "portals"})

	//1.- Acknowledge only the first event before disconnecting.
	env := receiveEnvelope(t, sub)
	if err := sub.Ack(env.Sequence); err != nil {
		t.Fatalf("ack failed: %v", err)
	}
	sub.Close()

	//2.- A reconnect replays the unacknowledged tail in order.
	resumed, err := stream.Subscribe(ctx, "viewer-1", 8)
	if err != nil {
		t.Fatalf("resubscribe failed: %v", err)
	}
	defer resumed.Close()

	env = receiveEnvelope(t, resumed)
	if env.Sequence != 2 || env.Event.Detail != "portals" {
		t.Fatalf("unexpected replayed envelope: %+v", env)
	}
	if err := resumed.Ack(2); err != nil {
		t.Fatalf("ack after replay failed: %v", err)
	}
}

func TestAckOrdering(t *testing.T) {
	stream := NewStream(Config{})
	sub, err := stream.Subscribe(context.Background(), "viewer-1", 8)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Close()

	stream.Publish(&state.Event{Type: state.EventTeleport})
	stream.Publish(&state.Event{Type: state.EventTeleport})

	//1.- Skipping ahead violates the contiguous acknowledgement contract.
	if err := sub.Ack(2); err != ErrOutOfOrderAck {
		t.Fatalf("expected out-of-order error, got %v", err)
	}
	if err := sub.Ack(1); err != nil {
		t.Fatalf("in-order ack failed: %v", err)
	}
	//2.- Re-acknowledging a processed sequence stays an error while events remain pending.
	if err := sub.Ack(1); err != ErrOutOfOrderAck {
		t.Fatalf("expected out-of-order error, got %v", err)
	}
	if err := sub.Ack(2); err != nil {
		t.Fatalf("final ack failed: %v", err)
	}
	//3.- With nothing pending an already-acknowledged sequence is harmless.
	if err := sub.Ack(2); err != nil {
		t.Fatalf("duplicate ack after drain failed: %v", err)
	}
}

func TestRetentionPrunesAcknowledgedHistory(t *testing.T) {
	stream := NewStream(Config{Retain: 4})
	sub, err := stream.Subscribe(context.Background(), "viewer-1", 16)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Close()

	//1.- Publish beyond retention while acknowledging everything promptly.
	for i := 0; i < 10; i++ {
		seq, err := stream.Publish(&state.Event{Type: state.EventProjectileExpired})
		if err != nil {
			t.Fatalf("publish %d failed: %v", i, err)
		}
		receiveEnvelope(t, sub)
		if err := sub.Ack(seq); err != nil {
			t.Fatalf("ack %d failed: %v", seq, err)
		}
	}

	stream.mu.Lock()
	logged := len(stream.logOrder)
	stream.mu.Unlock()
	if logged > 4 {
		t.Fatalf("expected pruned log, got %d entries", logged)
	}
}

func TestSubscribeValidation(t *testing.T) {
	stream := NewStream(Config{})
	if _, err := stream.Subscribe(context.Background(), "", 4); err == nil {
		t.Fatal("expected error for empty subscriber id")
	}
	if _, err := stream.Publish(nil); err == nil {
		t.Fatal("expected error for nil event")
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(&state.Event{Type: state.EventTeleport}) != KindTeleport {
		t.Fatal("teleport events must map to the teleport kind")
	}
	if KindOf(&state.Event{Type: state.EventModeChanged}) != KindLifecycle {
		t.Fatal("mode changes must map to the lifecycle kind")
	}
	if KindOf(nil) != KindLifecycle {
		t.Fatal("nil events default to lifecycle")
	}
}
