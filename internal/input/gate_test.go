package input

import (
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestGate(cfg Config) (*Gate, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	return NewGate(cfg, nil, WithClock(clock)), clock
}

func TestGateAcceptsMonotonicSequences(t *testing.T) {
	gate, clock := newTestGate(Config{})

	for seq := uint64(1); seq <= 3; seq++ {
		decision := gate.Evaluate(Frame{ClientID: "viewer-1", SequenceID: seq})
		if !decision.Accepted {
			t.Fatalf("sequence %d rejected: %s", seq, decision.Reason)
		}
		clock.Advance(10 * time.Millisecond)
	}
}

func TestGateRejectsReplayedSequence(t *testing.T) {
	gate, _ := newTestGate(Config{})
	gate.Evaluate(Frame{ClientID: "viewer-1", SequenceID: 5})

	decision := gate.Evaluate(Frame{ClientID: "viewer-1", SequenceID: 5})
	if decision.Accepted || decision.Reason != DropReasonSequence {
		t.Fatalf("expected sequence drop, got %+v", decision)
	}
	if decision = gate.Evaluate(Frame{ClientID: "viewer-1", SequenceID: 3}); decision.Accepted {
		t.Fatalf("expected stale sequence drop, got %+v", decision)
	}
}

func TestGateRejectsZeroSequence(t *testing.T) {
	gate, _ := newTestGate(Config{})
	decision := gate.Evaluate(Frame{ClientID: "viewer-1", SequenceID: 0})
	if decision.Accepted || decision.Reason != DropReasonSequence {
		t.Fatalf("expected zero sequence drop, got %+v", decision)
	}
}

func TestGateRateLimitsBursts(t *testing.T) {
	gate, clock := newTestGate(Config{MinInterval: 5 * time.Millisecond})
	gate.Evaluate(Frame{ClientID: "viewer-1", SequenceID: 1})

	//1.- A frame inside the minimum interval is throttled.
	clock.Advance(time.Millisecond)
	decision := gate.Evaluate(Frame{ClientID: "viewer-1", SequenceID: 2})
	if decision.Accepted || decision.Reason != DropReasonRateLimited {
		t.Fatalf("expected rate limit drop, got %+v", decision)
	}

	//2.- After the interval elapses the next frame passes.
	clock.Advance(10 * time.Millisecond)
	if decision := gate.Evaluate(Frame{ClientID: "viewer-1", SequenceID: 3}); !decision.Accepted {
		t.Fatalf("expected acceptance, got %+v", decision)
	}
}

func TestGateDropsStaleFrames(t *testing.T) {
	gate, clock := newTestGate(Config{MaxAge: 100 * time.Millisecond})
	gate.Evaluate(Frame{ClientID: "viewer-1", SequenceID: 1})
	clock.Advance(time.Second)

	decision := gate.Evaluate(Frame{
		ClientID:   "viewer-1",
		SequenceID: 2,
		SentAt:     clock.Now().Add(-500 * time.Millisecond),
	})
	if decision.Accepted || decision.Reason != DropReasonStale {
		t.Fatalf("expected stale drop, got %+v", decision)
	}
	if decision.Delay < 500*time.Millisecond {
		t.Fatalf("expected measured delay, got %v", decision.Delay)
	}
}

func TestGateMetricsAndForget(t *testing.T) {
	gate, _ := newTestGate(Config{})
	gate.Evaluate(Frame{ClientID: "viewer-1", SequenceID: 1})
	gate.Evaluate(Frame{ClientID: "viewer-1", SequenceID: 1})
	gate.Evaluate(Frame{ClientID: "viewer-1", SequenceID: 0})

	metrics := gate.Metrics()
	if metrics["viewer-1"].Sequence != 2 {
		t.Fatalf("expected 2 sequence drops, got %+v", metrics["viewer-1"])
	}

	gate.Forget("viewer-1")
	if gate.Metrics() != nil {
		t.Fatal("expected counters cleared after forget")
	}
	//1.- A forgotten client starts from a fresh sequence baseline.
	if decision := gate.Evaluate(Frame{ClientID: "viewer-1", SequenceID: 1}); !decision.Accepted {
		t.Fatalf("expected fresh baseline, got %+v", decision)
	}
}
