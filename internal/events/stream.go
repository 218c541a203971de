// Package events implements the ordered teleport/lifecycle event feed with
// per-viewer acknowledgement tracking, so a reconnecting viewer resumes from
// the last event it confirmed.
package events

import (
	"context"
	"errors"
	"sort"
	"sync"

	"multiverse/sim/internal/state"
)

// Kind groups simulation events into the delivery categories viewers filter on.
type Kind string

const (
	KindTeleport  Kind = "teleport"
	KindLifecycle Kind = "lifecycle"
)

// KindOf maps an event type onto its delivery category.
func KindOf(event *state.Event) Kind {
	if event != nil && event.Type == state.EventTeleport {
		return KindTeleport
	}
	return KindLifecycle
}

// Envelope carries one simulation event together with sequencing metadata.
type Envelope struct {
	Sequence uint64
	Kind     Kind
	Event    *state.Event
}

// Clone duplicates the payload so subscribers can mutate their copy safely.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	dup := *e
	if e.Event != nil {
		ev := *e.Event
		dup.Event = &ev
	}
	return &dup
}

// Config controls how much event history the stream keeps around.
type Config struct {
	Retain int
}

const defaultRetention = 512

// ErrOutOfOrderAck signals that a subscriber skipped ahead of its next
// pending event.
var ErrOutOfOrderAck = errors.New("ack sequence must match the next pending event")

// Stream sequences events and fans them out with at-least-once delivery.
// Cursor state outlives the connection: Close keeps the acknowledgement
// position so the next Subscribe for the same id replays what is owed.
type Stream struct {
	mu        sync.Mutex
	lastSeq   uint64
	retention int
	logOrder  []uint64
	bySeq     map[uint64]*Envelope
	cursors   map[string]*viewerCursor
}

// viewerCursor tracks one logical subscriber across reconnects.
type viewerCursor struct {
	id      string
	pending []uint64
	lastAck uint64
	ch      chan *Envelope
	active  bool
}

// Subscription is one live attachment of a viewer to the stream.
type Subscription struct {
	id     string
	stream *Stream
	events <-chan *Envelope
	once   sync.Once
}

// NewStream constructs a stream using the provided configuration.
func NewStream(cfg Config) *Stream {
	keep := cfg.Retain
	if keep <= 0 {
		keep = defaultRetention
	}
	return &Stream{
		retention: keep,
		bySeq:     make(map[uint64]*Envelope),
		cursors:   make(map[string]*viewerCursor),
	}
}

// Publish assigns the next sequence number to the event and hands a copy to
// every active subscriber.
func (s *Stream) Publish(event *state.Event) (uint64, error) {
	if s == nil {
		return 0, errors.New("nil stream")
	}
	if event == nil {
		return 0, errors.New("event required")
	}
	copied := *event
	env := &Envelope{Kind: KindOf(&copied), Event: &copied}

	s.mu.Lock()
	s.lastSeq++
	env.Sequence = s.lastSeq
	s.logOrder = append(s.logOrder, env.Sequence)
	s.bySeq[env.Sequence] = env
	type handoff struct {
		ch      chan<- *Envelope
		payload *Envelope
	}
	var fanout []handoff
	for _, cur := range s.cursors {
		cur.pending = append(cur.pending, env.Sequence)
		if cur.active && cur.ch != nil {
			fanout = append(fanout, handoff{ch: cur.ch, payload: env.Clone()})
		}
	}
	s.pruneLocked()
	s.mu.Unlock()

	//1.- Non-blocking sends keep a stalled viewer from holding up the tick;
	// the event stays pending and is replayed on its next subscription.
	for _, h := range fanout {
		select {
		case h.ch <- h.payload:
		default:
		}
	}
	return env.Sequence, nil
}

// Subscribe attaches the logical subscriber and replays anything published
// after its last acknowledgement.
func (s *Stream) Subscribe(ctx context.Context, subscriberID string, buffer int) (*Subscription, error) {
	if s == nil {
		return nil, errors.New("nil stream")
	}
	if subscriberID == "" {
		return nil, errors.New("subscriber id must be provided")
	}
	if buffer <= 0 {
		buffer = 32
	}

	s.mu.Lock()
	cur, ok := s.cursors[subscriberID]
	if !ok {
		cur = &viewerCursor{id: subscriberID}
		s.cursors[subscriberID] = cur
	}
	//1.- Rebuild the pending set from the retained log; anything past lastAck is owed.
	owed := make([]uint64, 0, len(s.logOrder))
	for _, seq := range s.logOrder {
		if seq > cur.lastAck {
			owed = append(owed, seq)
		}
	}
	cur.pending = owed
	cur.ch = make(chan *Envelope, buffer)
	cur.active = true
	replay := make([]*Envelope, 0, len(owed))
	for _, seq := range owed {
		if env, found := s.bySeq[seq]; found {
			replay = append(replay, env.Clone())
		}
	}
	ch := cur.ch
	s.mu.Unlock()

	go func() {
		for _, env := range replay {
			select {
			case <-ctx.Done():
				return
			case ch <- env:
			}
		}
	}()

	return &Subscription{id: subscriberID, stream: s, events: ch}, nil
}

// Events exposes the ordered delivery channel for the subscriber.
func (s *Subscription) Events() <-chan *Envelope {
	if s == nil {
		return nil
	}
	return s.events
}

// Ack confirms the subscriber processed the given sequence.
func (s *Subscription) Ack(sequence uint64) error {
	if s == nil || s.stream == nil {
		return errors.New("subscription closed")
	}
	return s.stream.acknowledge(s.id, sequence)
}

// Close detaches the connection while preserving the cursor for reconnects.
func (s *Subscription) Close() {
	if s == nil || s.stream == nil {
		return
	}
	s.once.Do(func() {
		s.stream.detach(s.id)
	})
}

func (s *Stream) acknowledge(subscriberID string, sequence uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.cursors[subscriberID]
	if !ok {
		return errors.New("unknown subscriber " + subscriberID)
	}
	if len(cur.pending) == 0 {
		//1.- A duplicate ack after the queue drained is harmless.
		if sequence <= cur.lastAck {
			return nil
		}
		return ErrOutOfOrderAck
	}
	if sequence != cur.pending[0] {
		return ErrOutOfOrderAck
	}
	cur.pending = cur.pending[1:]
	cur.lastAck = sequence
	s.pruneLocked()
	return nil
}

func (s *Stream) detach(subscriberID string) {
	s.mu.Lock()
	if cur, ok := s.cursors[subscriberID]; ok {
		cur.active = false
		if cur.ch != nil {
			close(cur.ch)
			cur.ch = nil
		}
	}
	s.mu.Unlock()
}

// pruneLocked drops history that is both acknowledged by every cursor and
// older than the retention window. Unacknowledged events are never dropped.
func (s *Stream) pruneLocked() {
	if len(s.logOrder) <= s.retention {
		return
	}
	floor := s.lastSeq
	for _, cur := range s.cursors {
		if cur.lastAck < floor {
			floor = cur.lastAck
		}
	}
	windowStart := s.logOrder[len(s.logOrder)-s.retention]
	if windowStart < floor {
		floor = windowStart
	}
	if floor == 0 {
		return
	}
	keepFrom := sort.Search(len(s.logOrder), func(i int) bool { return s.logOrder[i] > floor })
	if keepFrom == 0 {
		return
	}
	for _, seq := range s.logOrder[:keepFrom] {
		delete(s.bySeq, seq)
	}
	s.logOrder = append([]uint64(nil), s.logOrder[keepFrom:]...)
}
