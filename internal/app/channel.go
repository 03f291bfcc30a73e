package app

import (
	"sync"
	"time"

	"quiz-battle-service/internal/domain"
)

const subscriberBuffer = 64

// Channel is the per-match sync channel. Outbound events get a monotonic sequence
// number and are kept in a log so subscribers can resume; inbound answers are
// deduplicated by the client's per-player sequence number.
type Channel struct {
	matchID string
	now     func() time.Time

	mu      sync.Mutex
	seq     uint64
	log     []domain.Event
	subs    map[*Subscription]struct{}
	inbound map[string]uint64
	closed  bool
}

// Subscription receives events in sequence order. C is closed when the
// subscriber falls behind, cancels, or the channel closes; resume with
// Subscribe(LastSeq()).
type Subscription struct {
	C       <-chan domain.Event
	ch      chan domain.Event
	channel *Channel
	lagged  bool
}

func NewChannel(matchID string, now func() time.Time) *Channel {
	if now == nil {
		now = time.Now
	}
	return &Channel{
		matchID: matchID,
		now:     now,
		subs:    make(map[*Subscription]struct{}),
		inbound: make(map[string]uint64),
	}
}

// Publish stamps and fans out an event. It never blocks on subscribers.
func (c *Channel) Publish(typ domain.EventType, payload any) domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	ev := domain.Event{
		Type:    typ,
		MatchID: c.matchID,
		Seq:     c.seq,
		At:      c.now(),
		Payload: payload,
	}
	c.log = append(c.log, ev)

	for sub := range c.subs {
		select {
		case sub.ch <- ev:
		default:
			// slow subscriber: drop it, the client resumes from its last seq
			sub.lagged = true
			delete(c.subs, sub)
			close(sub.ch)
		}
	}
	return ev
}

// Subscribe replays every event after afterSeq, then streams live events.
func (c *Channel) Subscribe(afterSeq uint64) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	backlog := c.sinceLocked(afterSeq)
	ch := make(chan domain.Event, len(backlog)+subscriberBuffer)
	for _, ev := range backlog {
		ch <- ev
	}
	sub := &Subscription{C: ch, ch: ch, channel: c}
	if c.closed {
		close(ch)
		return sub
	}
	c.subs[sub] = struct{}{}
	return sub
}

// Cancel detaches the subscription; safe to call more than once.
func (s *Subscription) Cancel() {
	c := s.channel
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[s]; ok {
		delete(c.subs, s)
		close(s.ch)
	}
}

// Lagged reports whether the channel dropped this subscriber for being too slow.
func (s *Subscription) Lagged() bool {
	s.channel.mu.Lock()
	defer s.channel.mu.Unlock()
	return s.lagged
}

// Since returns a copy of the events after seq.
func (c *Channel) Since(seq uint64) []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sinceLocked(seq)
}

func (c *Channel) sinceLocked(seq uint64) []domain.Event {
	if seq >= c.seq {
		return nil
	}
	// seq numbers are dense and start at 1
	return append([]domain.Event(nil), c.log[seq:]...)
}

// LastSeq is the sequence number of the latest published event.
func (c *Channel) LastSeq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// DuplicateInbound reports whether an inbound message from playerID was already
// accepted. A zero seq opts out of deduplication.
func (c *Channel) DuplicateInbound(playerID string, seq uint64) bool {
	if seq == 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return seq <= c.inbound[playerID]
}

// CommitInbound records seq as accepted and returns the player's high-water mark.
// Only accepted messages are committed, so a rejected one may be retransmitted.
func (c *Channel) CommitInbound(playerID string, seq uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq > c.inbound[playerID] {
		c.inbound[playerID] = seq
	}
	return c.inbound[playerID]
}

// Close ends every subscription. Later subscribers get the backlog and a closed channel.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for sub := range c.subs {
		delete(c.subs, sub)
		close(sub.ch)
	}
}

// Cursor is the receiving side of idempotent delivery.
type Cursor struct {
	last uint64
}

// NewCursor starts after the given sequence number.
func NewCursor(after uint64) *Cursor {
	return &Cursor{last: after}
}

// Apply reports whether ev is new and advances the cursor.
func (c *Cursor) Apply(ev domain.Event) bool {
	if ev.Seq <= c.last {
		return false
	}
	c.last = ev.Seq
	return true
}

// Last is the highest applied sequence number.
func (c *Cursor) Last() uint64 {
	return c.last
}
