package bond

import (
	"sync"
	"time"

	"bond-mesh/go-node/pkg/models"
)

type EventKind string

const (
	EventBondFormed        EventKind = "bond-formed"
	EventCareScoreUpdated  EventKind = "care-score-updated"
	EventTrustTierChanged  EventKind = "trust-tier-changed"
	EventBondTerminated    EventKind = "bond-terminated"
	EventMessageReceived   EventKind = "message-received"
	EventTopologyViolation EventKind = "topology-violation"
)

type Event struct {
	Seq       int64
	Kind      EventKind
	Payload   any
	Timestamp time.Time
}

type BondFormedEvent struct {
	PeerID string
	Tier   models.TrustTier
}

type CareScoreEvent struct {
	PeerID     string
	Score      float64
	Components models.CareScoreComponents
}

type TierChangedEvent struct {
	PeerID   string
	Previous models.TrustTier
	Current  models.TrustTier
}

type BondTerminatedEvent struct {
	PeerID string
	Reason string
}

type TopologyEvent struct {
	PeerID      string
	ActiveBonds int
}

// Hub fans notifications out to subscribers. Events carry monotonic
// sequence numbers so a late subscriber can replay the bounded history;
// a subscriber that stops draining its channel is dropped.
type Hub struct {
	mu      sync.Mutex
	nextSeq int64
	limit   int
	history []Event
	subs    map[int]chan Event
	nextSub int
}

func NewHub(limit int) *Hub {
	if limit < 1 {
		limit = 1
	}
	return &Hub{
		limit: limit,
		subs:  make(map[int]chan Event),
	}
}

func (h *Hub) Publish(kind EventKind, payload any) Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextSeq++
	event := Event{
		Seq:       h.nextSeq,
		Kind:      kind,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	h.history = append(h.history, event)
	if len(h.history) > h.limit {
		h.history = append([]Event(nil), h.history[len(h.history)-h.limit:]...)
	}

	for id, ch := range h.subs {
		select {
		case ch <- event:
		default:
			close(ch)
			delete(h.subs, id)
		}
	}
	return event
}

func (h *Hub) Subscribe(fromSeq int64) ([]Event, <-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	replay := make([]Event, 0)
	for _, event := range h.history {
		if event.Seq > fromSeq {
			replay = append(replay, event)
		}
	}

	id := h.nextSub
	h.nextSub++
	ch := make(chan Event, 128)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			close(sub)
			delete(h.subs, id)
		}
	}
	return replay, ch, cancel
}
