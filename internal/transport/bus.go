package transport

import (
	"context"
	"sync"
)

// Frame is one transport-level delivery: an opaque payload addressed from
// one node identifier to another.
type Frame struct {
	SenderID  string `json:"sender_id"`
	Recipient string `json:"recipient"`
	Payload   []byte `json:"payload"`
}

// MemoryBus is the default in-process backend: frames for subscribed
// recipients are delivered asynchronously, frames for absent recipients are
// held in a mailbox until the recipient subscribes.
type MemoryBus struct {
	mu          sync.Mutex
	subscribers map[string]func(Frame)
	mailbox     map[string][]Frame
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subscribers: make(map[string]func(Frame)),
		mailbox:     make(map[string][]Frame),
	}
}

func (b *MemoryBus) Publish(f Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if handler, ok := b.subscribers[f.Recipient]; ok {
		go handler(f)
		return
	}
	b.mailbox[f.Recipient] = append(b.mailbox[f.Recipient], f)
}

func (b *MemoryBus) Subscribe(recipient string, handler func(Frame)) {
	b.mu.Lock()
	b.subscribers[recipient] = handler
	pending := append([]Frame(nil), b.mailbox[recipient]...)
	delete(b.mailbox, recipient)
	b.mu.Unlock()

	for _, f := range pending {
		handler(f)
	}
}

func (b *MemoryBus) Unsubscribe(recipient string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, recipient)
}

// Endpoint binds one node identifier to the bus, giving the bond engine
// its transmit/receive pair.
func (b *MemoryBus) Endpoint(selfID string) *BusEndpoint {
	return &BusEndpoint{bus: b, selfID: selfID}
}

type BusEndpoint struct {
	bus    *MemoryBus
	selfID string
}

func (e *BusEndpoint) Transmit(_ context.Context, peerID string, frame []byte) error {
	e.bus.Publish(Frame{
		SenderID:  e.selfID,
		Recipient: peerID,
		Payload:   append([]byte(nil), frame...),
	})
	return nil
}

func (e *BusEndpoint) OnReceive(handler func(senderID string, frame []byte)) {
	e.bus.Subscribe(e.selfID, func(f Frame) {
		handler(f.SenderID, f.Payload)
	})
}
