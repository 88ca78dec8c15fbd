package transport

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestBusDeliversBetweenEndpoints(t *testing.T) {
	bus := NewMemoryBus()
	alice := bus.Endpoint("alice")
	bob := bus.Endpoint("bob")

	got := make(chan Frame, 1)
	bob.OnReceive(func(senderID string, frame []byte) {
		got <- Frame{SenderID: senderID, Payload: frame}
	})

	payload := []byte{0x01, 0x02, 0x03}
	if err := alice.Transmit(context.Background(), "bob", payload); err != nil {
		t.Fatalf("transmit failed: %v", err)
	}

	select {
	case f := <-got:
		if f.SenderID != "alice" {
			t.Fatalf("expected sender alice, got %s", f.SenderID)
		}
		if !bytes.Equal(f.Payload, payload) {
			t.Fatalf("payload mismatch: %x", f.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestBusMailboxHoldsFramesForLateSubscriber(t *testing.T) {
	bus := NewMemoryBus()
	alice := bus.Endpoint("alice")

	if err := alice.Transmit(context.Background(), "bob", []byte("early")); err != nil {
		t.Fatalf("transmit failed: %v", err)
	}

	got := make(chan []byte, 1)
	bus.Endpoint("bob").OnReceive(func(_ string, frame []byte) {
		got <- frame
	})

	select {
	case frame := <-got:
		if string(frame) != "early" {
			t.Fatalf("expected mailbox frame, got %q", frame)
		}
	case <-time.After(time.Second):
		t.Fatal("mailbox frame was not replayed on subscribe")
	}
}

func TestBusDropsAfterUnsubscribeIntoMailbox(t *testing.T) {
	bus := NewMemoryBus()
	got := make(chan []byte, 2)
	bus.Subscribe("bob", func(f Frame) { got <- f.Payload })
	bus.Unsubscribe("bob")

	bus.Publish(Frame{SenderID: "alice", Recipient: "bob", Payload: []byte("held")})

	select {
	case <-got:
		t.Fatal("frame delivered after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}

	bus.Subscribe("bob", func(f Frame) { got <- f.Payload })
	select {
	case frame := <-got:
		if string(frame) != "held" {
			t.Fatalf("expected held frame, got %q", frame)
		}
	case <-time.After(time.Second):
		t.Fatal("held frame was not replayed")
	}
}

func TestTransmitCopiesPayload(t *testing.T) {
	bus := NewMemoryBus()
	payload := []byte{0xAA, 0xBB}
	if err := bus.Endpoint("alice").Transmit(context.Background(), "bob", payload); err != nil {
		t.Fatalf("transmit failed: %v", err)
	}
	payload[0] = 0x00

	got := make(chan []byte, 1)
	bus.Endpoint("bob").OnReceive(func(_ string, frame []byte) { got <- frame })
	frame := <-got
	if frame[0] != 0xAA {
		t.Fatal("publisher mutation leaked into delivered frame")
	}
}
