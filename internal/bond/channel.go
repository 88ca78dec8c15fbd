package bond

import (
	"context"
	"fmt"
	"time"

	"bond-mesh/go-node/internal/crypto"
	"bond-mesh/go-node/pkg/models"
)

// Send encrypts an application message for the peer over the established
// bond channel and hands the frame to the transport.
func (e *Engine) Send(ctx context.Context, peerID string, msgType uint8, payload []byte) error {
	e.mu.RLock()
	handle, ok := e.byPeer[peerID]
	var secret crypto.SharedSecret
	if ok {
		secret = e.entries[handle].secret
	}
	e.mu.RUnlock()
	if !ok {
		return ErrBondNotFound
	}

	frame, err := e.sealDataFrame(secret, msgType, payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	if err := e.transport.Transmit(ctx, peerID, frame); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	now := time.Now().UTC()
	e.mu.Lock()
	if handle, ok := e.byPeer[peerID]; ok {
		entry := e.entries[handle]
		entry.counters.RecordSent(now)
		entry.record.Channel.LastInteraction = now
		entry.record.Channel.TotalExchanges++
	}
	e.mu.Unlock()
	e.metrics.MessageExchanged()
	return nil
}

// Receive registers a listener for decrypted inbound messages and returns
// its unsubscribe function.
func (e *Engine) Receive(fn func(models.ChannelMessage)) func() {
	e.listenerMu.Lock()
	id := e.nextListener
	e.nextListener++
	e.listeners[id] = fn
	e.listenerMu.Unlock()
	return func() {
		e.listenerMu.Lock()
		delete(e.listeners, id)
		e.listenerMu.Unlock()
	}
}

func (e *Engine) sealDataFrame(secret crypto.SharedSecret, msgType uint8, payload []byte) ([]byte, error) {
	selfID, err := e.id.NodeID()
	if err != nil {
		return nil, err
	}
	plain := encodeChannelMessage(msgType, time.Now().UTC(), selfID, payload)
	ciphertext, nonce, err := crypto.Encrypt(secret, plain, nil)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 0, 1+len(nonce)+len(ciphertext))
	frame = append(frame, frameData)
	frame = append(frame, nonce...)
	frame = append(frame, ciphertext...)
	return frame, nil
}

// handleData tries every active bond's secret until one opens the frame.
// At most one can, since channel keys are unique per bond. Frames no key
// opens are expected noise on a shared medium and are dropped silently.
func (e *Engine) handleData(frame []byte) {
	if len(frame) < 1+crypto.NonceSize+1 {
		e.metrics.FrameDropped()
		return
	}
	nonce := frame[1 : 1+crypto.NonceSize]
	ciphertext := frame[1+crypto.NonceSize:]

	type candidate struct {
		peerID string
		secret crypto.SharedSecret
	}
	e.mu.RLock()
	candidates := make([]candidate, 0, len(e.byPeer))
	for peerID, handle := range e.byPeer {
		candidates = append(candidates, candidate{peerID: peerID, secret: e.entries[handle].secret})
	}
	e.mu.RUnlock()

	for _, c := range candidates {
		plain, err := crypto.Decrypt(c.secret, ciphertext, nonce, nil)
		if err != nil {
			continue
		}
		msg, err := decodeChannelMessage(plain)
		if err != nil {
			e.metrics.FrameDropped()
			return
		}
		if msg.Type == msgTerminate {
			e.removeBond(c.peerID, "peer request")
			return
		}

		now := time.Now().UTC()
		e.mu.Lock()
		if handle, ok := e.byPeer[c.peerID]; ok {
			entry := e.entries[handle]
			entry.counters.RecordReceived(now)
			entry.record.Channel.LastInteraction = now
			entry.record.Channel.TotalExchanges++
		}
		e.mu.Unlock()
		e.metrics.MessageExchanged()

		e.hub.Publish(EventMessageReceived, msg)
		e.listenerMu.Lock()
		fns := make([]func(models.ChannelMessage), 0, len(e.listeners))
		for _, fn := range e.listeners {
			fns = append(fns, fn)
		}
		e.listenerMu.Unlock()
		for _, fn := range fns {
			fn(msg)
		}
		return
	}
	e.metrics.FrameDropped()
}
