package bond

import "time"

// handleFrame routes every inbound buffer. Handshake frames resolve the
// matching pending wait; frames with no registered wait are dropped without
// error, since they cannot correspond to an active negotiation.
func (e *Engine) handleFrame(senderID string, frame []byte) {
	if len(frame) == 0 {
		return
	}
	switch frame[0] {
	case frameChallenge, frameResponse, frameConfirm:
		peerID, ok := handshakeSenderID(frame)
		if !ok {
			e.metrics.FrameDropped()
			return
		}
		if !e.limiter.Allow(peerID, time.Now()) {
			e.metrics.FrameDropped()
			e.log.Debug("handshake frame rate limited", "peer", peerID)
			return
		}
		e.resolvePending(pendingKey{peerID: peerID, msgType: frame[0]}, frame)
	case frameData:
		e.handleData(frame)
	default:
		e.metrics.FrameDropped()
	}
}

func (e *Engine) resolvePending(key pendingKey, frame []byte) {
	e.pendingMu.Lock()
	ch, ok := e.pending[key]
	if ok {
		delete(e.pending, key)
	}
	e.pendingMu.Unlock()
	if !ok {
		e.metrics.FrameDropped()
		return
	}
	ch <- append([]byte(nil), frame...)
}
