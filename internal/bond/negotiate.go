package bond

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"bond-mesh/go-node/internal/crypto"
	"bond-mesh/go-node/pkg/models"
)

// Initiate runs the initiator side of the handshake against the peer owning
// targetPublicKey: challenge out, response in, confirm out, then local key
// agreement. No partial bond is ever published on failure.
func (e *Engine) Initiate(ctx context.Context, targetPublicKey []byte) error {
	selfPub, err := e.id.PublicKey()
	if err != nil {
		return fmt.Errorf("identity unavailable: %w", err)
	}
	selfSeq, err := e.id.KeySequence()
	if err != nil {
		return fmt.Errorf("identity unavailable: %w", err)
	}
	if len(targetPublicKey) != crypto.CompressedKeySize {
		return ErrNegotiationFailed
	}
	peerID, err := crypto.DeriveNodeID(targetPublicKey)
	if err != nil {
		return ErrNegotiationFailed
	}
	if err := e.checkCanBond(peerID); err != nil {
		return err
	}

	ephPriv, ephPub, err := crypto.GenerateAgreementKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNegotiationFailed, err)
	}
	var nonceA [nonceLen]byte
	if _, err := rand.Read(nonceA[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrNegotiationFailed, err)
	}

	challenge := challengeMsg{
		PublicKey:   selfPub,
		KeySequence: selfSeq,
		Ephemeral:   ephPub,
		Nonce:       nonceA,
		Timestamp:   uint32(time.Now().Unix()),
	}
	if challenge.Signature, err = e.id.Sign(challenge.signingBytes()); err != nil {
		return fmt.Errorf("challenge signing: %w", err)
	}

	wait, release := e.await(pendingKey{peerID: peerID, msgType: frameResponse})
	defer release()

	if err := e.transport.Transmit(ctx, peerID, encodeChallengeFrame(challenge)); err != nil {
		e.metrics.NegotiationFinished("transport")
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	raw, err := e.waitFrame(ctx, wait)
	if err != nil {
		e.metrics.NegotiationFinished("timeout")
		return err
	}
	response, err := parseResponseFrame(raw)
	if err != nil {
		e.metrics.NegotiationFinished("malformed")
		return err
	}
	if !bytes.Equal(response.PublicKey, targetPublicKey) || response.Echo != nonceA {
		e.metrics.NegotiationFinished("verification")
		return ErrVerificationFailed
	}
	if ok, err := e.id.Verify(response.signingBytes(), response.Signature, response.PublicKey); err != nil || !ok {
		e.metrics.NegotiationFinished("verification")
		return ErrVerificationFailed
	}

	confirm := confirmMsg{
		PublicKey:   selfPub,
		KeySequence: selfSeq,
		Ephemeral:   ephPub,
		Echo:        response.Nonce,
		Timestamp:   uint32(time.Now().Unix()),
	}
	if confirm.Signature, err = e.id.Sign(confirm.signingBytes()); err != nil {
		return fmt.Errorf("confirm signing: %w", err)
	}
	if err := e.transport.Transmit(ctx, peerID, encodeConfirmFrame(confirm)); err != nil {
		e.metrics.NegotiationFinished("transport")
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	// Both sides salt with nonceA||nonceB, initiator nonce first.
	salt := append(append([]byte(nil), nonceA[:]...), response.Nonce[:]...)
	secret, err := crypto.DeriveSharedSecret(ephPriv, response.Ephemeral, channelLabel, salt)
	if err != nil {
		e.metrics.NegotiationFinished("verification")
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	return e.installBond(models.Partner{
		NodeID:      peerID,
		PublicKey:   append([]byte(nil), targetPublicKey...),
		KeySequence: response.KeySequence,
	}, secret)
}

// Accept runs the responder side: wait for the initiator's challenge,
// answer with a fresh nonce echoing theirs, wait for the confirm, then
// derive the same channel secret locally.
func (e *Engine) Accept(ctx context.Context, initiatorPublicKey []byte) error {
	selfPub, err := e.id.PublicKey()
	if err != nil {
		return fmt.Errorf("identity unavailable: %w", err)
	}
	selfSeq, err := e.id.KeySequence()
	if err != nil {
		return fmt.Errorf("identity unavailable: %w", err)
	}
	if len(initiatorPublicKey) != crypto.CompressedKeySize {
		return ErrNegotiationFailed
	}
	peerID, err := crypto.DeriveNodeID(initiatorPublicKey)
	if err != nil {
		return ErrNegotiationFailed
	}
	if err := e.checkCanBond(peerID); err != nil {
		return err
	}

	waitChallenge, releaseChallenge := e.await(pendingKey{peerID: peerID, msgType: frameChallenge})
	raw, err := e.waitFrame(ctx, waitChallenge)
	releaseChallenge()
	if err != nil {
		e.metrics.NegotiationFinished("timeout")
		return err
	}
	challenge, err := parseChallengeFrame(raw)
	if err != nil {
		e.metrics.NegotiationFinished("malformed")
		return err
	}
	if !bytes.Equal(challenge.PublicKey, initiatorPublicKey) {
		e.metrics.NegotiationFinished("verification")
		return ErrVerificationFailed
	}
	if ok, err := e.id.Verify(challenge.signingBytes(), challenge.Signature, challenge.PublicKey); err != nil || !ok {
		e.metrics.NegotiationFinished("verification")
		return ErrVerificationFailed
	}

	ephPriv, ephPub, err := crypto.GenerateAgreementKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNegotiationFailed, err)
	}
	var nonceB [nonceLen]byte
	if _, err := rand.Read(nonceB[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrNegotiationFailed, err)
	}

	response := responseMsg{
		PublicKey:   selfPub,
		KeySequence: selfSeq,
		Ephemeral:   ephPub,
		Nonce:       nonceB,
		Echo:        challenge.Nonce,
		Timestamp:   uint32(time.Now().Unix()),
	}
	if response.Signature, err = e.id.Sign(response.signingBytes()); err != nil {
		return fmt.Errorf("response signing: %w", err)
	}

	waitConfirm, releaseConfirm := e.await(pendingKey{peerID: peerID, msgType: frameConfirm})
	defer releaseConfirm()

	if err := e.transport.Transmit(ctx, peerID, encodeResponseFrame(response)); err != nil {
		e.metrics.NegotiationFinished("transport")
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	raw, err = e.waitFrame(ctx, waitConfirm)
	if err != nil {
		e.metrics.NegotiationFinished("timeout")
		return err
	}
	confirm, err := parseConfirmFrame(raw)
	if err != nil {
		e.metrics.NegotiationFinished("malformed")
		return err
	}
	if !bytes.Equal(confirm.PublicKey, initiatorPublicKey) || confirm.Echo != nonceB {
		e.metrics.NegotiationFinished("verification")
		return ErrVerificationFailed
	}
	if ok, err := e.id.Verify(confirm.signingBytes(), confirm.Signature, confirm.PublicKey); err != nil || !ok {
		e.metrics.NegotiationFinished("verification")
		return ErrVerificationFailed
	}

	salt := append(append([]byte(nil), challenge.Nonce[:]...), nonceB[:]...)
	secret, err := crypto.DeriveSharedSecret(ephPriv, challenge.Ephemeral, channelLabel, salt)
	if err != nil {
		e.metrics.NegotiationFinished("verification")
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	return e.installBond(models.Partner{
		NodeID:      peerID,
		PublicKey:   append([]byte(nil), initiatorPublicKey...),
		KeySequence: challenge.KeySequence,
	}, secret)
}

// await registers a single-resolution wait for one (peer, message type)
// pair. The dispatcher resolves it with the first matching frame; release
// must always be called to avoid a stale table entry.
func (e *Engine) await(key pendingKey) (<-chan []byte, func()) {
	ch := make(chan []byte, 1)
	e.pendingMu.Lock()
	e.pending[key] = ch
	e.pendingMu.Unlock()
	return ch, func() {
		e.pendingMu.Lock()
		if e.pending[key] == ch {
			delete(e.pending, key)
		}
		e.pendingMu.Unlock()
	}
}

func (e *Engine) waitFrame(ctx context.Context, ch <-chan []byte) ([]byte, error) {
	timer := time.NewTimer(e.cfg.HandshakeTimeout)
	defer timer.Stop()
	select {
	case frame := <-ch:
		return frame, nil
	case <-timer.C:
		return nil, ErrNegotiationTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
