package bond

import (
	"encoding/binary"
	"time"

	"bond-mesh/go-node/internal/crypto"
	"bond-mesh/go-node/pkg/models"
)

// Frame tags. The tag byte is transport framing; signatures cover only the
// payload fields listed in each message type.
const (
	frameChallenge byte = 0x01
	frameResponse  byte = 0x02
	frameConfirm   byte = 0x03
	frameData      byte = 0x10
)

const (
	nonceLen     = 32
	timestampLen = 4

	// tag + publicKey + keySequence + ephemeral + nonce + timestamp + signature
	challengeFrameSize = 1 + crypto.CompressedKeySize + 1 + crypto.CompressedKeySize + nonceLen + timestampLen + crypto.SignatureSize
	// challenge layout plus the echoed nonce
	responseFrameSize = challengeFrameSize + nonceLen
	// same field widths as the challenge; the nonce slot echoes the
	// responder's nonce instead of carrying a fresh one
	confirmFrameSize = challengeFrameSize
)

// channelLabel is the fixed protocol label fed to HKDF during key agreement.
const channelLabel = "bond-mesh/channel/v1"

// msgTerminate inside an encrypted data frame is the authenticated
// termination notice; it never reaches receive listeners.
const msgTerminate uint8 = 0xFF

type challengeMsg struct {
	PublicKey   []byte
	KeySequence uint8
	Ephemeral   []byte
	Nonce       [nonceLen]byte
	Timestamp   uint32
	Signature   []byte
}

type responseMsg struct {
	PublicKey   []byte
	KeySequence uint8
	Ephemeral   []byte
	Nonce       [nonceLen]byte
	Echo        [nonceLen]byte
	Timestamp   uint32
	Signature   []byte
}

type confirmMsg struct {
	PublicKey   []byte
	KeySequence uint8
	Ephemeral   []byte
	Echo        [nonceLen]byte
	Timestamp   uint32
	Signature   []byte
}

func (m challengeMsg) signingBytes() []byte {
	b := make([]byte, 0, challengeFrameSize-1-crypto.SignatureSize)
	b = append(b, m.PublicKey...)
	b = append(b, m.KeySequence)
	b = append(b, m.Ephemeral...)
	b = append(b, m.Nonce[:]...)
	b = binary.BigEndian.AppendUint32(b, m.Timestamp)
	return b
}

func (m responseMsg) signingBytes() []byte {
	b := make([]byte, 0, responseFrameSize-1-crypto.SignatureSize)
	b = append(b, m.PublicKey...)
	b = append(b, m.KeySequence)
	b = append(b, m.Ephemeral...)
	b = append(b, m.Nonce[:]...)
	b = append(b, m.Echo[:]...)
	b = binary.BigEndian.AppendUint32(b, m.Timestamp)
	return b
}

func (m confirmMsg) signingBytes() []byte {
	b := make([]byte, 0, confirmFrameSize-1-crypto.SignatureSize)
	b = append(b, m.PublicKey...)
	b = append(b, m.KeySequence)
	b = append(b, m.Ephemeral...)
	b = append(b, m.Echo[:]...)
	b = binary.BigEndian.AppendUint32(b, m.Timestamp)
	return b
}

func encodeChallengeFrame(m challengeMsg) []byte {
	out := make([]byte, 0, challengeFrameSize)
	out = append(out, frameChallenge)
	out = append(out, m.signingBytes()...)
	out = append(out, m.Signature...)
	return out
}

func encodeResponseFrame(m responseMsg) []byte {
	out := make([]byte, 0, responseFrameSize)
	out = append(out, frameResponse)
	out = append(out, m.signingBytes()...)
	out = append(out, m.Signature...)
	return out
}

func encodeConfirmFrame(m confirmMsg) []byte {
	out := make([]byte, 0, confirmFrameSize)
	out = append(out, frameConfirm)
	out = append(out, m.signingBytes()...)
	out = append(out, m.Signature...)
	return out
}

func parseChallengeFrame(frame []byte) (challengeMsg, error) {
	if len(frame) != challengeFrameSize || frame[0] != frameChallenge {
		return challengeMsg{}, ErrNegotiationFailed
	}
	var m challengeMsg
	off := 1
	m.PublicKey = append([]byte(nil), frame[off:off+crypto.CompressedKeySize]...)
	off += crypto.CompressedKeySize
	m.KeySequence = frame[off]
	off++
	m.Ephemeral = append([]byte(nil), frame[off:off+crypto.CompressedKeySize]...)
	off += crypto.CompressedKeySize
	copy(m.Nonce[:], frame[off:off+nonceLen])
	off += nonceLen
	m.Timestamp = binary.BigEndian.Uint32(frame[off : off+timestampLen])
	off += timestampLen
	m.Signature = append([]byte(nil), frame[off:]...)
	return m, nil
}

func parseResponseFrame(frame []byte) (responseMsg, error) {
	if len(frame) != responseFrameSize || frame[0] != frameResponse {
		return responseMsg{}, ErrNegotiationFailed
	}
	var m responseMsg
	off := 1
	m.PublicKey = append([]byte(nil), frame[off:off+crypto.CompressedKeySize]...)
	off += crypto.CompressedKeySize
	m.KeySequence = frame[off]
	off++
	m.Ephemeral = append([]byte(nil), frame[off:off+crypto.CompressedKeySize]...)
	off += crypto.CompressedKeySize
	copy(m.Nonce[:], frame[off:off+nonceLen])
	off += nonceLen
	copy(m.Echo[:], frame[off:off+nonceLen])
	off += nonceLen
	m.Timestamp = binary.BigEndian.Uint32(frame[off : off+timestampLen])
	off += timestampLen
	m.Signature = append([]byte(nil), frame[off:]...)
	return m, nil
}

func parseConfirmFrame(frame []byte) (confirmMsg, error) {
	if len(frame) != confirmFrameSize || frame[0] != frameConfirm {
		return confirmMsg{}, ErrNegotiationFailed
	}
	var m confirmMsg
	off := 1
	m.PublicKey = append([]byte(nil), frame[off:off+crypto.CompressedKeySize]...)
	off += crypto.CompressedKeySize
	m.KeySequence = frame[off]
	off++
	m.Ephemeral = append([]byte(nil), frame[off:off+crypto.CompressedKeySize]...)
	off += crypto.CompressedKeySize
	copy(m.Echo[:], frame[off:off+nonceLen])
	off += nonceLen
	m.Timestamp = binary.BigEndian.Uint32(frame[off : off+timestampLen])
	off += timestampLen
	m.Signature = append([]byte(nil), frame[off:]...)
	return m, nil
}

// handshakeSenderID extracts the sender fingerprint from any handshake
// frame; the compressed public key always sits right after the tag byte.
func handshakeSenderID(frame []byte) (string, bool) {
	if len(frame) < 1+crypto.CompressedKeySize {
		return "", false
	}
	id, err := crypto.DeriveNodeID(frame[1 : 1+crypto.CompressedKeySize])
	if err != nil {
		return "", false
	}
	return id, true
}

// encodeChannelMessage serializes the plaintext of an encrypted data frame:
// type(1) || timestamp(4) || senderIdLength(1) || senderId || payload.
func encodeChannelMessage(msgType uint8, at time.Time, senderID string, payload []byte) []byte {
	out := make([]byte, 0, 1+timestampLen+1+len(senderID)+len(payload))
	out = append(out, msgType)
	out = binary.BigEndian.AppendUint32(out, uint32(at.Unix()))
	out = append(out, uint8(len(senderID)))
	out = append(out, senderID...)
	out = append(out, payload...)
	return out
}

func decodeChannelMessage(plain []byte) (models.ChannelMessage, error) {
	if len(plain) < 1+timestampLen+1 {
		return models.ChannelMessage{}, ErrNegotiationFailed
	}
	msgType := plain[0]
	ts := binary.BigEndian.Uint32(plain[1 : 1+timestampLen])
	idLen := int(plain[1+timestampLen])
	off := 1 + timestampLen + 1
	if len(plain) < off+idLen {
		return models.ChannelMessage{}, ErrNegotiationFailed
	}
	return models.ChannelMessage{
		Type:      msgType,
		SenderID:  string(plain[off : off+idLen]),
		Payload:   append([]byte(nil), plain[off+idLen:]...),
		Timestamp: time.Unix(int64(ts), 0).UTC(),
	}, nil
}
