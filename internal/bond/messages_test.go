package bond

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
	"time"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return b
}

func TestChallengeFrameRoundTrip(t *testing.T) {
	var nonce [nonceLen]byte
	copy(nonce[:], randomBytes(t, nonceLen))
	in := challengeMsg{
		PublicKey:   randomBytes(t, 33),
		KeySequence: 7,
		Ephemeral:   randomBytes(t, 33),
		Nonce:       nonce,
		Timestamp:   uint32(time.Now().Unix()),
		Signature:   randomBytes(t, 64),
	}

	frame := encodeChallengeFrame(in)
	if len(frame) != challengeFrameSize {
		t.Fatalf("expected %d byte frame, got %d", challengeFrameSize, len(frame))
	}

	out, err := parseChallengeFrame(frame)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !bytes.Equal(out.PublicKey, in.PublicKey) || out.KeySequence != in.KeySequence {
		t.Fatal("identity fields did not survive the round trip")
	}
	if !bytes.Equal(out.Ephemeral, in.Ephemeral) || out.Nonce != in.Nonce {
		t.Fatal("agreement fields did not survive the round trip")
	}
	if out.Timestamp != in.Timestamp || !bytes.Equal(out.Signature, in.Signature) {
		t.Fatal("timestamp or signature did not survive the round trip")
	}
}

func TestResponseFrameRoundTrip(t *testing.T) {
	var nonce, echo [nonceLen]byte
	copy(nonce[:], randomBytes(t, nonceLen))
	copy(echo[:], randomBytes(t, nonceLen))
	in := responseMsg{
		PublicKey:   randomBytes(t, 33),
		KeySequence: 1,
		Ephemeral:   randomBytes(t, 33),
		Nonce:       nonce,
		Echo:        echo,
		Timestamp:   uint32(time.Now().Unix()),
		Signature:   randomBytes(t, 64),
	}

	frame := encodeResponseFrame(in)
	if len(frame) != responseFrameSize {
		t.Fatalf("expected %d byte frame, got %d", responseFrameSize, len(frame))
	}

	out, err := parseResponseFrame(frame)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if out.Nonce != in.Nonce || out.Echo != in.Echo {
		t.Fatal("nonces did not survive the round trip")
	}
}

func TestParseRejectsWrongLengthAndTag(t *testing.T) {
	var nonce [nonceLen]byte
	frame := encodeChallengeFrame(challengeMsg{
		PublicKey: make([]byte, 33),
		Ephemeral: make([]byte, 33),
		Nonce:     nonce,
		Signature: make([]byte, 64),
	})

	if _, err := parseChallengeFrame(frame[:len(frame)-1]); !errors.Is(err, ErrNegotiationFailed) {
		t.Fatalf("truncated frame must fail, got %v", err)
	}
	if _, err := parseChallengeFrame(append(frame, 0x00)); !errors.Is(err, ErrNegotiationFailed) {
		t.Fatalf("oversized frame must fail, got %v", err)
	}

	wrongTag := append([]byte(nil), frame...)
	wrongTag[0] = frameResponse
	if _, err := parseChallengeFrame(wrongTag); !errors.Is(err, ErrNegotiationFailed) {
		t.Fatalf("wrong tag must fail, got %v", err)
	}
}

func TestSignatureExcludesTagByte(t *testing.T) {
	var nonce [nonceLen]byte
	m := challengeMsg{
		PublicKey: randomBytes(t, 33),
		Ephemeral: randomBytes(t, 33),
		Nonce:     nonce,
		Timestamp: 42,
		Signature: make([]byte, 64),
	}
	frame := encodeChallengeFrame(m)
	signed := m.signingBytes()
	if !bytes.Equal(frame[1:1+len(signed)], signed) {
		t.Fatal("signing bytes must be the frame payload without the tag")
	}
}

func TestChannelMessageRoundTrip(t *testing.T) {
	at := time.Now().UTC().Truncate(time.Second)
	plain := encodeChannelMessage(0x04, at, "bond1sender", []byte("ping"))

	msg, err := decodeChannelMessage(plain)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if msg.Type != 0x04 || msg.SenderID != "bond1sender" {
		t.Fatalf("header mismatch: type=%#x sender=%q", msg.Type, msg.SenderID)
	}
	if string(msg.Payload) != "ping" {
		t.Fatalf("payload mismatch: %q", msg.Payload)
	}
	if !msg.Timestamp.Equal(at) {
		t.Fatalf("timestamp mismatch: %s vs %s", msg.Timestamp, at)
	}
}

func TestDecodeChannelMessageRejectsTruncation(t *testing.T) {
	plain := encodeChannelMessage(0x01, time.Now(), "bond1sender", nil)
	if _, err := decodeChannelMessage(plain[:6]); err == nil {
		t.Fatal("truncated header must fail")
	}
	if _, err := decodeChannelMessage(plain[:len(plain)-3]); err == nil {
		t.Fatal("truncated sender id must fail")
	}
}

func TestHandshakeSenderIDNeedsFullKey(t *testing.T) {
	if _, ok := handshakeSenderID([]byte{frameChallenge, 0x02}); ok {
		t.Fatal("short frame must not yield a sender id")
	}
}
