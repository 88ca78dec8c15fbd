package wire

import (
	"bytes"
	"crypto/rand"
	"testing"
	"time"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 33)
	if _, err := rand.Read(key[1:]); err != nil {
		t.Fatalf("rand failed: %v", err)
	}
	key[0] = 0x02
	return key
}

func TestStateUpdateRoundTrip(t *testing.T) {
	sig := make([]byte, 64)
	if _, err := rand.Read(sig); err != nil {
		t.Fatalf("rand failed: %v", err)
	}
	want := StateUpdate{
		PublicKey:   randomKey(t),
		KeySequence: 7,
		State:       [3]byte{0x10, 0x80, 0xff},
		Timestamp:   time.Unix(1700000000, 0).UTC(),
		Signature:   sig,
	}
	buf, err := EncodeStateUpdate(want)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if len(buf) != StateUpdateSize {
		t.Fatalf("frame size = %d, want %d", len(buf), StateUpdateSize)
	}
	got, err := DecodeStateUpdate(buf)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !bytes.Equal(got.PublicKey, want.PublicKey) || got.KeySequence != want.KeySequence ||
		got.State != want.State || !got.Timestamp.Equal(want.Timestamp) ||
		!bytes.Equal(got.Signature, want.Signature) {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, want)
	}
}

func TestStateUpdateRejectsWrongLength(t *testing.T) {
	for _, n := range []int{0, 104, 106} {
		if _, err := DecodeStateUpdate(make([]byte, n)); err == nil {
			t.Fatalf("decode accepted %d bytes", n)
		}
	}
}

func TestBeaconRoundTrip(t *testing.T) {
	want := Beacon{
		Type:      0x01,
		Subtype:   0x02,
		PublicKey: randomKey(t),
		Value:     0.73,
	}
	buf, err := EncodeBeacon(want)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if len(buf) != BeaconSize {
		t.Fatalf("frame size = %d, want %d", len(buf), BeaconSize)
	}
	got, err := DecodeBeacon(buf)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Type != want.Type || got.Subtype != want.Subtype ||
		!bytes.Equal(got.PublicKey, want.PublicKey) || got.Value != want.Value {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, want)
	}
}

func TestBeaconRejectsCorruption(t *testing.T) {
	buf, err := EncodeBeacon(Beacon{PublicKey: randomKey(t), Value: 1})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	buf[10] ^= 0x01
	if _, err := DecodeBeacon(buf); err != ErrBadIntegrity {
		t.Fatalf("expected integrity error, got %v", err)
	}
	if _, err := DecodeBeacon(buf[:BeaconSize-1]); err != ErrBadLength {
		t.Fatalf("expected length error, got %v", err)
	}
}

func TestVaultFragmentRoundTrip(t *testing.T) {
	want := VaultFragment{
		Type:       0x03,
		LayerIndex: 2,
		Sequence:   5,
		Total:      9,
		Payload:    []byte("ciphertext-chunk"),
	}
	got, err := DecodeVaultFragment(EncodeVaultFragment(want))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Type != want.Type || got.LayerIndex != want.LayerIndex ||
		got.Sequence != want.Sequence || got.Total != want.Total ||
		!bytes.Equal(got.Payload, want.Payload) {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, want)
	}

	empty, err := DecodeVaultFragment(EncodeVaultFragment(VaultFragment{Type: 1, Total: 1}))
	if err != nil {
		t.Fatalf("decode empty payload failed: %v", err)
	}
	if len(empty.Payload) != 0 {
		t.Fatal("expected empty payload")
	}

	if _, err := DecodeVaultFragment([]byte{1, 2, 3}); err != ErrBadLength {
		t.Fatalf("expected length error, got %v", err)
	}
}
