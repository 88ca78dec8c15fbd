// Package wire implements the fixed-layout binary codecs for constrained
// transports: state updates, bond beacon packets, and vault fragments. All
// functions are pure; decoders check length preconditions before touching
// the buffer.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"time"

	"bond-mesh/go-node/internal/crypto"
)

const (
	StateUpdateSize = 105
	BeaconSize      = 43

	VaultFragmentHeaderSize = 4

	beaconIntegritySize = 4
)

var (
	ErrBadLength    = errors.New("wire: buffer length does not match layout")
	ErrBadIntegrity = errors.New("wire: integrity check mismatch")
)

// StateUpdate is the 105-byte broadcast frame: compact identity, quantized
// state payload, and a detached signature.
type StateUpdate struct {
	PublicKey   []byte // compressed, 33 bytes
	KeySequence uint8
	State       [3]byte // quantized state vector
	Timestamp   time.Time
	Signature   []byte // 64 bytes
}

func EncodeStateUpdate(u StateUpdate) ([]byte, error) {
	if len(u.PublicKey) != crypto.CompressedKeySize || len(u.Signature) != crypto.SignatureSize {
		return nil, ErrBadLength
	}
	out := make([]byte, 0, StateUpdateSize)
	out = append(out, u.PublicKey...)
	out = append(out, u.KeySequence)
	out = append(out, u.State[:]...)
	out = binary.BigEndian.AppendUint32(out, uint32(u.Timestamp.Unix()))
	out = append(out, u.Signature...)
	return out, nil
}

func DecodeStateUpdate(buf []byte) (StateUpdate, error) {
	if len(buf) != StateUpdateSize {
		return StateUpdate{}, ErrBadLength
	}
	var u StateUpdate
	u.PublicKey = append([]byte(nil), buf[:33]...)
	u.KeySequence = buf[33]
	copy(u.State[:], buf[34:37])
	u.Timestamp = time.Unix(int64(binary.BigEndian.Uint32(buf[37:41])), 0).UTC()
	u.Signature = append([]byte(nil), buf[41:]...)
	return u, nil
}

// SigningBytes returns the signed portion of a state update: everything
// before the signature, concatenated without padding.
func (u StateUpdate) SigningBytes() []byte {
	b := make([]byte, 0, StateUpdateSize-crypto.SignatureSize)
	b = append(b, u.PublicKey...)
	b = append(b, u.KeySequence)
	b = append(b, u.State[:]...)
	b = binary.BigEndian.AppendUint32(b, uint32(u.Timestamp.Unix()))
	return b
}

// Beacon is the 43-byte discovery packet announcing bond availability.
type Beacon struct {
	Type      uint8
	Subtype   uint8
	PublicKey []byte // compressed, 33 bytes
	Value     float32
}

func EncodeBeacon(b Beacon) ([]byte, error) {
	if len(b.PublicKey) != crypto.CompressedKeySize {
		return nil, ErrBadLength
	}
	out := make([]byte, 0, BeaconSize)
	out = append(out, b.Type, b.Subtype)
	out = append(out, b.PublicKey...)
	out = binary.BigEndian.AppendUint32(out, math.Float32bits(b.Value))
	sum := crypto.Hash(out)
	out = append(out, sum[:beaconIntegritySize]...)
	return out, nil
}

func DecodeBeacon(buf []byte) (Beacon, error) {
	if len(buf) != BeaconSize {
		return Beacon{}, ErrBadLength
	}
	body := buf[:BeaconSize-beaconIntegritySize]
	sum := crypto.Hash(body)
	if !bytes.Equal(sum[:beaconIntegritySize], buf[BeaconSize-beaconIntegritySize:]) {
		return Beacon{}, ErrBadIntegrity
	}
	var b Beacon
	b.Type = buf[0]
	b.Subtype = buf[1]
	b.PublicKey = append([]byte(nil), buf[2:35]...)
	b.Value = math.Float32frombits(binary.BigEndian.Uint32(buf[35:39]))
	return b, nil
}

// VaultFragment carries one split piece of an encrypted vault layer. The
// sequence and total counters are packed into the two trailing header bytes.
type VaultFragment struct {
	Type       uint8
	LayerIndex uint8
	Sequence   uint8
	Total      uint8
	Payload    []byte
}

func EncodeVaultFragment(f VaultFragment) []byte {
	out := make([]byte, 0, VaultFragmentHeaderSize+len(f.Payload))
	out = append(out, f.Type, f.LayerIndex, f.Sequence, f.Total)
	out = append(out, f.Payload...)
	return out
}

func DecodeVaultFragment(buf []byte) (VaultFragment, error) {
	if len(buf) < VaultFragmentHeaderSize {
		return VaultFragment{}, ErrBadLength
	}
	return VaultFragment{
		Type:       buf[0],
		LayerIndex: buf[1],
		Sequence:   buf[2],
		Total:      buf[3],
		Payload:    append([]byte(nil), buf[VaultFragmentHeaderSize:]...),
	}, nil
}
