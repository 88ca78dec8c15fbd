package crypto

import (
	"crypto/sha256"
	"errors"

	"github.com/mr-tron/base58/base58"
	"golang.org/x/crypto/blake2b"
)

// NodeIDPrefix marks every node identifier produced by this network.
const NodeIDPrefix = "bond1"

const checksumSize = 4

var ErrEmptyPublicKey = errors.New("empty public key")

// Hash returns the 32-byte SHA-256 digest used for signing payloads and
// frame integrity checks.
func Hash(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// DeriveNodeID builds the short textual fingerprint for a public key:
// BLAKE2b-256 of the key, a 4-byte double-SHA-256 checksum, base58 encoded.
// Base58 maps leading zero bytes to the fixed character '1', so the
// identifier is stable for any digest value.
func DeriveNodeID(publicKey []byte) (string, error) {
	if len(publicKey) == 0 {
		return "", ErrEmptyPublicKey
	}
	h := blake2b.Sum256(publicKey)
	payload := append(h[:], checksum(h[:])...)
	return NodeIDPrefix + base58.Encode(payload), nil
}

// VerifyNodeID reports whether id is the fingerprint of publicKey.
func VerifyNodeID(id string, publicKey []byte) (bool, error) {
	expected, err := DeriveNodeID(publicKey)
	if err != nil {
		return false, err
	}
	return id == expected, nil
}

func checksum(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return second[:checksumSize]
}
