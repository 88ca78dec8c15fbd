package crypto

import (
	"crypto/ecdh"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const SharedSecretSize = 32

var ErrInvalidPeerKey = errors.New("invalid peer agreement key")

// SharedSecret is the 32-byte channel key both peers derive independently.
// It never travels on the wire.
type SharedSecret [SharedSecretSize]byte

// DeriveSharedSecret performs ECDH between the local agreement private key
// and the peer's compressed agreement public key, then expands the raw
// material through HKDF-SHA256 with the protocol label as info and the given
// salt. A nil salt defaults to 32 zero bytes. Two peers feeding each other's
// public key with identical label and salt derive byte-identical secrets.
func DeriveSharedSecret(local *ecdh.PrivateKey, peerCompressed []byte, label string, salt []byte) (SharedSecret, error) {
	var secret SharedSecret
	if local == nil {
		return secret, ErrInvalidPeerKey
	}
	uncompressed, err := Decompress(peerCompressed)
	if err != nil {
		return secret, err
	}
	peer, err := ecdh.P256().NewPublicKey(uncompressed)
	if err != nil {
		return secret, ErrInvalidPeerKey
	}
	raw, err := local.ECDH(peer)
	if err != nil {
		return secret, err
	}
	if salt == nil {
		salt = make([]byte, SharedSecretSize)
	}
	reader := hkdf.New(sha256.New, raw, salt, []byte(label))
	if _, err := io.ReadFull(reader, secret[:]); err != nil {
		return SharedSecret{}, err
	}
	return secret, nil
}

// GenerateAgreementKey creates a fresh P-256 key pair for one handshake
// attempt and returns the private handle plus the compressed public form.
func GenerateAgreementKey(rand io.Reader) (*ecdh.PrivateKey, []byte, error) {
	priv, err := ecdh.P256().GenerateKey(rand)
	if err != nil {
		return nil, nil, err
	}
	compressed, err := Compress(priv.PublicKey().Bytes())
	if err != nil {
		return nil, nil, err
	}
	return priv, compressed, nil
}
