package identity

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/tyler-smith/go-bip39"

	"bond-mesh/go-node/internal/crypto"
	"bond-mesh/go-node/internal/securestore"
)

var (
	ErrNotProvisioned  = errors.New("identity not provisioned")
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
)

// Manager owns the node's long-term keys and implements the identity
// contract the bond engine consumes: signing, verification, and the ECDH
// agreement key handle.
type Manager struct {
	mu          sync.RWMutex
	keys        *DerivedKeys
	seed        []byte
	keySequence uint8
	nodeID      string
	publicKey   []byte
	createdAt   time.Time
}

func NewManager() *Manager {
	return &Manager{}
}

// Create provisions a fresh identity from new entropy and returns the
// recovery mnemonic. The mnemonic is shown once and never stored.
func (m *Manager) Create() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", err
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", err
	}
	if err := m.Import(mnemonic); err != nil {
		return "", err
	}
	return mnemonic, nil
}

// Import provisions the identity from an existing recovery mnemonic.
func (m *Manager) Import(mnemonic string) error {
	if !bip39.IsMnemonicValid(mnemonic) {
		return ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, "")
	keys, err := DeriveKeys(seed)
	if err != nil {
		return err
	}
	compressed, err := compressSigningKey(&keys.Signing.PublicKey)
	if err != nil {
		return err
	}
	nodeID, err := crypto.DeriveNodeID(compressed)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = keys
	m.seed = append([]byte(nil), seed...)
	m.keySequence = 0
	m.nodeID = nodeID
	m.publicKey = compressed
	m.createdAt = time.Now().UTC()
	return nil
}

func (m *Manager) Identity() (Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.keys == nil {
		return Identity{}, ErrNotProvisioned
	}
	return Identity{
		NodeID:      m.nodeID,
		PublicKey:   append([]byte(nil), m.publicKey...),
		KeySequence: m.keySequence,
		CreatedAt:   m.createdAt,
	}, nil
}

func (m *Manager) NodeID() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.keys == nil {
		return "", ErrNotProvisioned
	}
	return m.nodeID, nil
}

// PublicKey returns the compressed long-term signing key.
func (m *Manager) PublicKey() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.keys == nil {
		return nil, ErrNotProvisioned
	}
	return append([]byte(nil), m.publicKey...), nil
}

func (m *Manager) KeySequence() (uint8, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.keys == nil {
		return 0, ErrNotProvisioned
	}
	return m.keySequence, nil
}

// AgreementPrivateKey hands out the long-term ECDH key. Handshakes use
// fresh ephemeral keys; this handle backs key rotation and vault grants.
func (m *Manager) AgreementPrivateKey() (*ecdh.PrivateKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.keys == nil {
		return nil, ErrNotProvisioned
	}
	return m.keys.Agreement, nil
}

// AgreementPublicKey returns the compressed long-term agreement key.
func (m *Manager) AgreementPublicKey() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.keys == nil {
		return nil, ErrNotProvisioned
	}
	return crypto.Compress(m.keys.Agreement.PublicKey().Bytes())
}

// Sign produces the fixed 64-byte r||s signature over the SHA-256 digest of
// the payload.
func (m *Manager) Sign(payload []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.keys == nil {
		return nil, ErrNotProvisioned
	}
	digest := crypto.Hash(payload)
	r, s, err := ecdsa.Sign(rand.Reader, m.keys.Signing, digest[:])
	if err != nil {
		return nil, err
	}
	sig := make([]byte, crypto.SignatureSize)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	return sig, nil
}

// Verify checks a signature against a peer's compressed public key. The
// signature may be in either the 64-byte or DER form.
func (m *Manager) Verify(payload, sig, compressedPublicKey []byte) (bool, error) {
	return Verify(payload, sig, compressedPublicKey)
}

// Verify is the package-level form; it needs no provisioned identity.
func Verify(payload, sig, compressedPublicKey []byte) (bool, error) {
	pub, err := decompressSigningKey(compressedPublicKey)
	if err != nil {
		return false, err
	}
	fixed, err := crypto.NormalizeSignature(sig)
	if err != nil {
		return false, err
	}
	r, s, err := crypto.SplitSignature(fixed)
	if err != nil {
		return false, err
	}
	digest := crypto.Hash(payload)
	return ecdsa.Verify(pub, digest[:], r, s), nil
}

// SealSeed writes the identity seed to path under the passphrase.
func (m *Manager) SealSeed(path, passphrase string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.keys == nil {
		return ErrNotProvisioned
	}
	return securestore.WriteSealedFile(path, passphrase, m.seed)
}

// LoadSealedSeed restores the identity from a sealed seed file.
func (m *Manager) LoadSealedSeed(path, passphrase string) error {
	seed, err := securestore.ReadSealedFile(path, passphrase)
	if err != nil {
		return err
	}
	keys, err := DeriveKeys(seed)
	if err != nil {
		return err
	}
	compressed, err := compressSigningKey(&keys.Signing.PublicKey)
	if err != nil {
		return err
	}
	nodeID, err := crypto.DeriveNodeID(compressed)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = keys
	m.seed = seed
	m.keySequence = 0
	m.nodeID = nodeID
	m.publicKey = compressed
	m.createdAt = time.Now().UTC()
	return nil
}

func compressSigningKey(pub *ecdsa.PublicKey) ([]byte, error) {
	ecdhPub, err := pub.ECDH()
	if err != nil {
		return nil, err
	}
	return crypto.Compress(ecdhPub.Bytes())
}

func decompressSigningKey(compressed []byte) (*ecdsa.PublicKey, error) {
	uncompressed, err := crypto.Decompress(compressed)
	if err != nil {
		return nil, err
	}
	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(uncompressed[1:33]),
		Y:     new(big.Int).SetBytes(uncompressed[33:]),
	}, nil
}
