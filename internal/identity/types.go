package identity

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"time"
)

// Identity is the public face of a provisioned node.
type Identity struct {
	NodeID      string
	PublicKey   []byte // compressed signing key, 33 bytes
	KeySequence uint8
	CreatedAt   time.Time
}

// DerivedKeys holds both long-term keys produced from one seed: the ECDSA
// signing key and the ECDH agreement key, derived under distinct HKDF labels.
type DerivedKeys struct {
	Signing   *ecdsa.PrivateKey
	Agreement *ecdh.PrivateKey
}
