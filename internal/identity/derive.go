package identity

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math/big"

	"golang.org/x/crypto/hkdf"
)

const (
	hkdfInfoSigning   = "bond/identity/signing/v1"
	hkdfInfoAgreement = "bond/identity/agreement/v1"
)

var ErrDerivationFailed = errors.New("could not derive a valid curve scalar")

// DeriveKeys deterministically derives both long-term keys from seed bytes.
// The same seed always yields the same key pair on every device.
func DeriveKeys(seed []byte) (*DerivedKeys, error) {
	signingScalar, err := deriveScalar(seed, hkdfInfoSigning)
	if err != nil {
		return nil, err
	}
	agreement, err := deriveScalar(seed, hkdfInfoAgreement)
	if err != nil {
		return nil, err
	}
	return &DerivedKeys{
		Signing:   ecdsaFromScalar(signingScalar),
		Agreement: agreement,
	}, nil
}

// deriveScalar expands the seed under the given label and rejects candidates
// outside the valid P-256 scalar range, bumping a counter until one fits.
func deriveScalar(seed []byte, info string) (*ecdh.PrivateKey, error) {
	for counter := 0; counter < 64; counter++ {
		material, err := hkdfExpand(seed, fmt.Sprintf("%s/%d", info, counter), 32)
		if err != nil {
			return nil, err
		}
		key, err := ecdh.P256().NewPrivateKey(material)
		if err == nil {
			return key, nil
		}
	}
	return nil, ErrDerivationFailed
}

func ecdsaFromScalar(scalar *ecdh.PrivateKey) *ecdsa.PrivateKey {
	d := new(big.Int).SetBytes(scalar.Bytes())
	x, y := elliptic.P256().ScalarBaseMult(scalar.Bytes())
	return &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y},
		D:         d,
	}
}

func hkdfExpand(seed []byte, info string, outLen int) ([]byte, error) {
	reader := hkdf.New(sha256.New, seed, nil, []byte(info))
	out := make([]byte, outLen)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}
