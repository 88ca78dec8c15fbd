package crypto

import (
	"encoding/asn1"
	"errors"
	"math/big"
)

// SignatureSize is the fixed wire form: r and s each left-padded to 32 bytes.
const SignatureSize = 64

var ErrInvalidSignature = errors.New("invalid signature encoding")

type asn1Signature struct {
	R, S *big.Int
}

// NormalizeSignature accepts either the fixed 64-byte r||s form or an ASN.1
// DER encoded ECDSA signature and always returns the 64-byte form.
func NormalizeSignature(sig []byte) ([]byte, error) {
	if len(sig) == SignatureSize {
		return append([]byte(nil), sig...), nil
	}
	var parsed asn1Signature
	rest, err := asn1.Unmarshal(sig, &parsed)
	if err != nil || len(rest) != 0 {
		return nil, ErrInvalidSignature
	}
	if parsed.R == nil || parsed.S == nil || parsed.R.Sign() <= 0 || parsed.S.Sign() <= 0 {
		return nil, ErrInvalidSignature
	}
	if parsed.R.BitLen() > 256 || parsed.S.BitLen() > 256 {
		return nil, ErrInvalidSignature
	}
	out := make([]byte, SignatureSize)
	parsed.R.FillBytes(out[:32])
	parsed.S.FillBytes(out[32:])
	return out, nil
}

// SplitSignature returns the r and s scalars of a 64-byte signature.
func SplitSignature(sig []byte) (r, s *big.Int, err error) {
	if len(sig) != SignatureSize {
		return nil, nil, ErrInvalidSignature
	}
	r = new(big.Int).SetBytes(sig[:32])
	s = new(big.Int).SetBytes(sig[32:])
	if r.Sign() == 0 || s.Sign() == 0 {
		return nil, nil, ErrInvalidSignature
	}
	return r, s, nil
}
