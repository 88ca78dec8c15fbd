package crypto

import (
	"crypto/elliptic"
	"errors"
	"math/big"
)

const (
	UncompressedPointSize = 65
	CompressedKeySize     = 33

	prefixUncompressed = 0x04
	prefixEvenY        = 0x02
	prefixOddY         = 0x03
)

var (
	ErrInvalidPoint         = errors.New("invalid uncompressed curve point")
	ErrInvalidCompressedKey = errors.New("invalid compressed public key")
	ErrPointNotOnCurve      = errors.New("point is not on the curve")
)

// Compress converts a 65-byte uncompressed P-256 point into the canonical
// 33-byte wire form: one parity prefix byte plus the X coordinate.
func Compress(uncompressed []byte) ([]byte, error) {
	if len(uncompressed) != UncompressedPointSize || uncompressed[0] != prefixUncompressed {
		return nil, ErrInvalidPoint
	}
	out := make([]byte, CompressedKeySize)
	if uncompressed[UncompressedPointSize-1]&1 == 1 {
		out[0] = prefixOddY
	} else {
		out[0] = prefixEvenY
	}
	copy(out[1:], uncompressed[1:33])
	return out, nil
}

// Decompress reconstructs the full point from its compressed form by solving
// the curve equation y^2 = x^3 - 3x + b for y. The P-256 field prime is
// congruent to 3 mod 4, so the square root is a single modular exponent.
func Decompress(compressed []byte) ([]byte, error) {
	if len(compressed) != CompressedKeySize {
		return nil, ErrInvalidCompressedKey
	}
	prefix := compressed[0]
	if prefix != prefixEvenY && prefix != prefixOddY {
		return nil, ErrInvalidCompressedKey
	}

	params := elliptic.P256().Params()
	p := params.P
	x := new(big.Int).SetBytes(compressed[1:])
	if x.Cmp(p) >= 0 {
		return nil, ErrInvalidCompressedKey
	}

	// rhs = x^3 - 3x + b mod p
	rhs := new(big.Int).Mul(x, x)
	rhs.Mod(rhs, p)
	rhs.Mul(rhs, x)
	rhs.Mod(rhs, p)
	threeX := new(big.Int).Lsh(x, 1)
	threeX.Add(threeX, x)
	rhs.Sub(rhs, threeX)
	rhs.Add(rhs, params.B)
	rhs.Mod(rhs, p)

	// y = rhs^((p+1)/4) mod p
	exp := new(big.Int).Add(p, big.NewInt(1))
	exp.Rsh(exp, 2)
	y := new(big.Int).Exp(rhs, exp, p)

	// Reject residues with no square root.
	check := new(big.Int).Mul(y, y)
	check.Mod(check, p)
	if check.Cmp(rhs) != 0 {
		return nil, ErrPointNotOnCurve
	}

	wantOdd := prefix == prefixOddY
	if y.Bit(0) != boolBit(wantOdd) {
		y.Sub(p, y)
	}

	out := make([]byte, UncompressedPointSize)
	out[0] = prefixUncompressed
	x.FillBytes(out[1:33])
	y.FillBytes(out[33:])
	return out, nil
}

func boolBit(b bool) uint {
	if b {
		return 1
	}
	return 0
}
