package crypto

import (
	"bytes"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"strings"
	"testing"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	sawEven, sawOdd := false, false
	for i := 0; i < 16 && !(sawEven && sawOdd); i++ {
		priv, err := ecdh.P256().GenerateKey(rand.Reader)
		if err != nil {
			t.Fatalf("generate key failed: %v", err)
		}
		uncompressed := priv.PublicKey().Bytes()
		compressed, err := Compress(uncompressed)
		if err != nil {
			t.Fatalf("compress failed: %v", err)
		}
		if len(compressed) != CompressedKeySize {
			t.Fatalf("compressed size = %d, want %d", len(compressed), CompressedKeySize)
		}
		switch compressed[0] {
		case 0x02:
			sawEven = true
		case 0x03:
			sawOdd = true
		default:
			t.Fatalf("unexpected parity prefix 0x%02x", compressed[0])
		}
		restored, err := Decompress(compressed)
		if err != nil {
			t.Fatalf("decompress failed: %v", err)
		}
		if !bytes.Equal(restored, uncompressed) {
			t.Fatal("decompress did not reproduce the original point")
		}
	}
	if !sawEven || !sawOdd {
		t.Skip("did not observe both parities in 16 keys")
	}
}

func TestCompressRejectsMalformedInput(t *testing.T) {
	if _, err := Compress(make([]byte, 64)); err == nil {
		t.Fatal("expected error for short input")
	}
	bad := make([]byte, UncompressedPointSize)
	bad[0] = 0x05
	if _, err := Compress(bad); err == nil {
		t.Fatal("expected error for bad prefix")
	}
}

func TestDecompressRejectsMalformedInput(t *testing.T) {
	if _, err := Decompress(make([]byte, 10)); err == nil {
		t.Fatal("expected error for short input")
	}
	bad := make([]byte, CompressedKeySize)
	bad[0] = 0x04
	if _, err := Decompress(bad); err == nil {
		t.Fatal("expected error for bad prefix")
	}
}

func TestDeriveSharedSecretSymmetry(t *testing.T) {
	privA, pubA, err := GenerateAgreementKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate A failed: %v", err)
	}
	privB, pubB, err := GenerateAgreementKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate B failed: %v", err)
	}

	salt := []byte("nonceA-nonceB-material")
	secretA, err := DeriveSharedSecret(privA, pubB, "bond/channel/v1", salt)
	if err != nil {
		t.Fatalf("derive A failed: %v", err)
	}
	secretB, err := DeriveSharedSecret(privB, pubA, "bond/channel/v1", salt)
	if err != nil {
		t.Fatalf("derive B failed: %v", err)
	}
	if secretA != secretB {
		t.Fatal("peers derived different secrets")
	}

	other, err := DeriveSharedSecret(privA, pubB, "bond/channel/v1", []byte("different salt"))
	if err != nil {
		t.Fatalf("derive with different salt failed: %v", err)
	}
	if other == secretA {
		t.Fatal("different salt should change the derived secret")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	var key SharedSecret
	if _, err := rand.Read(key[:]); err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	plaintext := []byte("hello over the bond channel")
	aad := []byte("frame-header")

	ciphertext, nonce, err := Encrypt(key, plaintext, aad)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if len(nonce) != NonceSize {
		t.Fatalf("nonce size = %d, want %d", len(nonce), NonceSize)
	}
	got, err := Decrypt(key, ciphertext, nonce, aad)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatal("plaintext mismatch")
	}
}

func TestDecryptFailsClosedOnTamper(t *testing.T) {
	var key SharedSecret
	if _, err := rand.Read(key[:]); err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	ciphertext, nonce, err := Encrypt(key, []byte("payload"), nil)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	tampered := append([]byte(nil), ciphertext...)
	tampered[0] ^= 0x01
	if _, err := Decrypt(key, tampered, nonce, nil); err == nil {
		t.Fatal("tampered ciphertext must not decrypt")
	}
	if _, err := Decrypt(key, ciphertext, nonce, []byte("wrong aad")); err == nil {
		t.Fatal("wrong AAD must not decrypt")
	}
}

func TestDeriveNodeID(t *testing.T) {
	_, pubA, err := GenerateAgreementKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	idA, err := DeriveNodeID(pubA)
	if err != nil {
		t.Fatalf("derive node id failed: %v", err)
	}
	if !strings.HasPrefix(idA, NodeIDPrefix) {
		t.Fatalf("node id %q missing prefix", idA)
	}
	again, err := DeriveNodeID(pubA)
	if err != nil {
		t.Fatalf("derive node id failed: %v", err)
	}
	if again != idA {
		t.Fatal("node id derivation should be deterministic")
	}

	_, pubB, err := GenerateAgreementKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	idB, err := DeriveNodeID(pubB)
	if err != nil {
		t.Fatalf("derive node id failed: %v", err)
	}
	if idA == idB {
		t.Fatal("distinct keys must not share a node id")
	}

	if ok, err := VerifyNodeID(idA, pubA); err != nil || !ok {
		t.Fatalf("verify node id = %v, %v", ok, err)
	}
	if ok, _ := VerifyNodeID(idA, pubB); ok {
		t.Fatal("verify should reject id for the wrong key")
	}
}

func TestNormalizeSignature(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key failed: %v", err)
	}
	digest := Hash([]byte("signed payload"))

	der, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	fixed, err := NormalizeSignature(der)
	if err != nil {
		t.Fatalf("normalize DER failed: %v", err)
	}
	if len(fixed) != SignatureSize {
		t.Fatalf("normalized size = %d, want %d", len(fixed), SignatureSize)
	}

	r, s, err := SplitSignature(fixed)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if !ecdsa.Verify(&priv.PublicKey, digest[:], r, s) {
		t.Fatal("normalized signature does not verify")
	}

	passthrough, err := NormalizeSignature(fixed)
	if err != nil {
		t.Fatalf("normalize fixed failed: %v", err)
	}
	if !bytes.Equal(passthrough, fixed) {
		t.Fatal("64-byte form should pass through unchanged")
	}

	if _, err := NormalizeSignature([]byte("garbage")); err == nil {
		t.Fatal("garbage must not normalize")
	}
}
