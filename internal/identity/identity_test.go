package identity

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/tyler-smith/go-bip39"

	"bond-mesh/go-node/internal/crypto"
)

func provisioned(t *testing.T) *Manager {
	t.Helper()
	m := NewManager()
	if _, err := m.Create(); err != nil {
		t.Fatalf("create identity failed: %v", err)
	}
	return m
}

func TestNotProvisioned(t *testing.T) {
	m := NewManager()
	if _, err := m.Sign([]byte("x")); err != ErrNotProvisioned {
		t.Fatalf("sign = %v, want ErrNotProvisioned", err)
	}
	if _, err := m.NodeID(); err != ErrNotProvisioned {
		t.Fatalf("node id = %v, want ErrNotProvisioned", err)
	}
	if _, err := m.AgreementPrivateKey(); err != ErrNotProvisioned {
		t.Fatalf("agreement key = %v, want ErrNotProvisioned", err)
	}
}

func TestDeriveKeysDeterministic(t *testing.T) {
	seed := []byte("fixed-seed-material-for-tests")
	k1, err := DeriveKeys(seed)
	if err != nil {
		t.Fatalf("derive 1 failed: %v", err)
	}
	k2, err := DeriveKeys(seed)
	if err != nil {
		t.Fatalf("derive 2 failed: %v", err)
	}
	if k1.Signing.D.Cmp(k2.Signing.D) != 0 {
		t.Fatal("signing keys should be deterministic")
	}
	if !bytes.Equal(k1.Agreement.Bytes(), k2.Agreement.Bytes()) {
		t.Fatal("agreement keys should be deterministic")
	}
	if bytes.Equal(k1.Signing.D.Bytes(), k1.Agreement.Bytes()) {
		t.Fatal("signing and agreement scalars must differ")
	}
}

func TestImportDeterministic(t *testing.T) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		t.Fatalf("entropy failed: %v", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		t.Fatalf("mnemonic failed: %v", err)
	}

	a, b := NewManager(), NewManager()
	if err := a.Import(mnemonic); err != nil {
		t.Fatalf("import A failed: %v", err)
	}
	if err := b.Import(mnemonic); err != nil {
		t.Fatalf("import B failed: %v", err)
	}
	idA, _ := a.NodeID()
	idB, _ := b.NodeID()
	if idA != idB {
		t.Fatalf("same mnemonic produced different node ids: %s vs %s", idA, idB)
	}

	if err := a.Import("definitely not a valid mnemonic"); err != ErrInvalidMnemonic {
		t.Fatalf("import = %v, want ErrInvalidMnemonic", err)
	}
}

func TestSignVerify(t *testing.T) {
	m := provisioned(t)
	payload := []byte("challenge payload bytes")
	sig, err := m.Sign(payload)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if len(sig) != crypto.SignatureSize {
		t.Fatalf("signature size = %d, want %d", len(sig), crypto.SignatureSize)
	}
	pub, err := m.PublicKey()
	if err != nil {
		t.Fatalf("public key failed: %v", err)
	}
	ok, err := Verify(payload, sig, pub)
	if err != nil || !ok {
		t.Fatalf("verify = %v, %v", ok, err)
	}
	ok, err = Verify([]byte("different payload"), sig, pub)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if ok {
		t.Fatal("signature must not verify for a different payload")
	}

	other := provisioned(t)
	otherPub, _ := other.PublicKey()
	ok, err = Verify(payload, sig, otherPub)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if ok {
		t.Fatal("signature must not verify under another key")
	}
}

func TestSealedSeedRoundTrip(t *testing.T) {
	m := provisioned(t)
	origID, _ := m.NodeID()

	path := filepath.Join(t.TempDir(), "seed.sealed")
	if err := m.SealSeed(path, "passphrase"); err != nil {
		t.Fatalf("seal failed: %v", err)
	}

	restored := NewManager()
	if err := restored.LoadSealedSeed(path, "passphrase"); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	restoredID, _ := restored.NodeID()
	if restoredID != origID {
		t.Fatalf("restored node id %s != original %s", restoredID, origID)
	}

	if err := NewManager().LoadSealedSeed(path, "wrong"); err == nil {
		t.Fatal("wrong passphrase must not restore the seed")
	}
}

func TestAgreementKeyCompression(t *testing.T) {
	m := provisioned(t)
	compressed, err := m.AgreementPublicKey()
	if err != nil {
		t.Fatalf("agreement public key failed: %v", err)
	}
	priv, err := m.AgreementPrivateKey()
	if err != nil {
		t.Fatalf("agreement private key failed: %v", err)
	}
	uncompressed, err := crypto.Decompress(compressed)
	if err != nil {
		t.Fatalf("decompress failed: %v", err)
	}
	if !bytes.Equal(uncompressed, priv.PublicKey().Bytes()) {
		t.Fatal("compressed agreement key does not match the private handle")
	}
}
