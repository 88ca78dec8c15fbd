package securestore

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	seed := []byte("identity-seed-material")
	sealed, err := Seal("strong-passphrase", seed)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	got, err := Open("strong-passphrase", sealed)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if !bytes.Equal(got, seed) {
		t.Fatal("opened payload mismatch")
	}
}

func TestOpenRejectsWrongPassphrase(t *testing.T) {
	sealed, err := Seal("right", []byte("secret"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if _, err := Open("wrong", sealed); err != ErrAuthFailed {
		t.Fatalf("expected auth failure, got %v", err)
	}
	if _, err := Open("right", []byte("not an envelope")); err != ErrInvalid {
		t.Fatalf("expected invalid envelope, got %v", err)
	}
}

func TestSealedFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "seed.sealed")
	if err := WriteSealedFile(path, "pw", []byte("payload")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	got, err := ReadSealedFile(path, "pw")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !bytes.Equal(got, []byte("payload")) {
		t.Fatal("file round trip mismatch")
	}
}
