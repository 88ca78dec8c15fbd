package securestore

import (
	"os"
	"path/filepath"
)

// ReadSealedFile reads and opens a sealed file with the given passphrase.
func ReadSealedFile(path, passphrase string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Open(passphrase, raw)
}

// WriteSealedFile seals the payload and writes it with owner-only modes.
func WriteSealedFile(path, passphrase string, payload []byte) error {
	sealed, err := Seal(passphrase, payload)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, sealed, 0o600)
}
