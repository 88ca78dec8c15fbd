package crypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

const NonceSize = chacha20poly1305.NonceSize

var ErrDecryptFailed = errors.New("authenticated decryption failed")

// Encrypt seals plaintext under the shared secret with a fresh 12-byte nonce
// per call. The returned ciphertext carries the appended authentication tag.
func Encrypt(key SharedSecret, plaintext, aad []byte) (ciphertext, nonce []byte, err error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	return aead.Seal(nil, nonce, plaintext, aad), nonce, nil
}

// Decrypt opens ciphertext produced by Encrypt. Any tag or AAD mismatch
// fails closed; corrupted plaintext is never returned.
func Decrypt(key SharedSecret, ciphertext, nonce, aad []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, ErrDecryptFailed
	}
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
