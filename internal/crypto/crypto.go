// Package crypto provides NaCl secretbox encryption for observer
// connections that cross a network.
//
// A 32-byte symmetric key is derived from the shared token using HKDF-SHA256.
// Every message is encrypted with a random 24-byte nonce prepended to the
// ciphertext:
//
//	[ 24-byte nonce ][ ciphertext ]
//
// Local socket connections are never encrypted; the wire layer passes a nil
// key and messages are sent as plain JSON.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

var hkdfInfo = []byte("clipmind-v1")

var (
	ErrShortCiphertext = errors.New("crypto: ciphertext too short")
	ErrDecrypt         = errors.New("crypto: decryption failed (wrong token?)")
)

// DeriveKey derives a 32-byte NaCl secretbox key from a token string using
// HKDF-SHA256. Both sides must use the same token to derive the same key.
func DeriveKey(token string) (*[keySize]byte, error) {
	h := hkdf.New(sha256.New, []byte(token), nil, hkdfInfo)
	var key [keySize]byte
	if _, err := io.ReadFull(h, key[:]); err != nil {
		return nil, fmt.Errorf("key derivation: %w", err)
	}
	return &key, nil
}

// KeyForToken is DeriveKey, except an empty token yields a nil key.
func KeyForToken(token string) (*[keySize]byte, error) {
	if token == "" {
		return nil, nil
	}
	return DeriveKey(token)
}

// Seal encrypts plaintext with key, prepending a random nonce.
func Seal(plaintext []byte, key *[keySize]byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("nonce generation: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, key), nil
}

// Open decrypts nonce+ciphertext with key.
func Open(ciphertext []byte, key *[keySize]byte) ([]byte, error) {
	if len(ciphertext) < nonceSize {
		return nil, ErrShortCiphertext
	}
	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])
	plain, ok := secretbox.Open(nil, ciphertext[nonceSize:], &nonce, key)
	if !ok {
		return nil, ErrDecrypt
	}
	return plain, nil
}
