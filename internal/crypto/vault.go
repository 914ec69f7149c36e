package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/gowebpki/jcs"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"chorus/internal/domain"
	"chorus/internal/util/memzero"
)

const (
	// KeyBytes is the symmetric key length for vault sealing.
	KeyBytes = 32
	// SaltBytes is the vault KDF salt length.
	SaltBytes = 16
	// NonceBytes is the AEAD nonce length.
	NonceBytes = chacha20poly1305.NonceSize

	// Argon2id parameter set, version 1. Changing any of these invalidates
	// existing vaults, so they are fixed and the blob layout leaves room
	// for a version bump instead.
	argonTime    = 1
	argonMemory  = 1 << 16
	argonThreads = 8
)

// NewSalt generates a fresh vault salt. Called exactly once, at account
// creation; the salt is persisted alongside the sealed material and never
// regenerated afterwards.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// DeriveKey derives the vault key from a passphrase and salt using
// Argon2id. Deterministic for identical inputs.
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, KeyBytes)
}

// Seal encrypts plaintext under key with a random nonce. The nonce is
// prepended to the returned blob.
func Seal(key, plaintext []byte) ([]byte, error) {
	if len(key) != KeyBytes {
		return nil, errors.New("invalid key size")
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, NonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open authenticates and decrypts a blob produced by Seal. Tampering or a
// key derived from the wrong passphrase fails with
// domain.ErrAuthenticationFailure rather than returning garbage.
func Open(key, blob []byte) ([]byte, error) {
	if len(key) != KeyBytes {
		return nil, errors.New("invalid key size")
	}
	if len(blob) < NonceBytes {
		return nil, domain.ErrAuthenticationFailure
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, blob[:NonceBytes], blob[NonceBytes:], nil)
	if err != nil {
		return nil, domain.ErrAuthenticationFailure
	}
	return pt, nil
}

// Hash returns the SHA-256 hex digest of b.
func Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// CanonicalHash hashes a JSON document after RFC 8785 canonicalization, so
// two serializations of logically identical state hash identically. This
// is the fingerprint used for mutation_of tokens.
func CanonicalHash(jsonBytes []byte) (string, error) {
	canon, err := jcs.Transform(jsonBytes)
	if err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}
	return Hash(canon), nil
}

// WipeKey zeroes a derived vault key once it is no longer needed.
func WipeKey(key []byte) { memzero.Zero(key) }
