package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// Envelope layout: magic(8) + salt(16) + nonce(12) + ciphertext + tag(16).
const (
	gcmMagic      = "GCM3NCR0"
	saltSize      = 16
	nonceSize     = 12
	tagSize       = 16
	kdfIterations = 100000
	keySize       = 32
)

// ErrNoPassword is returned when sealing without a password.
var ErrNoPassword = errors.New("backup password not configured")

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, kdfIterations, keySize, sha256.New)
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// seal encrypts data into the GCM3NCR0 envelope.
func seal(data []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, ErrNoPassword
	}
	head := make([]byte, len(gcmMagic)+saltSize+nonceSize, len(gcmMagic)+saltSize+nonceSize+len(data)+tagSize)
	copy(head, gcmMagic)
	salt := head[len(gcmMagic) : len(gcmMagic)+saltSize]
	nonce := head[len(gcmMagic)+saltSize:]
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(head, nonce, data, nil), nil
}

// open reverses seal.
func open(envelope []byte, password string) ([]byte, error) {
	if len(envelope) < len(gcmMagic)+saltSize+nonceSize+tagSize {
		return nil, fmt.Errorf("GCM data too short: %d bytes", len(envelope))
	}
	if string(envelope[:len(gcmMagic)]) != gcmMagic {
		return nil, fmt.Errorf("unknown encryption format %q", envelope[:len(gcmMagic)])
	}
	salt := envelope[len(gcmMagic) : len(gcmMagic)+saltSize]
	nonce := envelope[len(gcmMagic)+saltSize : len(gcmMagic)+saltSize+nonceSize]
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, nonce, envelope[len(gcmMagic)+saltSize+nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("GCM decryption failed: %w", err)
	}
	return plain, nil
}
