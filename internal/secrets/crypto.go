// Package secrets stores workspace secrets (API keys for generated backends)
// encrypted with AES-256-GCM under a key derived per workspace and per secret.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

var (
	ErrInvalidKey       = errors.New("invalid encryption key")
	ErrDecryptionFailed = errors.New("decryption failed - data may be corrupted or key is wrong")
)

const (
	masterKeyBytes = 32
	saltBytes      = 16
	// OWASP recommended minimum for PBKDF2-SHA256
	defaultIterations = 100000
)

// Manager encrypts and decrypts secret values.
type Manager struct {
	masterKey  []byte
	iterations int
}

// NewManager creates a manager from a base64 master key of at least 32 bytes.
func NewManager(masterKeyBase64 string) (*Manager, error) {
	if masterKeyBase64 == "" {
		return nil, ErrInvalidKey
	}

	masterKey, err := base64.StdEncoding.DecodeString(masterKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("invalid master key format: %w", err)
	}
	if len(masterKey) < masterKeyBytes {
		return nil, ErrInvalidKey
	}

	return &Manager{masterKey: masterKey, iterations: defaultIterations}, nil
}

// GenerateMasterKey creates a new random base64 master key.
func GenerateMasterKey() (string, error) {
	key := make([]byte, masterKeyBytes)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate master key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// deriveKey returns the AES key for one secret and its fingerprint.
func (m *Manager) deriveKey(workspace string, salt []byte) ([]byte, string) {
	combined := make([]byte, 0, len(m.masterKey)+len(workspace)+10)
	combined = append(combined, m.masterKey...)
	combined = append(combined, "workspace:"...)
	combined = append(combined, workspace...)

	key := pbkdf2.Key(combined, salt, m.iterations, 32, sha256.New)
	sum := sha256.Sum256(key)
	return key, base64.StdEncoding.EncodeToString(sum[:8])
}

// Encrypt seals value for workspace. It returns base64 ciphertext, base64
// salt and the key fingerprint.
func (m *Manager) Encrypt(workspace, value string) (encrypted, saltBase64, fingerprint string, err error) {
	salt := make([]byte, saltBytes)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", "", "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key, fp := m.deriveKey(workspace, salt)
	gcm, err := newGCM(key)
	if err != nil {
		return "", "", "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", "", "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nonce, nonce, []byte(value), nil)

	return base64.StdEncoding.EncodeToString(ciphertext),
		base64.StdEncoding.EncodeToString(salt),
		fp,
		nil
}

// Decrypt opens a value produced by Encrypt.
func (m *Manager) Decrypt(workspace, encrypted, saltBase64 string) (string, error) {
	salt, err := base64.StdEncoding.DecodeString(saltBase64)
	if err != nil {
		return "", fmt.Errorf("invalid salt: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("invalid ciphertext: %w", err)
	}

	key, _ := m.deriveKey(workspace, salt)
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return "", ErrDecryptionFailed
	}

	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// MatchesFingerprint reports whether a stored secret was sealed with this
// manager's master key.
func (m *Manager) MatchesFingerprint(workspace, saltBase64, fingerprint string) (bool, error) {
	salt, err := base64.StdEncoding.DecodeString(saltBase64)
	if err != nil {
		return false, fmt.Errorf("invalid salt: %w", err)
	}
	_, fp := m.deriveKey(workspace, salt)
	return fp == fingerprint, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
