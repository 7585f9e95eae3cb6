// Package crypto provides envelope encryption for environment variable
// values before they are persisted by the status updater (C9), so a
// deployment row's Config.Environment never hits disk in cleartext.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"os"

	"golang.org/x/crypto/hkdf"
)

const (
	NonceSize = 12 // AES-GCM standard nonce size
	KeySize   = 32 // AES-256 key size

	// envelopeVersion tags every token so a future key-derivation scheme can
	// be introduced without breaking tokens already in environment_secrets.
	envelopeVersion byte = 1

	hkdfInfoPrefix = "dprod-environment-secret:"
)

var (
	ErrInvalidKeySize             = errors.New("invalid key size: must be 32 bytes")
	ErrInvalidNonceSize           = errors.New("invalid nonce size: must be 12 bytes")
	ErrEncryptionFailed           = errors.New("encryption failed")
	ErrDecryptionFailed           = errors.New("decryption failed")
	ErrUnsupportedEnvelopeVersion = errors.New("unsupported envelope version")
	ErrMissingSecretKey           = errors.New("DPROD_SECRET environment variable is required")
	ErrInvalidBase64              = errors.New("DPROD_SECRET must be valid base64")
)

// LoadMasterKeyFromEnv loads the master encryption key from the DPROD_SECRET
// environment variable. The key must be base64 encoded and decode to exactly
// 32 bytes. This key is never used to seal a secret directly; every value is
// sealed under a key derived from it (see deriveDeploymentKey).
func LoadMasterKeyFromEnv() ([]byte, error) {
	secretEnv := os.Getenv("DPROD_SECRET")
	if secretEnv == "" {
		return nil, ErrMissingSecretKey
	}

	key, err := base64.StdEncoding.DecodeString(secretEnv)
	if err != nil {
		return nil, ErrInvalidBase64
	}

	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	return key, nil
}

// deriveDeploymentKey derives a per-deployment subkey from the master key
// via HKDF-SHA256, keyed on deploymentID as context. A deployment's
// environment_secrets rows are therefore sealed under a key distinct from
// every other deployment's and from the master key itself, so recovering
// one deployment's derived key (e.g. from a compromised worker that only
// ever handles that deployment) never exposes another deployment's secrets.
func deriveDeploymentKey(masterKey []byte, deploymentID string) ([]byte, error) {
	if len(masterKey) != KeySize {
		return nil, ErrInvalidKeySize
	}
	sub := make([]byte, KeySize)
	r := hkdf.New(sha256.New, masterKey, nil, []byte(hkdfInfoPrefix+deploymentID))
	if _, err := io.ReadFull(r, sub); err != nil {
		return nil, ErrEncryptionFailed
	}
	return sub, nil
}

// Encrypt encrypts plaintext using AES-GCM with the provided key. Returns a
// 12-byte nonce and the ciphertext.
func Encrypt(key, plaintext []byte) (nonce, ciphertext []byte, err error) {
	if len(key) != KeySize {
		return nil, nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, ErrEncryptionFailed
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, ErrEncryptionFailed
	}

	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, ErrEncryptionFailed
	}

	ciphertext = gcm.Seal(nil, nonce, plaintext, nil)

	return nonce, ciphertext, nil
}

// Decrypt decrypts ciphertext using AES-GCM with the provided key and nonce.
func Decrypt(key, nonce, ciphertext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	if len(nonce) != NonceSize {
		return nil, ErrInvalidNonceSize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

// EncryptForDeployment seals plaintext under a subkey derived from masterKey
// and deploymentID, returning a single base64(version||nonce||ciphertext)
// token suitable for environment_secrets.encrypted_value.
func EncryptForDeployment(masterKey []byte, deploymentID, plaintext string) (string, error) {
	key, err := deriveDeploymentKey(masterKey, deploymentID)
	if err != nil {
		return "", err
	}
	nonce, ciphertext, err := Encrypt(key, []byte(plaintext))
	if err != nil {
		return "", err
	}
	token := make([]byte, 0, 1+len(nonce)+len(ciphertext))
	token = append(token, envelopeVersion)
	token = append(token, nonce...)
	token = append(token, ciphertext...)
	return base64.StdEncoding.EncodeToString(token), nil
}

// DecryptForDeployment is the inverse of EncryptForDeployment. deploymentID
// must match the value the token was sealed under, or decryption fails.
func DecryptForDeployment(masterKey []byte, deploymentID, token string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", ErrInvalidBase64
	}
	if len(raw) < 1+NonceSize {
		return "", ErrInvalidNonceSize
	}
	if raw[0] != envelopeVersion {
		return "", ErrUnsupportedEnvelopeVersion
	}
	nonce, ciphertext := raw[1:1+NonceSize], raw[1+NonceSize:]

	key, err := deriveDeploymentKey(masterKey, deploymentID)
	if err != nil {
		return "", err
	}
	plaintext, err := Decrypt(key, nonce, ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
