package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"strings"
)

// Operation descriptions can be encrypted at rest. Encrypted values carry
// the prefix so legacy plaintext rows keep reading back unchanged.
const encryptedPrefix = "gcm:"

func encryptionKey() ([]byte, error) {
	key := os.Getenv("DATA_ENCRYPTION_KEY")
	if len(key) != 32 {
		return nil, errors.New("DATA_ENCRYPTION_KEY must be exactly 32 characters")
	}
	return []byte(key), nil
}

// EncryptionConfigured reports whether a usable key is present in the
// environment.
func EncryptionConfigured() bool {
	_, err := encryptionKey()
	return err == nil
}

// Encrypt seals plaintext with AES-GCM and returns the base64 ciphertext,
// nonce included.
func Encrypt(plaintext []byte) (string, error) {
	key, err := encryptionKey()
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt.
func Decrypt(cryptoText string) ([]byte, error) {
	key, err := encryptionKey()
	if err != nil {
		return nil, err
	}

	ciphertext, err := base64.StdEncoding.DecodeString(cryptoText)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// EncryptField encrypts a stored text field when a key is configured.
// Without a key the value passes through untouched.
func EncryptField(value string) string {
	if value == "" || !EncryptionConfigured() {
		return value
	}
	enc, err := Encrypt([]byte(value))
	if err != nil {
		return value
	}
	return encryptedPrefix + enc
}

// DecryptField reverses EncryptField, returning legacy plaintext values
// as-is.
func DecryptField(value string) string {
	if !strings.HasPrefix(value, encryptedPrefix) {
		return value
	}
	plain, err := Decrypt(strings.TrimPrefix(value, encryptedPrefix))
	if err != nil {
		return value
	}
	return string(plain)
}
