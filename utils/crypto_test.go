package utils

import (
	"strings"
	"testing"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Setenv("DATA_ENCRYPTION_KEY", testKey)

	plaintext := "monthly rent, paid late"
	enc, err := Encrypt([]byte(plaintext))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if enc == plaintext {
		t.Fatal("ciphertext equals plaintext")
	}

	dec, err := Decrypt(enc)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(dec) != plaintext {
		t.Errorf("round trip = %q, want %q", dec, plaintext)
	}

	// Nonces are random, so encrypting twice gives different ciphertexts.
	enc2, err := Encrypt([]byte(plaintext))
	if err != nil {
		t.Fatalf("second encrypt: %v", err)
	}
	if enc == enc2 {
		t.Error("two encryptions produced identical ciphertext")
	}
}

func TestEncryptionRequiresProperKey(t *testing.T) {
	t.Setenv("DATA_ENCRYPTION_KEY", "too-short")

	if EncryptionConfigured() {
		t.Error("short key reported as configured")
	}
	if _, err := Encrypt([]byte("x")); err == nil {
		t.Error("encrypt succeeded with a short key")
	}

	t.Setenv("DATA_ENCRYPTION_KEY", testKey)
	if !EncryptionConfigured() {
		t.Error("32-char key reported as not configured")
	}
}

func TestEncryptFieldPrefixAndFallback(t *testing.T) {
	t.Setenv("DATA_ENCRYPTION_KEY", testKey)

	value := "groceries for the week"
	stored := EncryptField(value)
	if !strings.HasPrefix(stored, encryptedPrefix) {
		t.Fatalf("stored value %q missing prefix", stored)
	}
	if got := DecryptField(stored); got != value {
		t.Errorf("decrypt field = %q, want %q", got, value)
	}

	// Legacy plaintext rows read back unchanged.
	if got := DecryptField(value); got != value {
		t.Errorf("plaintext passthrough = %q, want %q", got, value)
	}

	// Empty fields are never touched.
	if got := EncryptField(""); got != "" {
		t.Errorf("empty field encrypted to %q", got)
	}
}

func TestEncryptFieldWithoutKeyPassesThrough(t *testing.T) {
	t.Setenv("DATA_ENCRYPTION_KEY", "")

	value := "no key in this environment"
	if got := EncryptField(value); got != value {
		t.Errorf("field changed without a key: %q", got)
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	t.Setenv("DATA_ENCRYPTION_KEY", testKey)

	if _, err := Decrypt("not base64 at all!"); err == nil {
		t.Error("garbage input decrypted")
	}
	if _, err := Decrypt("dG9vc2hvcnQ="); err == nil {
		t.Error("truncated ciphertext decrypted")
	}
}
