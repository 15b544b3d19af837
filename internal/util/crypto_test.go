package util

import (
	"strings"
	"testing"
)

// ============ AES ============

func TestEncryptDecryptAES(t *testing.T) {
	key := "test-encryption-key"

	testCases := []string{
		"Hello World",
		"Alimentação à vista",
		"",
		"Special!@#$%^&*()",
		strings.Repeat("A", 1000),
	}

	for _, plaintext := range testCases {
		encrypted, err := EncryptAES(key, []byte(plaintext))
		if err != nil {
			t.Fatalf("encrypt %q: %v", plaintext, err)
		}

		decrypted, err := DecryptAES(key, encrypted)
		if err != nil {
			t.Fatalf("decrypt %q: %v", plaintext, err)
		}

		if string(decrypted) != plaintext {
			t.Errorf("mismatch\nwant: %s\ngot:  %s", plaintext, string(decrypted))
		}
	}
}

func TestEncryptAES_DifferentKeys(t *testing.T) {
	plaintext := []byte("Secret Data")

	encrypted1, _ := EncryptAES("key1", plaintext)
	encrypted2, _ := EncryptAES("key2", plaintext)

	if string(encrypted1) == string(encrypted2) {
		t.Error("different keys should produce different ciphertexts")
	}
}

func TestDecryptAES_WrongKey(t *testing.T) {
	encrypted, _ := EncryptAES("correct-key", []byte("Data"))

	if _, err := DecryptAES("wrong-key", encrypted); err == nil {
		t.Error("wrong key should fail")
	}
}

func TestDecryptAES_InvalidData(t *testing.T) {
	key := "test-key"

	if _, err := DecryptAES(key, []byte{1, 2, 3}); err == nil {
		t.Error("short data should fail")
	}
	if _, err := DecryptAES(key, []byte{}); err == nil {
		t.Error("empty data should fail")
	}
}

// ============ field helpers ============

func TestEncryptField_RoundTrip(t *testing.T) {
	key := "field-key"
	enc, err := EncryptField(key, "/api/transactions")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if enc == "/api/transactions" {
		t.Fatal("value was not encrypted")
	}
	if got := DecryptField(key, enc); got != "/api/transactions" {
		t.Errorf("DecryptField = %q", got)
	}
}

func TestEncryptField_Passthrough(t *testing.T) {
	if got, _ := EncryptField("", "plain"); got != "plain" {
		t.Errorf("empty key should pass through, got %q", got)
	}
	if got, _ := EncryptField("k", ""); got != "" {
		t.Errorf("empty value should stay empty, got %q", got)
	}
	if got := DecryptField("k", "not base64 !"); got != "not base64 !" {
		t.Errorf("garbage should pass through, got %q", got)
	}
}

// ============ benchmarks ============

func BenchmarkEncryptAES(b *testing.B) {
	key := "bench-key"
	data := []byte("Benchmark data")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		EncryptAES(key, data)
	}
}

func BenchmarkDecryptAES(b *testing.B) {
	key := "bench-key"
	data := []byte("Benchmark data")
	encrypted, _ := EncryptAES(key, data)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		DecryptAES(key, encrypted)
	}
}
