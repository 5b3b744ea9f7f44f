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
		"中文测试",
		"",
		`{"pauseAutoClosed":true,"pauseDurationSeconds":31}`,
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
			t.Errorf("round trip mismatch\nwant: %s\ngot:  %s", plaintext, string(decrypted))
		}
	}
}

func TestEncryptAES_DifferentKeys(t *testing.T) {
	plaintext := []byte("Secret Data")

	encrypted1, _ := EncryptAES("key1", plaintext)
	encrypted2, _ := EncryptAES("key2", plaintext)

	if string(encrypted1) == string(encrypted2) {
		t.Error("different keys must produce different ciphertext")
	}
}

func TestDecryptAES_WrongKey(t *testing.T) {
	encrypted, _ := EncryptAES("correct-key", []byte("Data"))

	if _, err := DecryptAES("wrong-key", encrypted); err == nil {
		t.Error("decrypt with wrong key should fail")
	}
}

func TestDecryptAES_InvalidData(t *testing.T) {
	key := "test-key"

	if _, err := DecryptAES(key, []byte{1, 2, 3}); err == nil {
		t.Error("short input should fail")
	}
	if _, err := DecryptAES(key, []byte{}); err == nil {
		t.Error("empty input should fail")
	}
}

// ============ field helpers ============

func TestEncryptField_NoKeyIsPassthrough(t *testing.T) {
	got, err := EncryptField("", "plain")
	if err != nil {
		t.Fatalf("EncryptField: %v", err)
	}
	if got != "plain" {
		t.Errorf("EncryptField without key = %q, want %q", got, "plain")
	}
}

func TestEncryptField_RoundTrip(t *testing.T) {
	enc, err := EncryptField("k", `{"reason":"user left application"}`)
	if err != nil {
		t.Fatalf("EncryptField: %v", err)
	}
	if enc == `{"reason":"user left application"}` {
		t.Fatal("EncryptField returned plaintext")
	}
	if got := DecryptField("k", enc); got != `{"reason":"user left application"}` {
		t.Errorf("DecryptField = %q", got)
	}
	// undecodable input comes back unchanged
	if got := DecryptField("k", "not base64!"); got != "not base64!" {
		t.Errorf("DecryptField(garbage) = %q", got)
	}
}

func BenchmarkEncryptAES(b *testing.B) {
	key := "bench-key"
	data := []byte("Benchmark data")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		EncryptAES(key, data)
	}
}
