package wallet

import (
	"bytes"
	"errors"
	"testing"
)

// fastParams returns low-cost Argon2 params for fast tests.
func fastParams() EncryptionParams {
	return EncryptionParams{
		Memory:      64,
		Iterations:  1,
		Parallelism: 1,
	}
}

func TestEncryptDecrypt_Roundtrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"short", []byte("secret wallet data")},
		{"empty", []byte{}},
		{"large", bytes.Repeat([]byte{0xAB, 0x01}, 5000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encrypted, err := Encrypt(tt.data, []byte("strong-password-123"), fastParams())
			if err != nil {
				t.Fatalf("Encrypt() error: %v", err)
			}
			decrypted, err := Decrypt(encrypted, []byte("strong-password-123"))
			if err != nil {
				t.Fatalf("Decrypt() error: %v", err)
			}
			if !bytes.Equal(decrypted, tt.data) {
				t.Errorf("decrypted %d bytes, want %d", len(decrypted), len(tt.data))
			}
		})
	}
}

func TestDecrypt_WrongPassword(t *testing.T) {
	encrypted, err := Encrypt([]byte("secret data"), []byte("correct"), fastParams())
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}

	_, err = Decrypt(encrypted, []byte("wrong"))
	if !errors.Is(err, ErrWrongPassword) {
		t.Errorf("Decrypt() error = %v, want ErrWrongPassword", err)
	}
}

func TestDecrypt_Rejects(t *testing.T) {
	good, err := Encrypt([]byte("data"), []byte("pass"), fastParams())
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	mutate := func(f func(b []byte)) []byte {
		b := bytes.Clone(good)
		f(b)
		return b
	}

	tests := []struct {
		name string
		blob []byte
	}{
		{"truncated", []byte("too short")},
		{"bad version", mutate(func(b []byte) { b[0] = 9 })},
		{"tampered salt", mutate(func(b []byte) { b[1] ^= 0xFF })},
		{"tampered params", mutate(func(b []byte) { b[1+SaltSize+4]++ })},
		{"tampered tag", mutate(func(b []byte) { b[len(b)-1] ^= 0xFF })},
		{"zero parallelism", mutate(func(b []byte) { b[headerSize-1] = 0 })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decrypt(tt.blob, []byte("pass")); err == nil {
				t.Error("Decrypt() should fail")
			}
		})
	}
}

func TestEncrypt_InvalidParams(t *testing.T) {
	for _, p := range []EncryptionParams{
		{Memory: 0, Iterations: 1, Parallelism: 1},
		{Memory: 64, Iterations: 0, Parallelism: 1},
		{Memory: 64, Iterations: 1, Parallelism: 0},
	} {
		if _, err := Encrypt([]byte("x"), []byte("p"), p); err == nil {
			t.Errorf("Encrypt() with %+v should fail", p)
		}
	}
}

func TestEncrypt_DifferentEachTime(t *testing.T) {
	plaintext := []byte("same data")
	password := []byte("same pass")

	enc1, err := Encrypt(plaintext, password, fastParams())
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	enc2, err := Encrypt(plaintext, password, fastParams())
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if bytes.Equal(enc1, enc2) {
		t.Error("encrypting same data twice should produce different output")
	}
}

func TestEncrypt_OutputFormat(t *testing.T) {
	plaintext := []byte("test")
	encrypted, err := Encrypt(plaintext, []byte("pass"), fastParams())
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}

	want := headerSize + 24 + len(plaintext) + 16
	if len(encrypted) != want {
		t.Errorf("encrypted length = %d, want %d", len(encrypted), want)
	}
	if encrypted[0] != sealVersion {
		t.Errorf("version byte = %d", encrypted[0])
	}
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	if p.Memory != 64*1024 || p.Iterations != 3 || p.Parallelism != 4 {
		t.Errorf("DefaultParams() = %+v", p)
	}
	if err := p.validate(); err != nil {
		t.Errorf("default params invalid: %v", err)
	}
}
