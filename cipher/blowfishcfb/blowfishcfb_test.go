package blowfishcfb_test

import (
	"bytes"
	"testing"

	"github.com/fdupoux/fsarchiver-go/cipher"
	_ "github.com/fdupoux/fsarchiver-go/cipher/blowfishcfb"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	adapter, ok := cipher.Lookup(cipher.Blowfish)
	if !ok {
		t.Fatalf("blowfish adapter not registered")
	}
	key := []byte("a test passphrase")
	plaintext := bytes.Repeat([]byte("archive payload"), 100)

	ciphertext := make([]byte, len(plaintext))
	if err := adapter.Encrypt(ciphertext, plaintext, key); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Equal(ciphertext, plaintext) {
		t.Fatalf("ciphertext must differ from plaintext")
	}

	decrypted := make([]byte, len(ciphertext))
	if err := adapter.Decrypt(decrypted, ciphertext, key); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("round trip mismatch")
	}
}

func TestCiphertextLengthEqualsPlaintextLength(t *testing.T) {
	adapter, _ := cipher.Lookup(cipher.Blowfish)
	key := []byte("key")
	for _, n := range []int{0, 1, 7, 4096} {
		src := bytes.Repeat([]byte{0x42}, n)
		dst := make([]byte, n)
		if err := adapter.Encrypt(dst, src, key); err != nil {
			t.Fatalf("Encrypt(%d): %v", n, err)
		}
	}
}

func TestIdenticalBlocksProduceIdenticalCiphertext(t *testing.T) {
	adapter, _ := cipher.Lookup(cipher.Blowfish)
	key := []byte("key")
	block := bytes.Repeat([]byte{0x07}, 64)

	out1 := make([]byte, len(block))
	out2 := make([]byte, len(block))
	if err := adapter.Encrypt(out1, block, key); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if err := adapter.Encrypt(out2, block, key); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if !bytes.Equal(out1, out2) {
		t.Fatalf("expected identical ciphertext for identical plaintext with the fixed IV")
	}
}
