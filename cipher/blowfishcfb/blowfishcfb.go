// Package blowfishcfb implements the cipher.Adapter for Blowfish in CFB
// feedback mode with the archive format's fixed 8-byte IV. The IV is a
// known, preserved format limitation:
// identical plaintext blocks encrypted with the same key produce
// identical ciphertext. A future archive format revision should carry a
// per-block IV instead.
package blowfishcfb

import (
	stdcipher "crypto/cipher"

	"golang.org/x/crypto/blowfish"

	"github.com/fdupoux/fsarchiver-go/cipher"
	"github.com/fdupoux/fsarchiver-go/errors"
)

// iv is the literal 8 ASCII bytes "fsarchiv", constant across every block
// encrypted with a given key.
var iv = []byte("fsarchiv")

func init() {
	cipher.Register(cipher.Blowfish, Adapter{})
}

// Adapter implements cipher.Adapter.
type Adapter struct{}

func (Adapter) Encrypt(dst, src, key []byte) error {
	block, err := blowfish.NewCipher(key)
	if err != nil {
		return errors.E(errors.Invalid, "blowfishcfb: bad key", err)
	}
	if len(dst) < len(src) {
		return errors.E(errors.Invalid, "blowfishcfb: dst too small")
	}
	stream := stdcipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(dst[:len(src)], src)
	return nil
}

func (Adapter) Decrypt(dst, src, key []byte) error {
	block, err := blowfish.NewCipher(key)
	if err != nil {
		return errors.E(errors.Invalid, "blowfishcfb: bad key", err)
	}
	if len(dst) < len(src) {
		return errors.E(errors.Invalid, "blowfishcfb: dst too small")
	}
	stream := stdcipher.NewCFBDecrypter(block, iv)
	stream.XORKeyStream(dst[:len(src)], src)
	return nil
}
