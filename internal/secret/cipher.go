// Package secret encrypts stored credentials with AES-256-CBC.
//
// Ciphertexts are written as "v2:" followed by base64(iv || ciphertext) with
// a random IV per value. Untagged values are the legacy format, base64 of the
// ciphertext under a static IV derived from the IV source, and can still be
// decrypted.
package secret

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"github.com/shineum/enjinmel-relay/internal/email"
)

const v2Prefix = "v2:"

// Cipher encrypts and decrypts short secrets with key material from a Source.
type Cipher struct {
	source Source
	random io.Reader
}

// New creates a Cipher. The source is consulted on every non-empty
// Encrypt or Decrypt call.
func New(source Source) *Cipher {
	return &Cipher{source: source, random: rand.Reader}
}

// Encrypt returns the v2 form of plaintext. Empty input yields empty output.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	key, _, err := c.derive()
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", email.Wrap(email.CodeEncryptionFailed, "Encryption failed.", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(c.random, iv); err != nil {
		return "", email.Wrap(email.CodeEncryptionFailed, "Encryption failed.", err)
	}

	padded := pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)

	return v2Prefix + base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt accepts both the v2 and the legacy form. Empty input yields
// empty output.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	key, legacyIV, err := c.derive()
	if err != nil {
		return "", err
	}

	var iv, data []byte
	if rest, ok := strings.CutPrefix(ciphertext, v2Prefix); ok {
		raw, err := base64.StdEncoding.DecodeString(rest)
		if err != nil {
			return "", email.Wrap(email.CodeDecryptionFailed, "Decryption failed.", err)
		}
		if len(raw) <= aes.BlockSize {
			return "", email.Errorf(email.CodeDecryptionFailed, "Decryption failed.")
		}
		iv, data = raw[:aes.BlockSize], raw[aes.BlockSize:]
	} else {
		raw, err := base64.StdEncoding.DecodeString(ciphertext)
		if err != nil {
			return "", email.Wrap(email.CodeDecryptionFailed, "Decryption failed.", err)
		}
		iv, data = legacyIV, raw
	}

	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return "", email.Errorf(email.CodeDecryptionFailed, "Decryption failed.")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", email.Wrap(email.CodeDecryptionFailed, "Decryption failed.", err)
	}

	plain := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, data)

	plain, err = unpad(plain, aes.BlockSize)
	if err != nil {
		return "", email.Wrap(email.CodeDecryptionFailed, "Decryption failed.", err)
	}
	return string(plain), nil
}

// derive returns the 32-byte key and the 16-byte legacy IV.
func (c *Cipher) derive() ([]byte, []byte, error) {
	m, err := c.source.Material()
	if err != nil {
		return nil, nil, err
	}
	if m.Key == "" || m.IV == "" {
		return nil, nil, email.Errorf(email.CodeInvalidSecret, "Encryption secrets must not be empty.")
	}

	k := sha256.Sum256([]byte(m.Key))
	v := sha256.Sum256([]byte(m.IV))
	return k[:32], v[:aes.BlockSize], nil
}

func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

var errBadPadding = errors.New("invalid padding")

func unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, errBadPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, errBadPadding
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errBadPadding
		}
	}
	return b[:len(b)-n], nil
}
