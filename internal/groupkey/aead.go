package groupkey

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/speakeasy-rtc/speakeasy/internal/config"
)

// newAEAD builds the cipher.AEAD for the given algorithm and 32-byte key.
func newAEAD(algo config.GroupKeyAlgorithm, key []byte) (cipher.AEAD, error) {
	switch algo {
	case config.GroupKeyAlgorithmAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("groupkey: aes cipher: %w", err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("groupkey: aes-gcm: %w", err)
		}
		return aead, nil
	case config.GroupKeyAlgorithmChaCha20Poly1305:
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, fmt.Errorf("groupkey: chacha20poly1305: %w", err)
		}
		return aead, nil
	default:
		return nil, fmt.Errorf("groupkey: unsupported algorithm %q", algo)
	}
}
