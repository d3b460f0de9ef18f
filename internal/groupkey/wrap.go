package groupkey

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// hkdfInfo distinguishes this key-wrapping use of HKDF from any other
// derivation in the codebase.
const hkdfInfo = "speakeasy-groupkey-wrap-v1"

// WrapForRecipient delivers key.Secret to one recipient via X25519 ECDH
// between a fresh ephemeral keypair and the recipient's long-term public
// key, HKDF-SHA-256 deriving a per-recipient KEK, and AEAD-wrapping the
// raw 32-byte group key under it. Returns the ephemeral public key and
// the wrapped ciphertext; both travel together in a "key update" control
// event per §4.5.
func WrapForRecipient(recipientPub [32]byte, key *Key) (ephemeralPub [32]byte, wrapped []byte, err error) {
	var ephemeralPriv [32]byte
	if _, err = io.ReadFull(rand.Reader, ephemeralPriv[:]); err != nil {
		return ephemeralPub, nil, fmt.Errorf("groupkey: generating ephemeral key: %w", err)
	}

	ephemeralPubSlice, err := curve25519.X25519(ephemeralPriv[:], curve25519.Basepoint)
	if err != nil {
		return ephemeralPub, nil, fmt.Errorf("groupkey: deriving ephemeral public key: %w", err)
	}
	copy(ephemeralPub[:], ephemeralPubSlice)

	shared, err := curve25519.X25519(ephemeralPriv[:], recipientPub[:])
	if err != nil {
		return ephemeralPub, nil, fmt.Errorf("groupkey: ecdh: %w", err)
	}

	kek, err := deriveKEK(shared, ephemeralPub[:], recipientPub[:])
	if err != nil {
		return ephemeralPub, nil, err
	}

	aead, err := chacha20poly1305.New(kek)
	if err != nil {
		return ephemeralPub, nil, fmt.Errorf("groupkey: wrap cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSize]byte // zero nonce is safe: key is single-use, derived fresh per wrap
	wrapped = aead.Seal(nil, nonce[:], key.Secret[:], nil)
	return ephemeralPub, wrapped, nil
}

// UnwrapFromSender reverses WrapForRecipient using the recipient's
// long-term private key and the sender's ephemeral public key.
func UnwrapFromSender(recipientPriv [32]byte, recipientPub [32]byte, ephemeralPub [32]byte, wrapped []byte) (secret [32]byte, err error) {
	shared, err := curve25519.X25519(recipientPriv[:], ephemeralPub[:])
	if err != nil {
		return secret, fmt.Errorf("groupkey: ecdh: %w", err)
	}

	kek, err := deriveKEK(shared, ephemeralPub[:], recipientPub[:])
	if err != nil {
		return secret, err
	}

	aead, err := chacha20poly1305.New(kek)
	if err != nil {
		return secret, fmt.Errorf("groupkey: unwrap cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSize]byte
	plain, err := aead.Open(nil, nonce[:], wrapped, nil)
	if err != nil {
		return secret, fmt.Errorf("groupkey: unwrap: %w", err)
	}
	if len(plain) != len(secret) {
		return secret, fmt.Errorf("groupkey: unwrapped key has wrong length %d", len(plain))
	}
	copy(secret[:], plain)
	return secret, nil
}

func deriveKEK(shared, ephemeralPub, recipientPub []byte) ([]byte, error) {
	salt := append(append([]byte{}, ephemeralPub...), recipientPub...)
	reader := hkdf.New(sha256.New, shared, salt, []byte(hkdfInfo))
	kek := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(reader, kek); err != nil {
		return nil, fmt.Errorf("groupkey: hkdf expand: %w", err)
	}
	return kek, nil
}
