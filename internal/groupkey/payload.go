package groupkey

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// nonceSize is the AEAD nonce length used throughout: epoch(4) || seq(4) ||
// random(4), per §3.
const nonceSize = 12

// aadSize is len(ssrc(4) || epoch(4)), per §3's EncryptedAudioPayload AAD.
const aadSize = 8

// BuildNonce constructs the 12-byte nonce for one packet: epoch || seq ||
// a fresh 4-byte random tail. Per §3's invariant, (key_id, nonce) must
// never repeat; the monotonic (epoch, seq) pair from the manager already
// guarantees that without the random tail, which exists purely as
// defense in depth against a seq-counter bug.
func BuildNonce(epoch, seq uint32) ([nonceSize]byte, error) {
	var nonce [nonceSize]byte
	binary.BigEndian.PutUint32(nonce[0:4], epoch)
	binary.BigEndian.PutUint32(nonce[4:8], seq)
	if _, err := rand.Read(nonce[8:12]); err != nil {
		return nonce, fmt.Errorf("groupkey: building nonce: %w", err)
	}
	return nonce, nil
}

// BuildAAD constructs the associated data for one packet: ssrc || epoch.
func BuildAAD(ssrc, epoch uint32) [aadSize]byte {
	var aad [aadSize]byte
	binary.BigEndian.PutUint32(aad[0:4], ssrc)
	binary.BigEndian.PutUint32(aad[4:8], epoch)
	return aad
}

// Seal encrypts plaintext under k, returning the wire-form payload:
// nonce(12) || aad_len(u16 BE) || aad || ciphertext||tag, per §3/§6.
func Seal(k *Key, seq uint32, ssrc uint32, plaintext []byte) ([]byte, error) {
	aead, err := AEAD(k)
	if err != nil {
		return nil, err
	}
	nonce, err := BuildNonce(k.Epoch, seq)
	if err != nil {
		return nil, err
	}
	aad := BuildAAD(ssrc, k.Epoch)

	out := make([]byte, 0, nonceSize+2+aadSize+len(plaintext)+aead.Overhead())
	out = append(out, nonce[:]...)
	out = binary.BigEndian.AppendUint16(out, uint16(aadSize))
	out = append(out, aad[:]...)
	out = aead.Seal(out, nonce[:], plaintext, aad[:])
	return out, nil
}

// Open parses and decrypts a wire-form payload built by Seal, given the
// key matching the epoch encoded in the payload's AAD. The caller is
// responsible for resolving that epoch to a Key via Manager.ForEpoch.
func Open(k *Key, payload []byte) (plaintext []byte, ssrc uint32, err error) {
	if len(payload) < nonceSize+2 {
		return nil, 0, fmt.Errorf("groupkey: payload too short")
	}
	nonce := payload[:nonceSize]
	aadLen := binary.BigEndian.Uint16(payload[nonceSize : nonceSize+2])
	rest := payload[nonceSize+2:]
	if int(aadLen) > len(rest) {
		return nil, 0, fmt.Errorf("groupkey: aad length exceeds payload")
	}
	aad := rest[:aadLen]
	ciphertext := rest[aadLen:]

	if len(aad) < 4 {
		return nil, 0, fmt.Errorf("groupkey: aad too short to contain ssrc")
	}
	ssrc = binary.BigEndian.Uint32(aad[0:4])

	aead, aeadErr := AEAD(k)
	if aeadErr != nil {
		return nil, 0, aeadErr
	}
	plaintext, err = aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ssrc, fmt.Errorf("groupkey: decrypt: %w", err)
	}
	return plaintext, ssrc, nil
}

// ParseEpoch extracts the epoch field from a wire-form payload's AAD
// without decrypting, so the router can resolve which Key to try.
func ParseEpoch(payload []byte) (epoch uint32, ok bool) {
	if len(payload) < nonceSize+2 {
		return 0, false
	}
	aadLen := binary.BigEndian.Uint16(payload[nonceSize : nonceSize+2])
	rest := payload[nonceSize+2:]
	if int(aadLen) < 8 || int(aadLen) > len(rest) {
		return 0, false
	}
	return binary.BigEndian.Uint32(rest[4:8]), true
}

// ParseSSRC extracts the ssrc field from a wire-form payload's AAD without
// decrypting, so the voice engine can route a packet to its claimed
// sender's routing state before it has a key to verify anything.
func ParseSSRC(payload []byte) (ssrc uint32, ok bool) {
	if len(payload) < nonceSize+2 {
		return 0, false
	}
	aadLen := binary.BigEndian.Uint16(payload[nonceSize : nonceSize+2])
	rest := payload[nonceSize+2:]
	if int(aadLen) < 8 || int(aadLen) > len(rest) {
		return 0, false
	}
	return binary.BigEndian.Uint32(rest[0:4]), true
}

// ParseSeq extracts the seq field embedded in a wire-form payload's nonce.
// It does not require a key: the nonce is sent in the clear so the
// receiver can reconstruct it for AEAD decryption.
func ParseSeq(payload []byte) (seq uint32, ok bool) {
	if len(payload) < nonceSize {
		return 0, false
	}
	return binary.BigEndian.Uint32(payload[4:8]), true
}
