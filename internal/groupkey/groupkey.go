// Package groupkey implements the per-channel AEAD group-key manager
// (§4.5): epoch-versioned keys, rotation on membership change, and
// X25519+HKDF key wrapping for delivering the raw key to each recipient
// over the control plane.
package groupkey

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/speakeasy-rtc/speakeasy/internal/config"
	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
)

// RetainedEpochs is how many prior epochs (besides current) are kept
// around for the decryption grace window, per §3's Group-key invariant.
const RetainedEpochs = 2

// maxSequence bounds how many packets one epoch's key may encrypt before
// rotation is forced, per §4.5 invariant (i): never encrypt more than
// 2^32-1 packets under one key.
const maxSequence = 1<<32 - 1

var (
	// ErrNoCurrentKey is returned when a channel has never had create()
	// called on it.
	ErrNoCurrentKey = errors.New("groupkey: channel has no current key")
	// ErrEpochNotFound is returned by a lookup for an epoch outside the
	// current-plus-retained window.
	ErrEpochNotFound = errors.New("groupkey: epoch not found or expired")
	// ErrSequenceExhausted signals the caller must rotate before
	// encrypting any more packets under this key.
	ErrSequenceExhausted = errors.New("groupkey: sequence space exhausted, rotation required")
)

// Key is one epoch's raw group-key material.
type Key struct {
	Channel   identifiers.ChannelID
	Epoch     uint32
	KeyID     uint64
	Algorithm config.GroupKeyAlgorithm
	Secret    [32]byte
}

// Zeroise overwrites the raw key bytes, per §5's "cryptographic key
// material is zeroised on drop."
func (k *Key) Zeroise() {
	for i := range k.Secret {
		k.Secret[i] = 0
	}
}

type channelState struct {
	mu      sync.Mutex
	current *Key
	history []*Key // most recent first, length <= RetainedEpochs
	nextSeq uint32
	nextKID uint64
	paused  bool // true between a membership-triggering rotation request and its completion
}

// Manager owns per-channel key state for every active channel.
type Manager struct {
	mu       sync.Mutex
	channels map[identifiers.ChannelID]*channelState
	algo     config.GroupKeyAlgorithm
}

// New builds a Manager that mints keys using the configured algorithm.
func New(algo config.GroupKeyAlgorithm) *Manager {
	return &Manager{
		channels: make(map[identifiers.ChannelID]*channelState),
		algo:     algo,
	}
}

func (m *Manager) state(ch identifiers.ChannelID) *channelState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.channels[ch]
	if !ok {
		st = &channelState{}
		m.channels[ch] = st
	}
	return st
}

// Create mints the epoch-0 key for a channel. Safe to call once per
// channel; subsequent calls re-key from epoch 0 (used when a channel is
// torn down and later recreated with the same ID is not expected, but
// tests may want a clean slate).
func (m *Manager) Create(ch identifiers.ChannelID) (*Key, error) {
	st := m.state(ch)
	st.mu.Lock()
	defer st.mu.Unlock()

	key, err := m.mint(ch, 0, st.nextKID)
	if err != nil {
		return nil, err
	}
	st.nextKID++
	st.current = key
	st.history = nil
	st.nextSeq = 0
	st.paused = false
	return key, nil
}

// Rotate bumps the channel to a new epoch, as required on any membership
// change (join, leave, kick, ban) or scheduled max-lifetime rotation.
func (m *Manager) Rotate(ch identifiers.ChannelID) (*Key, error) {
	st := m.state(ch)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.current == nil {
		return nil, ErrNoCurrentKey
	}

	newEpoch := st.current.Epoch + 1
	key, err := m.mint(ch, newEpoch, st.nextKID)
	if err != nil {
		return nil, err
	}
	st.nextKID++

	st.history = append([]*Key{st.current}, st.history...)
	if len(st.history) > RetainedEpochs {
		stale := st.history[RetainedEpochs:]
		for _, k := range stale {
			k.Zeroise()
		}
		st.history = st.history[:RetainedEpochs]
	}
	st.current = key
	st.nextSeq = 0
	st.paused = false
	return key, nil
}

func (m *Manager) mint(ch identifiers.ChannelID, epoch uint32, keyID uint64) (*Key, error) {
	var secret [32]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return nil, fmt.Errorf("groupkey: minting key for channel %s: %w", ch, err)
	}
	return &Key{
		Channel:   ch,
		Epoch:     epoch,
		KeyID:     keyID,
		Algorithm: m.algo,
		Secret:    secret,
	}, nil
}

// Current returns the channel's current epoch key. It fails if the
// channel is paused awaiting a post-membership-change rotation (§4.5:
// "until then, outbound voice for that channel is paused").
func (m *Manager) Current(ch identifiers.ChannelID) (*Key, error) {
	st := m.state(ch)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.current == nil {
		return nil, ErrNoCurrentKey
	}
	if st.paused {
		return nil, ErrNoCurrentKey
	}
	return st.current, nil
}

// Pause marks a channel as awaiting rotation; Current refuses to hand out
// a key for outbound encryption until the next Rotate clears the flag.
func (m *Manager) Pause(ch identifiers.ChannelID) {
	st := m.state(ch)
	st.mu.Lock()
	st.paused = true
	st.mu.Unlock()
}

// ForEpoch returns the key for a specific epoch if it is the current
// epoch or within the retained decryption-grace window.
func (m *Manager) ForEpoch(ch identifiers.ChannelID, epoch uint32) (*Key, error) {
	st := m.state(ch)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.current != nil && st.current.Epoch == epoch {
		return st.current, nil
	}
	for _, k := range st.history {
		if k.Epoch == epoch {
			return k, nil
		}
	}
	return nil, ErrEpochNotFound
}

// NextSequence returns the next monotonic sequence number for the
// channel's current epoch and advances the counter. It returns
// ErrSequenceExhausted when the caller must rotate before sending more.
func (m *Manager) NextSequence(ch identifiers.ChannelID) (uint32, error) {
	st := m.state(ch)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.nextSeq >= maxSequence {
		return 0, ErrSequenceExhausted
	}
	seq := st.nextSeq
	st.nextSeq++
	return seq, nil
}

// Release zeroises and forgets all key material for a channel (teardown).
func (m *Manager) Release(ch identifiers.ChannelID) {
	m.mu.Lock()
	st, ok := m.channels[ch]
	if ok {
		delete(m.channels, ch)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.current != nil {
		st.current.Zeroise()
	}
	for _, k := range st.history {
		k.Zeroise()
	}
}

// AEAD constructs the cipher.AEAD for k's algorithm.
func AEAD(k *Key) (cipher.AEAD, error) {
	return newAEAD(k.Algorithm, k.Secret[:])
}
