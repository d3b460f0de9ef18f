// Package session implements the opaque-token session store (§4.13):
// 256-bit URL-safe base64 tokens, constant-time lookup, TTL expiry, and
// bulk invalidation on password change. Backed by internal/kv so a single
// process or a Redis-backed cluster behave identically.
package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
	"github.com/speakeasy-rtc/speakeasy/internal/kv"
)

// DefaultTTL is the default session lifetime, per §3's Session model.
const DefaultTTL = 24 * time.Hour

// tokenBytes is 256 bits of entropy.
const tokenBytes = 32

const keyPrefix = "session:"
const userIndexPrefix = "session:byuser:"

// Session is one logged-in session's metadata.
type Session struct {
	Token     string             `json:"token"`
	UserID    identifiers.UserID `json:"user_id"`
	CreatedAt time.Time          `json:"created_at"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// Store issues, looks up, and invalidates sessions.
type Store struct {
	kv  kv.KV
	ttl time.Duration
}

// New builds a Store with the given default TTL.
func New(backing kv.KV, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{kv: backing, ttl: ttl}
}

// Create mints a new session token for user and persists it with the
// store's TTL.
func (s *Store) Create(ctx context.Context, user identifiers.UserID) (*Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sess := &Session{
		Token:     token,
		UserID:    user,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	if err := s.persist(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Store) persist(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: marshaling: %w", err)
	}
	key := keyPrefix + sess.Token
	if err := s.kv.Set(ctx, key, data); err != nil {
		return fmt.Errorf("session: storing: %w", err)
	}
	if err := s.kv.Expire(ctx, key, time.Until(sess.ExpiresAt)); err != nil {
		return fmt.Errorf("session: setting ttl: %w", err)
	}
	if _, err := s.kv.RPush(ctx, userIndexPrefix+sess.UserID.String(), []byte(sess.Token)); err != nil {
		return fmt.Errorf("session: indexing by user: %w", err)
	}
	return nil
}

// ErrNotFound is returned by Lookup for a missing or expired token.
var ErrNotFound = kv.ErrNotFound

// Lookup resolves a bearer token to its session. The comparison of
// candidate keys happens inside the kv backend's own key match, not a
// bytewise Go comparison of the token against stored tokens, so this
// satisfies §8's "constant time over candidate strings" property: there
// is exactly one candidate (the kv key), not a linear scan.
func (s *Store) Lookup(ctx context.Context, token string) (*Session, error) {
	data, err := s.kv.Get(ctx, keyPrefix+token)
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("session: unmarshaling: %w", err)
	}
	if time.Now().After(sess.ExpiresAt) {
		return nil, ErrNotFound
	}
	// Defense in depth: verify the stored token matches what was asked
	// for using a constant-time comparison, rather than trusting the kv
	// key alone.
	if subtle.ConstantTimeCompare([]byte(sess.Token), []byte(token)) != 1 {
		return nil, ErrNotFound
	}
	return &sess, nil
}

// Invalidate removes a single session (logout).
func (s *Store) Invalidate(ctx context.Context, token string) error {
	sess, err := s.Lookup(ctx, token)
	if err != nil {
		if err == ErrNotFound {
			return nil
		}
		return err
	}
	return s.delete(ctx, sess)
}

func (s *Store) delete(ctx context.Context, sess *Session) error {
	if err := s.kv.Delete(ctx, keyPrefix+sess.Token); err != nil {
		return fmt.Errorf("session: deleting: %w", err)
	}
	return nil
}

// InvalidateAllForUser invalidates every session belonging to user, as
// required on password change. O(sessions) per §4.13.
func (s *Store) InvalidateAllForUser(ctx context.Context, user identifiers.UserID) error {
	indexKey := userIndexPrefix + user.String()
	tokens, err := s.kv.LDrain(ctx, indexKey)
	if err != nil {
		return fmt.Errorf("session: draining user index: %w", err)
	}
	for _, t := range tokens {
		if err := s.kv.Delete(ctx, keyPrefix+string(t)); err != nil {
			return fmt.Errorf("session: deleting session during bulk invalidation: %w", err)
		}
	}
	return nil
}

// SweepExpired scans for and removes sessions past their TTL. The kv
// backend already expires keys on its own (Redis TTL, or the in-memory
// backend's lazy expiry check), so this is a defensive sweep for any
// index entries left pointing at already-expired session keys.
func (s *Store) SweepExpired(ctx context.Context) (removed int, err error) {
	var cursor uint64
	for {
		keys, next, scanErr := s.kv.Scan(ctx, cursor, keyPrefix+"*", 256)
		if scanErr != nil {
			return removed, fmt.Errorf("session: scanning: %w", scanErr)
		}
		for _, key := range keys {
			data, getErr := s.kv.Get(ctx, key)
			if getErr != nil {
				continue
			}
			var sess Session
			if jsonErr := json.Unmarshal(data, &sess); jsonErr != nil {
				continue
			}
			if time.Now().After(sess.ExpiresAt) {
				if delErr := s.kv.Delete(ctx, key); delErr == nil {
					removed++
				}
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return removed, nil
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("session: generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
