// Package ratelimit implements a fixed-window request limiter for the
// optional HTTP control surface (§6 External Interfaces). It is a
// KV-backed gin-rate-limit Store: a plain struct method, not a
// middleware itself, composed into the HTTP stack by internal/server.
package ratelimit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"

	"github.com/speakeasy-rtc/speakeasy/internal/kv"
)

// Store is a ratelimit.Store backed by internal/kv instead of a SQL
// table: one fixed-window counter per key, persisted as a small JSON
// record so either a Redis-backed or in-memory KV can serve it.
type Store struct {
	kv    kv.KV
	rate  time.Duration
	limit uint
}

// Options configures a Store.
type Options struct {
	KV    kv.KV
	Rate  time.Duration
	Limit uint
}

// New builds a Store.
func New(options *Options) *Store {
	return &Store{kv: options.KV, rate: options.Rate, limit: options.Limit}
}

type window struct {
	Hits      int64     `json:"hits"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Store) keyFor(key string) string {
	return "ratelimit:" + key
}

// Limit implements ratelimit.Store.
func (s *Store) Limit(key string, c *gin.Context) (ret ratelimit.Info) {
	ret.Limit = s.limit

	ctx := c.Request.Context()
	w := s.load(ctx, key)

	if w.Timestamp.Add(s.rate).Before(time.Now()) {
		w.Hits = 0
	}

	ret.ResetTime = time.Now().Add(s.rate - time.Since(w.Timestamp))

	if w.Hits >= int64(s.limit) {
		ret.RateLimited = true
		ret.RemainingHits = 0
	} else {
		w.Timestamp = time.Now()
		w.Hits++
		ret.RemainingHits = s.limit - uint(w.Hits)
	}

	s.save(ctx, key, w)
	return
}

func (s *Store) load(ctx context.Context, key string) window {
	raw, err := s.kv.Get(ctx, s.keyFor(key))
	if err != nil {
		if err != kv.ErrNotFound {
			slog.Error("ratelimit: reading window", "key", key, "error", err)
		}
		return window{Timestamp: time.Now()}
	}
	var w window
	if err := json.Unmarshal(raw, &w); err != nil {
		slog.Error("ratelimit: decoding window", "key", key, "error", err)
		return window{Timestamp: time.Now()}
	}
	return w
}

func (s *Store) save(ctx context.Context, key string, w window) {
	raw, err := json.Marshal(w)
	if err != nil {
		slog.Error("ratelimit: encoding window", "key", key, "error", err)
		return
	}
	if err := s.kv.Set(ctx, s.keyFor(key), raw); err != nil {
		slog.Error("ratelimit: writing window", "key", key, "error", err)
		return
	}
	if err := s.kv.Expire(ctx, s.keyFor(key), s.rate*2); err != nil {
		slog.Error("ratelimit: setting window expiry", "key", key, "error", err)
	}
}
