package kv

import (
	"context"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

type memValue struct {
	list [][]byte
	ttl  time.Time // zero means no expiry
}

func (v memValue) expired() bool {
	return !v.ttl.IsZero() && v.ttl.Before(time.Now())
}

type inMemoryKV struct {
	data *xsync.Map[string, memValue]
}

func makeInMemoryKV() KV {
	return &inMemoryKV{data: xsync.NewMap[string, memValue]()}
}

func (m *inMemoryKV) Has(_ context.Context, key string) (bool, error) {
	v, ok := m.data.Load(key)
	if !ok {
		return false, nil
	}
	if v.expired() {
		m.data.Delete(key)
		return false, nil
	}
	return true, nil
}

func (m *inMemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.data.Load(key)
	if !ok || v.expired() || len(v.list) == 0 {
		if v.expired() {
			m.data.Delete(key)
		}
		return nil, ErrNotFound
	}
	return v.list[0], nil
}

func (m *inMemoryKV) Set(_ context.Context, key string, value []byte) error {
	m.data.Store(key, memValue{list: [][]byte{value}})
	return nil
}

func (m *inMemoryKV) Delete(_ context.Context, key string) error {
	m.data.Delete(key)
	return nil
}

func (m *inMemoryKV) Expire(_ context.Context, key string, ttl time.Duration) error {
	v, ok := m.data.Load(key)
	if !ok {
		return ErrNotFound
	}
	if ttl <= 0 {
		m.data.Delete(key)
		return nil
	}
	v.ttl = time.Now().Add(ttl)
	m.data.Store(key, v)
	return nil
}

func (m *inMemoryKV) Scan(_ context.Context, _ uint64, match string, count int64) ([]string, uint64, error) {
	keys := make([]string, 0)
	m.data.Range(func(key string, v memValue) bool {
		if v.expired() {
			m.data.Delete(key)
			return true
		}
		if match == "" || matchGlob(match, key) {
			keys = append(keys, key)
		}
		return count <= 0 || int64(len(keys)) < count
	})
	return keys, 0, nil
}

func (m *inMemoryKV) RPush(_ context.Context, key string, value []byte) (int64, error) {
	v, _ := m.data.Load(key)
	v.list = append(v.list, value)
	m.data.Store(key, v)
	return int64(len(v.list)), nil
}

func (m *inMemoryKV) LDrain(_ context.Context, key string) ([][]byte, error) {
	v, ok := m.data.LoadAndDelete(key)
	if !ok {
		return nil, nil
	}
	return v.list, nil
}

func (m *inMemoryKV) Close() error { return nil }

// matchGlob supports the single "*" wildcard used by our own Scan callers,
// which is all that Redis SCAN MATCH patterns in this codebase ever use.
func matchGlob(pattern, key string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == key
	}
	parts := strings.Split(pattern, "*")
	if !strings.HasPrefix(key, parts[0]) {
		return false
	}
	rest := key[len(parts[0]):]
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		idx := strings.Index(rest, p)
		if idx < 0 {
			return false
		}
		rest = rest[idx+len(p):]
	}
	return true
}
