// Package permission resolves layered permission checks (§4.3): user-channel
// overrides beat user-server overrides beat channel-group assignment beat
// server-group priority order beat the schema default. Results are cached in
// a bounded, TTL-bounded LRU keyed by a structural hash of the query.
package permission

import (
	"time"

	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
)

// Decision is the outcome of resolving one permission query.
type Decision int

const (
	Deny Decision = iota
	Allow
	// Limit carries an integer limit value (IntLimit permissions, e.g.
	// max simultaneous channels a user may create).
	Limit
)

// Result is what Resolve returns: a Decision plus, for Limit, its value.
type Result struct {
	Decision Decision
	Limit    int64
}

// Value is a raw permission grant as stored against a subject.
type Value struct {
	Kind     Decision // Deny, Allow, or Limit
	IntLimit int64
	// Skip means "this layer has no opinion, fall through to the next."
	Skip bool
}

// Subject is either a user or a group, distinguished by which field is set.
type Subject struct {
	User  identifiers.UserID
	Group GroupID
}

// GroupID identifies a server-group or channel-group row.
type GroupID uint64

// Store is the persistence capability the cache resolves against on a
// miss. Implementations live in internal/db.
type Store interface {
	// UserChannelPermission returns the user's direct override for perm
	// in ch, if any.
	UserChannelPermission(user identifiers.UserID, ch identifiers.ChannelID, perm string) (Value, bool, error)
	// UserServerPermission returns the user's direct server-wide override.
	UserServerPermission(user identifiers.UserID, perm string) (Value, bool, error)
	// ChannelGroup returns the channel-group assigned to user in ch, if any.
	ChannelGroup(user identifiers.UserID, ch identifiers.ChannelID) (GroupID, bool, error)
	// ChannelGroupPermission returns a channel-group's value for perm.
	ChannelGroupPermission(group GroupID, perm string) (Value, bool, error)
	// ServerGroupsForUser returns the user's server-groups, ordered by
	// priority descending.
	ServerGroupsForUser(user identifiers.UserID) ([]GroupID, error)
	// ServerGroupPermission returns a server-group's value for perm.
	ServerGroupPermission(group GroupID, perm string) (Value, bool, error)
	// DefaultGrant reports whether perm's schema declares a default grant.
	DefaultGrant(perm string) bool
}

// Query is one (user, channel, perm) lookup.
type Query struct {
	User    identifiers.UserID
	Channel identifiers.ChannelID
	Perm    string
}

// Resolver resolves permission queries, caching results per §4.3.
type Resolver struct {
	store Store
	cache *cache
}

// New builds a Resolver backed by store, with a bounded cache of the given
// capacity and per-entry TTL.
func New(store Store, capacity int, ttl time.Duration) *Resolver {
	return &Resolver{store: store, cache: newCache(capacity, ttl)}
}

// Can resolves q, consulting the cache before the store.
func (r *Resolver) Can(q Query) (Result, error) {
	key := cacheKeyOf(q)
	if res, ok := r.cache.get(key); ok {
		return res, nil
	}

	res, err := r.resolveUncached(q)
	if err != nil {
		return Result{}, err
	}
	r.cache.put(q, res)
	return res, nil
}

// resolveUncached implements the five-layer resolution order of §4.3,
// most specific wins.
func (r *Resolver) resolveUncached(q Query) (Result, error) {
	if v, ok, err := r.store.UserChannelPermission(q.User, q.Channel, q.Perm); err != nil {
		return Result{}, err
	} else if ok && !v.Skip {
		return toResult(v), nil
	}

	if v, ok, err := r.store.UserServerPermission(q.User, q.Perm); err != nil {
		return Result{}, err
	} else if ok && !v.Skip {
		return toResult(v), nil
	}

	if !q.Channel.IsNil() {
		if group, ok, err := r.store.ChannelGroup(q.User, q.Channel); err != nil {
			return Result{}, err
		} else if ok {
			if v, ok, err := r.store.ChannelGroupPermission(group, q.Perm); err != nil {
				return Result{}, err
			} else if ok && !v.Skip {
				return toResult(v), nil
			}
		}
	}

	groups, err := r.store.ServerGroupsForUser(q.User)
	if err != nil {
		return Result{}, err
	}
	for _, g := range groups {
		v, ok, err := r.store.ServerGroupPermission(g, q.Perm)
		if err != nil {
			return Result{}, err
		}
		if ok && !v.Skip {
			return toResult(v), nil
		}
	}

	if r.store.DefaultGrant(q.Perm) {
		return Result{Decision: Allow}, nil
	}
	return Result{Decision: Deny}, nil
}

func toResult(v Value) Result {
	return Result{Decision: v.Kind, Limit: v.IntLimit}
}

// InvalidateSubject drops every cached entry touching user, matching the
// "invalidated on any permission write or group-membership change" rule.
func (r *Resolver) InvalidateSubject(user identifiers.UserID) {
	r.cache.invalidateSubject(user)
}

// InvalidateChannel drops every cached entry touching ch (e.g. a
// channel-group permission write affects every member).
func (r *Resolver) InvalidateChannel(ch identifiers.ChannelID) {
	r.cache.invalidateChannel(ch)
}
