// Package presence tracks who is online, which channel (if any) each
// connected user currently occupies, and the handle used to push queued
// frames to their connection. It is the server's single source of truth
// for "who is here right now."
package presence

import (
	"net"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
)

// SendQueue is the capability a connection's writer goroutine exposes so
// other components can push outbound frames without touching the socket
// directly. Implementations are expected to be non-blocking.
type SendQueue interface {
	// Enqueue places a frame on the connection's outbound queue. It
	// returns false if the queue was full and the frame was dropped.
	Enqueue(frame []byte) bool
}

// Entry is one online user's presence record.
type Entry struct {
	User      identifiers.UserID
	Channel   identifiers.ChannelID // zero value (Nil) means "no channel"
	Queue     SendQueue
	PeerAddr  net.Addr
	JoinedAt  time.Time
}

// Map is a concurrent user_id -> Entry index plus a channel_id -> member
// set inverted index. Per §4.2, a user belongs to at most one channel at
// any instant; readers never block writers of unrelated entries.
type Map struct {
	users    *xsync.Map[identifiers.UserID, *Entry]
	channels *xsync.Map[identifiers.ChannelID, *xsync.Map[identifiers.UserID, struct{}]]
}

// New builds an empty presence map.
func New() *Map {
	return &Map{
		users:    xsync.NewMap[identifiers.UserID, *Entry](),
		channels: xsync.NewMap[identifiers.ChannelID, *xsync.Map[identifiers.UserID, struct{}]](),
	}
}

// Insert registers a newly-authenticated user with no channel membership.
func (m *Map) Insert(user identifiers.UserID, queue SendQueue, peerAddr net.Addr) {
	m.users.Store(user, &Entry{
		User:     user,
		Channel:  identifiers.ChannelID{},
		Queue:    queue,
		PeerAddr: peerAddr,
		JoinedAt: time.Now(),
	})
}

// Remove drops a user from presence entirely, including any channel
// membership it held.
func (m *Map) Remove(user identifiers.UserID) {
	entry, ok := m.users.LoadAndDelete(user)
	if !ok {
		return
	}
	if !entry.Channel.IsNil() {
		m.removeFromChannel(entry.Channel, user)
	}
}

// SetChannel moves a user into ch (or out of any channel if ch is Nil),
// maintaining the invariant that a user is a member of at most one
// channel's set at any instant.
func (m *Map) SetChannel(user identifiers.UserID, ch identifiers.ChannelID) bool {
	entry, ok := m.users.Load(user)
	if !ok {
		return false
	}
	if !entry.Channel.IsNil() {
		m.removeFromChannel(entry.Channel, user)
	}
	updated := *entry
	updated.Channel = ch
	m.users.Store(user, &updated)
	if !ch.IsNil() {
		members, _ := m.channels.LoadOrCompute(ch, func() (*xsync.Map[identifiers.UserID, struct{}], bool) {
			return xsync.NewMap[identifiers.UserID, struct{}](), false
		})
		members.Store(user, struct{}{})
	}
	return true
}

func (m *Map) removeFromChannel(ch identifiers.ChannelID, user identifiers.UserID) {
	members, ok := m.channels.Load(ch)
	if !ok {
		return
	}
	members.Delete(user)
}

// Members returns the set of users currently in ch.
func (m *Map) Members(ch identifiers.ChannelID) []identifiers.UserID {
	members, ok := m.channels.Load(ch)
	if !ok {
		return nil
	}
	out := make([]identifiers.UserID, 0)
	members.Range(func(u identifiers.UserID, _ struct{}) bool {
		out = append(out, u)
		return true
	})
	return out
}

// Get returns a snapshot of a user's presence entry.
func (m *Map) Get(user identifiers.UserID) (Entry, bool) {
	entry, ok := m.users.Load(user)
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// OnlineCount returns the number of currently-online users.
func (m *Map) OnlineCount() int {
	return m.users.Size()
}

// IsOnline reports whether user currently has a presence entry.
func (m *Map) IsOnline(user identifiers.UserID) bool {
	_, ok := m.users.Load(user)
	return ok
}
