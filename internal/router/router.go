// Package router maintains the two inverted indices the voice engine uses
// to fan a sender's packet out to every other member of its channel (§4.6):
// user_id -> (channel_id, ssrc, send_queue) and channel_id -> set<user_id>.
package router

import (
	"net"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
)

// SendQueue is the bounded per-recipient outbound queue for voice packets.
type SendQueue interface {
	// Enqueue pushes a ciphertext datagram to this recipient. Returns
	// false if the oldest undelivered packet had to be dropped to make
	// room (caller should count this as an overflow).
	Enqueue(packet []byte) bool
}

// Member is one user's voice-routing state within their current channel.
type Member struct {
	User    identifiers.UserID
	Channel identifiers.ChannelID
	SSRC    uint32
	UDPAddr *net.UDPAddr
	Queue   SendQueue
}

// Router is the channel router (C6). Lookups are O(1) amortised.
type Router struct {
	byUser    *xsync.Map[identifiers.UserID, *Member]
	bySSRC    *xsync.Map[uint32, identifiers.UserID]
	byChannel *xsync.Map[identifiers.ChannelID, *xsync.Map[identifiers.UserID, struct{}]]
}

// New builds an empty router.
func New() *Router {
	return &Router{
		byUser:    xsync.NewMap[identifiers.UserID, *Member](),
		bySSRC:    xsync.NewMap[uint32, identifiers.UserID](),
		byChannel: xsync.NewMap[identifiers.ChannelID, *xsync.Map[identifiers.UserID, struct{}]](),
	}
}

// Join registers user as a member of ch with the given voice routing
// state, adding to both indices. If user was already routed to a
// different channel, it is first removed from it.
func (r *Router) Join(ch identifiers.ChannelID, m Member) {
	if existing, ok := r.byUser.Load(m.User); ok && existing.Channel != ch {
		r.leaveChannel(existing.Channel, m.User)
	}

	member := m
	member.Channel = ch
	r.byUser.Store(m.User, &member)
	r.bySSRC.Store(m.SSRC, m.User)

	members, _ := r.byChannel.LoadOrCompute(ch, func() (*xsync.Map[identifiers.UserID, struct{}], bool) {
		return xsync.NewMap[identifiers.UserID, struct{}](), false
	})
	members.Store(m.User, struct{}{})
}

// Leave removes user from routing entirely.
func (r *Router) Leave(user identifiers.UserID) {
	m, ok := r.byUser.LoadAndDelete(user)
	if !ok {
		return
	}
	r.bySSRC.Delete(m.SSRC)
	r.leaveChannel(m.Channel, user)
}

func (r *Router) leaveChannel(ch identifiers.ChannelID, user identifiers.UserID) {
	members, ok := r.byChannel.Load(ch)
	if !ok {
		return
	}
	members.Delete(user)
}

// Lookup resolves an SSRC to its owning member, for UDP ingress.
func (r *Router) Lookup(ssrc uint32) (Member, bool) {
	user, ok := r.bySSRC.Load(ssrc)
	if !ok {
		return Member{}, false
	}
	m, ok := r.byUser.Load(user)
	if !ok {
		return Member{}, false
	}
	return *m, true
}

// BindAddr records the UDP source address the voice engine first saw a
// datagram claiming this SSRC arrive from (§4.9 cross-plane seam: the
// server learns the client's real endpoint from its first authenticated
// datagram, not from VoiceInit). A no-op if the SSRC is unknown or
// already bound.
func (r *Router) BindAddr(ssrc uint32, addr *net.UDPAddr) {
	user, ok := r.bySSRC.Load(ssrc)
	if !ok {
		return
	}
	m, ok := r.byUser.Load(user)
	if !ok || m.UDPAddr != nil {
		return
	}
	bound := *m
	bound.UDPAddr = addr
	r.byUser.Store(user, &bound)
}

// MemberOf resolves a user's current voice-routing state, for the egress
// path to re-check a recipient's bound UDP address at write time.
func (r *Router) MemberOf(user identifiers.UserID) (Member, bool) {
	m, ok := r.byUser.Load(user)
	if !ok {
		return Member{}, false
	}
	return *m, true
}

// FanoutTargets returns every co-member's Member except the sender's own.
// Order is unspecified.
func (r *Router) FanoutTargets(sender identifiers.UserID) []Member {
	m, ok := r.byUser.Load(sender)
	if !ok {
		return nil
	}
	members, ok := r.byChannel.Load(m.Channel)
	if !ok {
		return nil
	}

	out := make([]Member, 0)
	members.Range(func(user identifiers.UserID, _ struct{}) bool {
		if user == sender {
			return true
		}
		if target, ok := r.byUser.Load(user); ok {
			out = append(out, *target)
		}
		return true
	})
	return out
}

// ChannelMembers returns the member set of ch.
func (r *Router) ChannelMembers(ch identifiers.ChannelID) []identifiers.UserID {
	members, ok := r.byChannel.Load(ch)
	if !ok {
		return nil
	}
	out := make([]identifiers.UserID, 0)
	members.Range(func(user identifiers.UserID, _ struct{}) bool {
		out = append(out, user)
		return true
	})
	return out
}
