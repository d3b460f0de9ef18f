// Package broadcast fans control-plane events out to every member of a
// channel (§4.12): one copy enqueued directly onto each locally-connected
// member's send queue, plus one publish onto the channel's pubsub topic so
// other processes in a clustered deployment relay it to their own local
// members. Mirrors the teacher's marshalAndPublish / publishForPeers split
// in internal/dmr/hub/publishing.go, generalized from DMR packet relay to
// typed control events.
package broadcast

import (
	"log/slog"

	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
	"github.com/speakeasy-rtc/speakeasy/internal/presence"
	"github.com/speakeasy-rtc/speakeasy/internal/pubsub"
)

const channelTopicPrefix = "broadcast:channel:"

func channelTopic(ch identifiers.ChannelID) string {
	return channelTopicPrefix + ch.String()
}

// Kind tags an Event so the broadcaster can decide whether it is allowed to
// be dropped on send-queue overflow.
type Kind string

const (
	KindMembership Kind = "membership"
	KindChat       Kind = "chat"
	KindPresence   Kind = "presence"
	KindKick       Kind = "kick"
	KindBan        Kind = "ban"
	KindKeyUpdate  Kind = "key_update"
	// KindCongestion carries a bitrate suggestion from the voice engine
	// back to one sender's encoder (§4.8). Never critical: a missed
	// suggestion just means the sender keeps its current bitrate.
	KindCongestion Kind = "congestion"
)

// critical reports whether events of this kind must never be silently
// dropped on queue overflow: per §4.12, authentication and security events
// (kick, ban, key rotation) force a disconnect instead of a drop.
func (k Kind) critical() bool {
	switch k {
	case KindKick, KindBan, KindKeyUpdate:
		return true
	default:
		return false
	}
}

// Event is one control-plane message destined for every member of a channel.
type Event struct {
	Kind    Kind
	Channel identifiers.ChannelID
	Payload []byte // pre-serialized wire frame
}

// DropCounter records non-critical events lost to a full send queue, keyed
// by event kind, for telemetry.
type DropCounter interface {
	IncDropped(kind string)
}

// Disconnector tears a user's connection down. It's invoked when a critical
// event can't be delivered because the recipient's send queue is full.
type Disconnector interface {
	Disconnect(user identifiers.UserID)
}

// PluginNotifier is the external plugin host capability (§9 Design Notes):
// the broadcaster calls it fire-and-forget for every event, never blocking
// on or failing because of it.
type PluginNotifier interface {
	Notify(e Event)
}

// Broadcaster delivers events to local members via presence.Map and to
// other processes via pubsub, matching the teacher's dual local-dispatch /
// cross-process-publish split.
type Broadcaster struct {
	presence     *presence.Map
	pubsub       pubsub.PubSub
	drops        DropCounter
	disconnector Disconnector
	plugin       PluginNotifier
}

// New builds a Broadcaster. plugin may be nil if no plugin host is wired.
func New(p *presence.Map, ps pubsub.PubSub, drops DropCounter, disconnector Disconnector, plugin PluginNotifier) *Broadcaster {
	return &Broadcaster{presence: p, pubsub: ps, drops: drops, disconnector: disconnector, plugin: plugin}
}

// Broadcast delivers e to every member of e.Channel except the optional
// except user, and publishes it to the channel's pubsub topic for other
// processes to relay to their own local members.
func (b *Broadcaster) Broadcast(e Event, except identifiers.UserID) {
	b.deliverLocal(e, except)

	if b.pubsub != nil {
		if err := b.pubsub.Publish(channelTopic(e.Channel), e.Payload); err != nil {
			slog.Error("broadcast: publish failed", "channel", e.Channel, "kind", e.Kind, "error", err)
		}
	}

	if b.plugin != nil {
		go b.plugin.Notify(e)
	}
}

// deliverLocal enqueues e onto every locally-present member's send queue,
// applying the never-drop-critical-events rule from §4.12.
func (b *Broadcaster) deliverLocal(e Event, except identifiers.UserID) {
	for _, user := range b.presence.Members(e.Channel) {
		if user == except {
			continue
		}
		entry, ok := b.presence.Get(user)
		if !ok || entry.Queue == nil {
			continue
		}
		if entry.Queue.Enqueue(e.Payload) {
			continue
		}
		b.handleOverflow(e, user)
	}
}

func (b *Broadcaster) handleOverflow(e Event, user identifiers.UserID) {
	if !e.Kind.critical() {
		if b.drops != nil {
			b.drops.IncDropped(string(e.Kind))
		}
		return
	}
	slog.Warn("broadcast: critical event could not be delivered, disconnecting recipient",
		"user", user, "channel", e.Channel, "kind", e.Kind)
	if b.disconnector != nil {
		b.disconnector.Disconnect(user)
	}
}

// DeliverToSession enqueues e directly onto a single user's send queue
// without going through channel membership, for session-scoped events
// (e.g. a token-refresh notice) that aren't addressed to a channel. It
// applies the same never-drop-critical rule as Broadcast.
func (b *Broadcaster) DeliverToSession(user identifiers.UserID, e Event) {
	entry, ok := b.presence.Get(user)
	if !ok || entry.Queue == nil {
		return
	}
	if entry.Queue.Enqueue(e.Payload) {
		return
	}
	b.handleOverflow(e, user)
}
