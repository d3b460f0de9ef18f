package handlers

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/speakeasy-rtc/speakeasy/internal/auth"
	"github.com/speakeasy-rtc/speakeasy/internal/broadcast"
	"github.com/speakeasy-rtc/speakeasy/internal/db/models"
	"github.com/speakeasy-rtc/speakeasy/internal/groupkey"
	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
	"github.com/speakeasy-rtc/speakeasy/internal/signaling"
)

// ChannelInfo is the wire shape of one channel in listings.
type ChannelInfo struct {
	ID         identifiers.ChannelID `json:"id"`
	Name       string                `json:"name"`
	Topic      string                `json:"topic"`
	Type       models.ChannelType    `json:"type"`
	MaxClients int                   `json:"max_clients"`
	HasPassword bool                 `json:"has_password"`
}

// ChannelListResponse carries every channel the caller may see.
type ChannelListResponse struct {
	Channels []ChannelInfo `json:"channels"`
}

// ChannelList returns every channel in the tree.
func (d *Dependencies) ChannelList(sess *signaling.Session, req signaling.Envelope) (any, *signaling.WireError) {
	chans, err := d.Channels.List()
	if err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeDB, Message: "listing channels"}
	}
	out := make([]ChannelInfo, 0, len(chans))
	for _, ch := range chans {
		out = append(out, ChannelInfo{
			ID: ch.ID, Name: ch.Name, Topic: ch.Topic, Type: ch.Type,
			MaxClients: ch.MaxClients, HasPassword: ch.HasPassword(),
		})
	}
	return ChannelListResponse{Channels: out}, nil
}

// JoinChannelRequest names the target channel and its optional password.
type JoinChannelRequest struct {
	ChannelID identifiers.ChannelID `json:"channel_id"`
	Password  string                `json:"password,omitempty"`
}

// JoinChannelResponse confirms membership and the channel's current
// group-key epoch.
type JoinChannelResponse struct {
	ChannelID identifiers.ChannelID `json:"channel_id"`
	Epoch     uint32                `json:"epoch"`
}

// JoinChannel enforces the channel password (if any), member cap, and
// ban before admitting the caller, then rotates the group key and
// broadcasts the new epoch to the rest of the channel (§4.4, §4.5).
func (d *Dependencies) JoinChannel(sess *signaling.Session, req signaling.Envelope) (any, *signaling.WireError) {
	payload, err := signaling.DecodePayload[JoinChannelRequest](req)
	if err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeBadInput, Message: err.Error()}
	}

	ch, err := d.Channels.FindByID(payload.ChannelID)
	if err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeNotFound, Message: "channel not found"}
	}

	if ch.HasPassword() {
		ok, err := auth.VerifyPassword(payload.Password, ch.PasswordHash)
		if err != nil || !ok {
			return nil, &signaling.WireError{Code: signaling.ErrCodeAuth, Message: "invalid channel password"}
		}
	}

	if ch.MaxClients > 0 && len(d.Presence.Members(ch.ID)) >= ch.MaxClients {
		return nil, &signaling.WireError{Code: signaling.ErrCodeBadInput, Message: "channel is full"}
	}

	if _, banned, err := d.Bans.IsBanned(&sess.ID, "", time.Now()); err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeDB, Message: "checking ban"}
	} else if banned {
		return nil, &signaling.WireError{Code: signaling.ErrCodeAuthz, Message: "banned"}
	}

	d.Presence.SetChannel(sess.ID, ch.ID)
	sess.EnterChannel(ch.ID)

	key, err := d.rotateOrCreateKey(ch.ID)
	if err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeInternal, Message: "rotating group key"}
	}

	joinNotice, _ := json.Marshal(membershipNotice{Event: "join", Epoch: key.Epoch})
	d.Broadcaster.Broadcast(broadcast.Event{
		Kind:    broadcast.KindMembership,
		Channel: ch.ID,
		Payload: joinNotice,
	}, sess.ID)

	// The caller is already present in ch by this point (SetChannel ran
	// above), so this also delivers the joiner their own wrapped copy of
	// the new epoch's key, not just the other members'.
	d.deliverKeyUpdate(ch.ID, key)

	return JoinChannelResponse{ChannelID: ch.ID, Epoch: key.Epoch}, nil
}

// rotateOrCreateKey rotates ch's group key if one exists, or creates the
// first epoch if this is the channel's first member.
func (d *Dependencies) rotateOrCreateKey(ch identifiers.ChannelID) (*groupkey.Key, error) {
	if key, err := d.GroupKeyMgr.Rotate(ch); err == nil {
		return key, nil
	}
	return d.GroupKeyMgr.Create(ch)
}

// LeaveChannel removes the caller from their current channel, rotating
// its group key behind them.
func (d *Dependencies) LeaveChannel(sess *signaling.Session, req signaling.Envelope) (any, *signaling.WireError) {
	ch := sess.Channel()
	if ch.IsNil() {
		return nil, &signaling.WireError{Code: signaling.ErrCodeBadInput, Message: "not in a channel"}
	}

	d.Presence.SetChannel(sess.ID, identifiers.ChannelID{})
	sess.LeaveChannel()

	if key, err := d.GroupKeyMgr.Rotate(ch); err == nil {
		leaveNotice, _ := json.Marshal(membershipNotice{Event: "leave", Epoch: key.Epoch})
		d.Broadcaster.Broadcast(broadcast.Event{
			Kind:    broadcast.KindMembership,
			Channel: ch,
			Payload: leaveNotice,
		}, sess.ID)
		d.deliverKeyUpdate(ch, key)
	}

	return struct{}{}, nil
}

// KanalErstellenRequest names the new channel (the command is gated by
// the b_channel_create permission, checked by the dispatcher before this
// handler runs — §8 scenario 5).
type KanalErstellenRequest struct {
	Name       string `json:"name"`
	Topic      string `json:"topic,omitempty"`
	MaxClients int    `json:"max_clients,omitempty"`
}

// KanalErstellenResponse echoes the newly created channel's ID.
type KanalErstellenResponse struct {
	ChannelID identifiers.ChannelID `json:"channel_id"`
}

// KanalErstellen creates a new channel. Permission is enforced by the
// dispatcher (perm "b_channel_create"); this handler only validates the
// entity invariants (non-empty name).
func (d *Dependencies) KanalErstellen(sess *signaling.Session, req signaling.Envelope) (any, *signaling.WireError) {
	payload, err := signaling.DecodePayload[KanalErstellenRequest](req)
	if err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeBadInput, Message: err.Error()}
	}
	if payload.Name == "" {
		return nil, &signaling.WireError{Code: signaling.ErrCodeBadInput, Message: "name is required"}
	}

	ch := &models.Channel{
		Name:       payload.Name,
		Topic:      payload.Topic,
		MaxClients: payload.MaxClients,
		Type:       models.ChannelTypeVoice,
	}
	if err := d.Channels.Create(ch); err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeDB, Message: "creating channel"}
	}

	d.recordAudit(sess.ID, "channel_create", &ch.ID, ch.Name, true)
	return KanalErstellenResponse{ChannelID: ch.ID}, nil
}

// ChannelDeleteRequest names the channel to remove.
type ChannelDeleteRequest struct {
	ChannelID identifiers.ChannelID `json:"channel_id"`
}

// ChannelDelete removes a channel (permission-gated by the dispatcher).
func (d *Dependencies) ChannelDelete(sess *signaling.Session, req signaling.Envelope) (any, *signaling.WireError) {
	payload, err := signaling.DecodePayload[ChannelDeleteRequest](req)
	if err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeBadInput, Message: err.Error()}
	}
	if err := d.Channels.Delete(payload.ChannelID); err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeDB, Message: "deleting channel"}
	}
	d.GroupKeyMgr.Release(payload.ChannelID)
	d.recordAudit(sess.ID, "channel_delete", &payload.ChannelID, "", true)
	return struct{}{}, nil
}

// mustMarshal marshals v, which is always one of this package's own
// small notice structs and so can never fail to encode.
func mustMarshal(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

// membershipNotice is the broadcast payload for a join/leave event, per
// §202's "key-rotation control event precedes any forwarded packet
// encrypted under the new epoch" ordering guarantee.
type membershipNotice struct {
	Event string `json:"event"`
	Epoch uint32 `json:"epoch"`
}

// keyUpdateNotice is a CmdKeyUpdate notification's payload: one
// recipient's wrapped copy of a channel's current epoch key (§4.5).
type keyUpdateNotice struct {
	ChannelID    identifiers.ChannelID `json:"channel_id"`
	Epoch        uint32                `json:"epoch"`
	EphemeralPub []byte                `json:"ephemeral_pub"`
	Wrapped      []byte                `json:"wrapped"`
}

// deliverKeyUpdate wraps key for every member currently present in ch
// and delivers it as a key_update event. Callers invoke this after any
// presence mutation that already landed before the rotation (join,
// leave, kick, ban), so Presence.Members(ch) is exactly the set that
// should hold the new epoch.
func (d *Dependencies) deliverKeyUpdate(ch identifiers.ChannelID, key *groupkey.Key) {
	for _, user := range d.Presence.Members(ch) {
		d.deliverKeyUpdateTo(user, ch, key)
	}
}

// deliverKeyUpdateTo wraps key for a single recipient and delivers it.
// A recipient with no identity on file (or a malformed public key) is
// skipped silently: identity upload is independent of channel
// membership, and a client without one yet simply can't be reached
// over the E2E channel until it uploads one.
func (d *Dependencies) deliverKeyUpdateTo(user identifiers.UserID, ch identifiers.ChannelID, key *groupkey.Key) {
	identity, ok, err := d.Identities.FindByUser(user)
	if err != nil {
		slog.Error("key update: looking up recipient identity", "user", user, "error", err)
		return
	}
	if !ok || len(identity.PublicKey) != 32 {
		return
	}

	var recipientPub [32]byte
	copy(recipientPub[:], identity.PublicKey)

	ephemeralPub, wrapped, err := groupkey.WrapForRecipient(recipientPub, key)
	if err != nil {
		slog.Error("key update: wrapping group key", "user", user, "channel", ch, "error", err)
		return
	}

	if err := d.GroupKeys.SaveWrapped(&models.GroupKeyRecord{
		ChannelID:     ch,
		Epoch:         key.Epoch,
		RecipientUser: user,
		EphemeralPub:  ephemeralPub[:],
		Wrapped:       wrapped,
	}); err != nil {
		slog.Error("key update: persisting wrapped key", "user", user, "channel", ch, "error", err)
	}

	env := signaling.Envelope{
		Kind:    signaling.KindNotification,
		Cmd:     signaling.CmdKeyUpdate,
		Channel: &ch,
		Payload: mustMarshal(keyUpdateNotice{
			ChannelID:    ch,
			Epoch:        key.Epoch,
			EphemeralPub: ephemeralPub[:],
			Wrapped:      wrapped,
		}),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		slog.Error("key update: encoding notification", "error", err)
		return
	}

	d.Broadcaster.DeliverToSession(user, broadcast.Event{
		Kind:    broadcast.KindKeyUpdate,
		Channel: ch,
		Payload: payload,
	})
}
