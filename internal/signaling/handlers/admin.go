package handlers

import (
	"time"

	"github.com/speakeasy-rtc/speakeasy/internal/broadcast"
	"github.com/speakeasy-rtc/speakeasy/internal/db/models"
	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
	"github.com/speakeasy-rtc/speakeasy/internal/signaling"
)

// KickClientRequest names the target user to remove from their current
// channel without banning them.
type KickClientRequest struct {
	UserID identifiers.UserID `json:"user_id"`
}

// KickClient forces a disconnect of the target's current channel
// membership: presence removal, voice-routing teardown, and a group-key
// rotation so the departed member can no longer decrypt new traffic.
// Gated by the dispatcher on a moderation permission.
func (d *Dependencies) KickClient(sess *signaling.Session, req signaling.Envelope) (any, *signaling.WireError) {
	payload, err := signaling.DecodePayload[KickClientRequest](req)
	if err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeBadInput, Message: err.Error()}
	}

	entry, ok := d.Presence.Get(payload.UserID)
	if !ok {
		return nil, &signaling.WireError{Code: signaling.ErrCodeNotFound, Message: "user is not online"}
	}
	ch := entry.Channel

	d.Router.Leave(payload.UserID)
	if d.Voice != nil {
		d.Voice.Unregister(payload.UserID)
	}
	d.Presence.Remove(payload.UserID)

	if !ch.IsNil() {
		if key, err := d.GroupKeyMgr.Rotate(ch); err == nil {
			d.Broadcaster.Broadcast(broadcast.Event{
				Kind:    broadcast.KindKick,
				Channel: ch,
				Payload: mustMarshal(membershipNotice{Event: "kick", Epoch: key.Epoch}),
			}, payload.UserID)
			d.deliverKeyUpdate(ch, key)
		}
	}

	d.recordAudit(sess.ID, "kick", nil, payload.UserID.String(), true)
	return struct{}{}, nil
}

// BanClientRequest names the target and an optional expiry; a nil
// ExpiresAt bans permanently.
type BanClientRequest struct {
	UserID    identifiers.UserID `json:"user_id"`
	Reason    string             `json:"reason,omitempty"`
	ExpiresAt *time.Time         `json:"expires_at,omitempty"`
}

// BanClient records a ban, then performs the same teardown as
// KickClient. Gated by the dispatcher on a moderation permission.
func (d *Dependencies) BanClient(sess *signaling.Session, req signaling.Envelope) (any, *signaling.WireError) {
	payload, err := signaling.DecodePayload[BanClientRequest](req)
	if err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeBadInput, Message: err.Error()}
	}

	ban := &models.Ban{
		UserID:    &payload.UserID,
		Reason:    payload.Reason,
		BannedBy:  &sess.ID,
		ExpiresAt: payload.ExpiresAt,
		CreatedAt: time.Now(),
	}
	if err := d.Bans.Create(ban); err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeDB, Message: "recording ban"}
	}

	if entry, ok := d.Presence.Get(payload.UserID); ok {
		ch := entry.Channel
		d.Router.Leave(payload.UserID)
		if d.Voice != nil {
			d.Voice.Unregister(payload.UserID)
		}
		d.Presence.Remove(payload.UserID)
		if !ch.IsNil() {
			if key, err := d.GroupKeyMgr.Rotate(ch); err == nil {
				d.Broadcaster.Broadcast(broadcast.Event{
					Kind:    broadcast.KindBan,
					Channel: ch,
					Payload: mustMarshal(membershipNotice{Event: "ban", Epoch: key.Epoch}),
				}, payload.UserID)
				d.deliverKeyUpdate(ch, key)
			}
		}
	}

	d.recordAudit(sess.ID, "ban", nil, payload.UserID.String(), true)
	return struct{}{}, nil
}
