package handlers

import (
	"time"

	"github.com/speakeasy-rtc/speakeasy/internal/db/models"
	"github.com/speakeasy-rtc/speakeasy/internal/signaling"
)

// KeyUpdateRequest carries the caller's new long-term E2E identity
// public key (§3 Identity: only the public half is stored server-side).
type KeyUpdateRequest struct {
	PublicKey []byte `json:"public_key"`
}

// KeyUpdate replaces the caller's stored identity public key.
func (d *Dependencies) KeyUpdate(sess *signaling.Session, req signaling.Envelope) (any, *signaling.WireError) {
	payload, err := signaling.DecodePayload[KeyUpdateRequest](req)
	if err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeBadInput, Message: err.Error()}
	}
	if len(payload.PublicKey) == 0 {
		return nil, &signaling.WireError{Code: signaling.ErrCodeBadInput, Message: "public_key is required"}
	}

	identity := &models.Identity{UserID: sess.ID, PublicKey: payload.PublicKey, CreatedAt: time.Now()}
	if err := d.Identities.Upsert(identity); err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeDB, Message: "storing identity key"}
	}
	return struct{}{}, nil
}
