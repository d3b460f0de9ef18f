package handlers

import (
	"context"

	"github.com/speakeasy-rtc/speakeasy/internal/auth"
	"github.com/speakeasy-rtc/speakeasy/internal/db/models"
	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
	"github.com/speakeasy-rtc/speakeasy/internal/signaling"
)

// ServerInfoResponse reports the server's current identity and load.
type ServerInfoResponse struct {
	Name        string `json:"name"`
	Welcome     string `json:"welcome"`
	MaxClients  int    `json:"max_clients"`
	OnlineCount int    `json:"online_count"`
}

// ServerInfo reports the server's identity, welcome banner, and current
// load.
func (d *Dependencies) ServerInfo(sess *signaling.Session, req signaling.Envelope) (any, *signaling.WireError) {
	settings, err := d.ServerSettings.Get()
	if err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeDB, Message: "loading server settings"}
	}
	return ServerInfoResponse{
		Name:        settings.Name,
		Welcome:     settings.Welcome,
		MaxClients:  settings.MaxClients,
		OnlineCount: d.Presence.OnlineCount(),
	}, nil
}

// ServerEditRequest carries the fields an admin may change; zero values
// leave the corresponding field unchanged is NOT implemented here —
// ServerEdit replaces the whole row, matching its singleton-row model.
type ServerEditRequest struct {
	Name       string `json:"name"`
	Welcome    string `json:"welcome"`
	MaxClients int    `json:"max_clients"`
}

// ServerEdit updates the singleton server-settings row. Gated by the
// dispatcher on a server-admin permission.
func (d *Dependencies) ServerEdit(sess *signaling.Session, req signaling.Envelope) (any, *signaling.WireError) {
	payload, err := signaling.DecodePayload[ServerEditRequest](req)
	if err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeBadInput, Message: err.Error()}
	}
	settings := models.ServerSettings{Name: payload.Name, Welcome: payload.Welcome, MaxClients: payload.MaxClients}
	if err := d.ServerSettings.Update(settings); err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeDB, Message: "updating server settings"}
	}
	d.recordAudit(sess.ID, "server_edit", nil, payload.Name, true)
	return struct{}{}, nil
}

// UserInfoRequest names the user to look up; an empty UserID means "the
// caller".
type UserInfoRequest struct {
	UserID identifiers.UserID `json:"user_id,omitempty"`
}

// UserInfoResponse is the public-facing view of a user account.
type UserInfoResponse struct {
	UserID   identifiers.UserID `json:"user_id"`
	Name     string             `json:"name"`
	Active   bool               `json:"active"`
	Online   bool               `json:"online"`
}

// UserInfo looks up the caller, or another user by ID.
func (d *Dependencies) UserInfo(sess *signaling.Session, req signaling.Envelope) (any, *signaling.WireError) {
	payload, err := signaling.DecodePayload[UserInfoRequest](req)
	if err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeBadInput, Message: err.Error()}
	}
	target := payload.UserID
	if target.IsNil() {
		target = sess.ID
	}

	user, err := d.Users.FindByID(target)
	if err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeNotFound, Message: "user not found"}
	}
	return UserInfoResponse{UserID: user.ID, Name: user.Name, Active: user.Active, Online: d.Presence.IsOnline(user.ID)}, nil
}

// UserUpdateRequest carries the caller's own profile/password change.
type UserUpdateRequest struct {
	NewPassword string `json:"new_password,omitempty"`
}

// UserUpdate lets an authenticated user change their own password,
// invalidating every other session they hold (§4.13).
func (d *Dependencies) UserUpdate(sess *signaling.Session, req signaling.Envelope) (any, *signaling.WireError) {
	payload, err := signaling.DecodePayload[UserUpdateRequest](req)
	if err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeBadInput, Message: err.Error()}
	}
	if payload.NewPassword == "" {
		return struct{}{}, nil
	}

	hash, hashErr := auth.HashPassword(payload.NewPassword)
	if hashErr != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeInternal, Message: "hashing password"}
	}
	if err := d.Users.UpdatePasswordHash(sess.ID, hash, false); err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeDB, Message: "updating password"}
	}
	if err := d.Sessions.InvalidateAllForUser(context.Background(), sess.ID); err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeDB, Message: "invalidating sessions"}
	}
	return struct{}{}, nil
}
