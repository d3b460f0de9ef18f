package handlers

import (
	"context"

	"github.com/speakeasy-rtc/speakeasy/internal/auth"
	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
	"github.com/speakeasy-rtc/speakeasy/internal/signaling"
)

// HandshakeRequest carries the peer's advertised protocol version.
type HandshakeRequest struct {
	Version signaling.ProtocolVersion `json:"version"`
}

// HandshakeResponse echoes the server's protocol version.
type HandshakeResponse struct {
	Version signaling.ProtocolVersion `json:"version"`
}

// Handshake validates the peer's protocol version (§4.4: major mismatch
// is fatal, minor drift tolerated). It leaves the session's state
// unchanged; Login is accepted from Connected as well as Awaiting-Auth.
func (d *Dependencies) Handshake(sess *signaling.Session, req signaling.Envelope) (any, *signaling.WireError) {
	payload, err := signaling.DecodePayload[HandshakeRequest](req)
	if err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeBadInput, Message: err.Error()}
	}
	if !signaling.CurrentProtocolVersion.Compatible(payload.Version) {
		return nil, &signaling.WireError{Code: signaling.ErrCodeBadInput, Message: "protocol major version mismatch"}
	}
	return HandshakeResponse{Version: signaling.CurrentProtocolVersion}, nil
}

// LoginRequest carries the user's credentials.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the newly minted session token.
type LoginResponse struct {
	Token        string             `json:"token"`
	UserID       identifiers.UserID `json:"user_id"`
	MustChangePw bool               `json:"must_change_pw"`
}

// Login verifies credentials, mints a session token, and transitions the
// connection to Authenticated. A failed login increments the session's
// attempt counter; exceeding the threshold closes the connection
// (§4.4's "Login(fail, attempts=N)--> Closed(rate-banned)").
func (d *Dependencies) Login(sess *signaling.Session, req signaling.Envelope) (any, *signaling.WireError) {
	payload, err := signaling.DecodePayload[LoginRequest](req)
	if err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeBadInput, Message: err.Error()}
	}

	user, err := d.Users.FindByName(payload.Username)
	if err != nil {
		return d.loginFailed(sess)
	}
	if !user.Active {
		return d.loginFailed(sess)
	}

	ok, err := auth.VerifyPassword(payload.Password, user.PasswordHash)
	if err != nil || !ok {
		return d.loginFailed(sess)
	}

	tok, err := d.Sessions.Create(context.Background(), user.ID)
	if err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeDB, Message: "creating session"}
	}

	sess.AuthenticateAs(user.ID)
	sess.SetToken(tok.Token)
	d.Presence.Insert(user.ID, sess.Queue, nil)

	return LoginResponse{Token: tok.Token, UserID: user.ID, MustChangePw: user.MustChangePw}, nil
}

func (d *Dependencies) loginFailed(sess *signaling.Session) (any, *signaling.WireError) {
	if sess.RecordFailedLogin() {
		sess.Close()
		return nil, &signaling.WireError{Code: signaling.ErrCodeRateLimit, Message: "too many failed login attempts"}
	}
	return nil, &signaling.WireError{Code: signaling.ErrCodeAuth, Message: "invalid credentials"}
}

// Logout invalidates the session's token, removes the user from presence,
// and closes the session.
func (d *Dependencies) Logout(sess *signaling.Session, req signaling.Envelope) (any, *signaling.WireError) {
	if tok := sess.Token(); tok != "" {
		if err := d.Sessions.Invalidate(context.Background(), tok); err != nil {
			return nil, &signaling.WireError{Code: signaling.ErrCodeDB, Message: "invalidating session"}
		}
	}
	d.Presence.Remove(sess.ID)
	sess.Close()
	return struct{}{}, nil
}

// TokenRefreshResponse carries the replacement token.
type TokenRefreshResponse struct {
	Token string `json:"token"`
}

// TokenRefresh mints a fresh token for the already-authenticated user
// and invalidates the one currently bound to this connection.
func (d *Dependencies) TokenRefresh(sess *signaling.Session, req signaling.Envelope) (any, *signaling.WireError) {
	ctx := context.Background()
	newTok, err := d.Sessions.Create(ctx, sess.ID)
	if err != nil {
		return nil, &signaling.WireError{Code: signaling.ErrCodeDB, Message: "creating session"}
	}
	if old := sess.Token(); old != "" {
		_ = d.Sessions.Invalidate(ctx, old)
	}
	sess.SetToken(newTok.Token)
	return TokenRefreshResponse{Token: newTok.Token}, nil
}
