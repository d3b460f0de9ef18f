// Package signaling implements the TCP control-plane state machine
// (§4.4): the connection's auth/channel state, the command dispatcher,
// and the wire envelope shape carried over internal/signaling/frame.
package signaling

import (
	"encoding/json"

	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
)

// Kind distinguishes the four envelope roles on the control wire (§6).
type Kind string

const (
	KindRequest      Kind = "Request"
	KindResponse     Kind = "Response"
	KindNotification Kind = "Notification"
	KindError        Kind = "Error"
)

// Command names, carried in Envelope.Cmd. The literal set a dispatcher
// may register a handler for.
const (
	CmdHandshake       = "Handshake"
	CmdPing            = "Ping"
	CmdPong            = "Pong"
	CmdLogin           = "Login"
	CmdLogout          = "Logout"
	CmdTokenRefresh    = "TokenRefresh"
	CmdChannelList     = "ChannelList"
	CmdJoinChannel     = "JoinChannel"
	CmdLeaveChannel    = "LeaveChannel"
	CmdKanalErstellen  = "KanalErstellen"
	CmdChannelDelete   = "ChannelDelete"
	CmdUserInfo        = "UserInfo"
	CmdUserUpdate      = "UserUpdate"
	CmdServerInfo      = "ServerInfo"
	CmdServerEdit      = "ServerEdit"
	CmdKickClient      = "KickClient"
	CmdBanClient       = "BanClient"
	CmdVoiceInit       = "VoiceInit"
	CmdVoiceDisconnect = "VoiceDisconnect"
	CmdChatSend        = "ChatSend"
	CmdChatHistory     = "ChatHistory"
	CmdKeyUpdate       = "KeyUpdate"
)

// preAuthCommands may be dispatched before the session reaches
// Authenticated; every other command requires it (§4.4).
var preAuthCommands = map[string]bool{
	CmdHandshake: true,
	CmdLogin:     true,
	CmdPing:      true,
	CmdPong:      true,
}

// IsPreAuth reports whether cmd may run before authentication completes.
func IsPreAuth(cmd string) bool { return preAuthCommands[cmd] }

// Envelope is the wire shape of every control-socket frame (§6).
type Envelope struct {
	ID      uint64               `json:"id"`
	Kind    Kind                 `json:"kind"`
	Cmd     string               `json:"cmd"`
	Sender  *identifiers.UserID  `json:"sender,omitempty"`
	Channel *identifiers.ChannelID `json:"channel,omitempty"`
	Server  *identifiers.ServerID  `json:"server,omitempty"`
	Payload json.RawMessage      `json:"payload,omitempty"`
}

// WireError is the payload of a KindError envelope.
type WireError struct {
	Code    uint32 `json:"code"`
	Message string `json:"message"`
}

// Error code families (§6).
const (
	ErrCodeAuth       uint32 = 1001
	ErrCodeAuthz      uint32 = 1002
	ErrCodeRateLimit  uint32 = 1003
	ErrCodeNotFound   uint32 = 1004
	ErrCodeBadInput   uint32 = 1005
	ErrCodeDB         uint32 = 2001
	ErrCodeInternal   uint32 = 5000
)

// ProtocolVersion is the {major, minor} pair exchanged in Handshake.
type ProtocolVersion struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

// CurrentProtocolVersion is the version this server implements. A
// Handshake whose Major differs is a fatal mismatch; Minor drift is
// tolerated (§4.4).
var CurrentProtocolVersion = ProtocolVersion{Major: 1, Minor: 0}

// Compatible reports whether a peer's advertised version can interop
// with this server: same major, any minor.
func (v ProtocolVersion) Compatible(peer ProtocolVersion) bool {
	return v.Major == peer.Major
}

// errorEnvelope builds a KindError response envelope echoing the
// original request's ID, per §4.4's "errors use the original ID" rule.
func errorEnvelope(requestID uint64, code uint32, message string) Envelope {
	payload, _ := json.Marshal(WireError{Code: code, Message: message})
	return Envelope{ID: requestID, Kind: KindError, Payload: payload}
}

// responseEnvelope builds a KindResponse envelope for cmd, echoing the
// request's ID, with payload marshaled from v.
func responseEnvelope(requestID uint64, cmd string, v any) (Envelope, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{ID: requestID, Kind: KindResponse, Cmd: cmd, Payload: payload}, nil
}
