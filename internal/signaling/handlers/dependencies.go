// Package handlers implements the command handlers registered against a
// signaling.Dispatcher: one file per command family, each a thin
// CommandExecutor grounded on the shared Dependencies bundle (§6 External
// Interfaces: the core treats persistence, presence, routing, permission
// resolution, and group-key management as capability objects).
package handlers

import (
	"sync/atomic"

	"github.com/speakeasy-rtc/speakeasy/internal/broadcast"
	"github.com/speakeasy-rtc/speakeasy/internal/config"
	"github.com/speakeasy-rtc/speakeasy/internal/db"
	"github.com/speakeasy-rtc/speakeasy/internal/groupkey"
	"github.com/speakeasy-rtc/speakeasy/internal/permission"
	"github.com/speakeasy-rtc/speakeasy/internal/presence"
	"github.com/speakeasy-rtc/speakeasy/internal/router"
	"github.com/speakeasy-rtc/speakeasy/internal/session"
	"github.com/speakeasy-rtc/speakeasy/internal/voice"
)

// Dependencies bundles every capability a command handler needs. It is
// constructed once at server startup and shared by every connection.
type Dependencies struct {
	Users          db.UserRepo
	Channels       db.ChannelRepo
	Bans           db.BanRepo
	Chat           db.ChatRepo
	Audit          db.AuditRepo
	GroupKeys      db.GroupKeyRepo
	Files          db.FileRepo
	ServerSettings db.ServerRepo
	Identities     db.IdentityRepo

	Presence    *presence.Map
	Router      *router.Router
	Permissions *permission.Resolver
	GroupKeyMgr *groupkey.Manager
	Sessions    *session.Store
	Broadcaster *broadcast.Broadcaster

	// Voice is nil in tests that never exercise a live UDP socket; every
	// handler that touches it must treat a nil Voice as "no voice queue
	// to register," not a panic.
	Voice *voice.Engine

	VoiceUDPPort int
	CryptoMode   config.CryptoMode
	NextSSRC     atomic.Uint32 // starts at 0; allocateSSRC pre-increments so 0 is never issued
}

// allocateSSRC mints a globally unique, non-zero, monotonically
// increasing SSRC for a new voice session (§3 Voice session: "never 0").
func (d *Dependencies) allocateSSRC() uint32 {
	return d.NextSSRC.Add(1)
}
