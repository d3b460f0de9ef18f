package handlers

import "github.com/speakeasy-rtc/speakeasy/internal/signaling"

// Permission names gating the moderation/admin commands, following the
// "b_<verb>" convention spec.md names explicitly for b_channel_create.
const (
	PermChannelCreate = "b_channel_create"
	PermChannelDelete = "b_channel_delete"
	PermKick          = "b_kick"
	PermBan           = "b_ban"
	PermServerEdit    = "b_server_edit"
)

// RegisterAll binds every command in §4.4's wire vocabulary to its
// handler on d, applying each command's required permission (if any).
// Unlisted commands require no permission beyond the dispatcher's own
// auth-state precondition.
func RegisterAll(disp *signaling.Dispatcher, d *Dependencies) {
	disp.Register(signaling.CmdHandshake, d.Handshake, "")
	disp.Register(signaling.CmdPing, d.Ping, "")
	disp.Register(signaling.CmdLogin, d.Login, "")
	disp.Register(signaling.CmdLogout, d.Logout, "")
	disp.Register(signaling.CmdTokenRefresh, d.TokenRefresh, "")
	disp.Register(signaling.CmdKeyUpdate, d.KeyUpdate, "")

	disp.Register(signaling.CmdChannelList, d.ChannelList, "")
	disp.Register(signaling.CmdJoinChannel, d.JoinChannel, "")
	disp.Register(signaling.CmdLeaveChannel, d.LeaveChannel, "")
	disp.Register(signaling.CmdKanalErstellen, d.KanalErstellen, PermChannelCreate)
	disp.Register(signaling.CmdChannelDelete, d.ChannelDelete, PermChannelDelete)

	disp.Register(signaling.CmdVoiceInit, d.VoiceInit, "")
	disp.Register(signaling.CmdVoiceDisconnect, d.VoiceDisconnect, "")

	disp.Register(signaling.CmdKickClient, d.KickClient, PermKick)
	disp.Register(signaling.CmdBanClient, d.BanClient, PermBan)

	disp.Register(signaling.CmdChatSend, d.ChatSend, "")
	disp.Register(signaling.CmdChatHistory, d.ChatHistory, "")

	disp.Register(signaling.CmdServerInfo, d.ServerInfo, "")
	disp.Register(signaling.CmdServerEdit, d.ServerEdit, PermServerEdit)
	disp.Register(signaling.CmdUserInfo, d.UserInfo, "")
	disp.Register(signaling.CmdUserUpdate, d.UserUpdate, "")
}
