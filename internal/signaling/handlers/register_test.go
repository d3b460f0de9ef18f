package handlers

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/speakeasy-rtc/speakeasy/internal/signaling"
)

// TestRegisterAllBindsEveryWireCommand dispatches every command §4.4
// names and asserts none of them comes back as "unknown command" — i.e.
// RegisterAll actually bound a handler for it. Each handler may still
// reject the call for other reasons (missing auth, bad payload); only
// the "not registered at all" failure mode is under test here.
func TestRegisterAllBindsEveryWireCommand(t *testing.T) {
	f := newTestFixture(nil)
	disp := signaling.NewDispatcher(f.deps.Permissions)
	RegisterAll(disp, f.deps)

	commands := []string{
		signaling.CmdHandshake, signaling.CmdPing, signaling.CmdLogin, signaling.CmdLogout,
		signaling.CmdTokenRefresh, signaling.CmdKeyUpdate, signaling.CmdChannelList,
		signaling.CmdJoinChannel, signaling.CmdLeaveChannel, signaling.CmdKanalErstellen,
		signaling.CmdChannelDelete, signaling.CmdVoiceInit, signaling.CmdVoiceDisconnect,
		signaling.CmdKickClient, signaling.CmdBanClient, signaling.CmdChatSend,
		signaling.CmdChatHistory, signaling.CmdServerInfo, signaling.CmdServerEdit,
		signaling.CmdUserInfo, signaling.CmdUserUpdate,
	}

	for _, cmd := range commands {
		sess := signaling.NewSession(signaling.DefaultSendQueueDepth)
		sess.AuthenticateAs(sess.ID)
		resp := disp.Dispatch(sess, signaling.Envelope{ID: 1, Kind: signaling.KindRequest, Cmd: cmd})
		if resp.Kind != signaling.KindError {
			continue
		}
		var wireErr signaling.WireError
		require.NoError(t, json.Unmarshal(resp.Payload, &wireErr))
		require.False(t, strings.Contains(wireErr.Message, "unknown command"), "command %q should be registered", cmd)
	}
}
