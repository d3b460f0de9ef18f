package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speakeasy-rtc/speakeasy/internal/db/models"
	"github.com/speakeasy-rtc/speakeasy/internal/signaling"
)

func TestVoiceInitRequiresChannelMembership(t *testing.T) {
	f := newTestFixture(nil)
	sess := signaling.NewSession(signaling.DefaultSendQueueDepth)

	_, wireErr := f.deps.VoiceInit(sess, signaling.Envelope{})
	require.NotNil(t, wireErr)
	assert.Equal(t, signaling.ErrCodeBadInput, wireErr.Code)
}

func TestVoiceInitAllocatesNonZeroSSRCAndJoinsRouter(t *testing.T) {
	f := newTestFixture(nil)
	ch := &models.Channel{Name: "general"}
	require.NoError(t, f.channels.Create(ch))
	sess := joinedSession(t, f, ch)

	resp, wireErr := f.deps.VoiceInit(sess, signaling.Envelope{})
	require.Nil(t, wireErr)
	out := resp.(VoiceInitResponse)
	assert.NotZero(t, out.SSRC)
	assert.Equal(t, "opus", out.Codec)

	member, ok := f.deps.Router.Lookup(out.SSRC)
	require.True(t, ok)
	assert.Equal(t, sess.ID, member.User)
	assert.Equal(t, ch.ID, member.Channel)
}

func TestVoiceInitNeverIssuesSSRCZeroAcrossManyCallers(t *testing.T) {
	f := newTestFixture(nil)
	ch := &models.Channel{Name: "general"}
	require.NoError(t, f.channels.Create(ch))

	for i := 0; i < 5; i++ {
		sess := joinedSession(t, f, ch)
		resp, wireErr := f.deps.VoiceInit(sess, signaling.Envelope{})
		require.Nil(t, wireErr)
		assert.NotZero(t, resp.(VoiceInitResponse).SSRC)
	}
}

func TestVoiceDisconnectAcknowledgesAndLeavesRouter(t *testing.T) {
	f := newTestFixture(nil)
	ch := &models.Channel{Name: "general"}
	require.NoError(t, f.channels.Create(ch))
	sess := joinedSession(t, f, ch)

	resp, wireErr := f.deps.VoiceInit(sess, signaling.Envelope{})
	require.Nil(t, wireErr)
	ssrc := resp.(VoiceInitResponse).SSRC

	ackResp, wireErr := f.deps.VoiceDisconnect(sess, signaling.Envelope{})
	require.Nil(t, wireErr)
	assert.True(t, ackResp.(VoiceDisconnectResponse).Acknowledged)

	_, ok := f.deps.Router.Lookup(ssrc)
	assert.False(t, ok)
}
