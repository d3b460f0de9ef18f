package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
	"github.com/speakeasy-rtc/speakeasy/internal/signaling"
)

func TestKeyUpdateRejectsEmptyKey(t *testing.T) {
	f := newTestFixture(nil)
	sess := signaling.NewSession(signaling.DefaultSendQueueDepth)
	sess.AuthenticateAs(identifiers.NewUserID())

	req := mustRequestEnvelope(t, signaling.CmdKeyUpdate, KeyUpdateRequest{})
	_, wireErr := f.deps.KeyUpdate(sess, req)
	require.NotNil(t, wireErr)
	assert.Equal(t, signaling.ErrCodeBadInput, wireErr.Code)
}

func TestKeyUpdateStoresPublicKey(t *testing.T) {
	f := newTestFixture(nil)
	user := identifiers.NewUserID()
	sess := signaling.NewSession(signaling.DefaultSendQueueDepth)
	sess.AuthenticateAs(user)

	pub := []byte{1, 2, 3, 4}
	req := mustRequestEnvelope(t, signaling.CmdKeyUpdate, KeyUpdateRequest{PublicKey: pub})
	_, wireErr := f.deps.KeyUpdate(sess, req)
	require.Nil(t, wireErr)

	stored, ok, err := f.deps.Identities.FindByUser(user)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pub, stored.PublicKey)
}

func TestKeyUpdateOverwritesPreviousKey(t *testing.T) {
	f := newTestFixture(nil)
	user := identifiers.NewUserID()
	sess := signaling.NewSession(signaling.DefaultSendQueueDepth)
	sess.AuthenticateAs(user)

	first := mustRequestEnvelope(t, signaling.CmdKeyUpdate, KeyUpdateRequest{PublicKey: []byte{1}})
	_, wireErr := f.deps.KeyUpdate(sess, first)
	require.Nil(t, wireErr)

	second := mustRequestEnvelope(t, signaling.CmdKeyUpdate, KeyUpdateRequest{PublicKey: []byte{2, 2}})
	_, wireErr = f.deps.KeyUpdate(sess, second)
	require.Nil(t, wireErr)

	stored, ok, err := f.deps.Identities.FindByUser(user)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{2, 2}, stored.PublicKey)
}
