package server

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
	"github.com/speakeasy-rtc/speakeasy/internal/permission"
	"github.com/speakeasy-rtc/speakeasy/internal/presence"
	"github.com/speakeasy-rtc/speakeasy/internal/signaling"
	"github.com/speakeasy-rtc/speakeasy/internal/signaling/frame"
)

type fakePermStore struct{}

func (fakePermStore) UserChannelPermission(identifiers.UserID, identifiers.ChannelID, string) (permission.Value, bool, error) {
	return permission.Value{}, false, nil
}
func (fakePermStore) UserServerPermission(identifiers.UserID, string) (permission.Value, bool, error) {
	return permission.Value{}, false, nil
}
func (fakePermStore) ChannelGroup(identifiers.UserID, identifiers.ChannelID) (permission.GroupID, bool, error) {
	return 0, false, nil
}
func (fakePermStore) ChannelGroupPermission(permission.GroupID, string) (permission.Value, bool, error) {
	return permission.Value{}, false, nil
}
func (fakePermStore) ServerGroupsForUser(identifiers.UserID) ([]permission.GroupID, error) {
	return nil, nil
}
func (fakePermStore) ServerGroupPermission(permission.GroupID, string) (permission.Value, bool, error) {
	return permission.Value{}, false, nil
}
func (fakePermStore) DefaultGrant(string) bool { return false }

func newTestServer() (*Server, *signaling.Dispatcher) {
	resolver := permission.New(fakePermStore{}, 16, time.Minute)
	disp := signaling.NewDispatcher(resolver)
	disp.Register(signaling.CmdPing, func(sess *signaling.Session, req signaling.Envelope) (any, *signaling.WireError) {
		return map[string]string{"pong": "ok"}, nil
	}, "")

	srv := &Server{
		dispatcher: disp,
		presence:   presence.New(),
		registry:   NewConnRegistry(),
	}
	return srv, disp
}

func TestConnRegistryAddRemoveDisconnect(t *testing.T) {
	reg := NewConnRegistry()
	user := identifiers.NewUserID()

	client, serverConn := net.Pipe()
	defer client.Close()
	defer serverConn.Close()

	reg.add(user, serverConn)

	done := make(chan struct{})
	go func() {
		buf := make([]byte, 1)
		_, _ = client.Read(buf)
		close(done)
	}()

	reg.Disconnect(user)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Disconnect to close the registered connection")
	}
}

func TestConnRegistryDisconnectUnknownUserIsNoop(t *testing.T) {
	reg := NewConnRegistry()
	assert.NotPanics(t, func() {
		reg.Disconnect(identifiers.NewUserID())
	})
}

func TestConnRegistryRemoveThenDisconnectIsNoop(t *testing.T) {
	reg := NewConnRegistry()
	user := identifiers.NewUserID()

	client, serverConn := net.Pipe()
	defer client.Close()
	defer serverConn.Close()

	reg.add(user, serverConn)
	reg.remove(user)

	assert.NotPanics(t, func() {
		reg.Disconnect(user)
	})
}

func TestDispatchRawUnknownCommandReturnsError(t *testing.T) {
	srv, _ := newTestServer()
	sess := signaling.NewSession(0)

	resp := srv.dispatchRaw(sess, []byte(`{"id":1,"kind":"Request","cmd":"Bogus"}`))

	assert.Equal(t, signaling.KindError, resp.Kind)
}

func TestDispatchRawMalformedPayloadReturnsBadInputError(t *testing.T) {
	srv, _ := newTestServer()
	sess := signaling.NewSession(0)

	resp := srv.dispatchRaw(sess, []byte(`not json`))

	require.Equal(t, signaling.KindError, resp.Kind)
	var wireErr signaling.WireError
	require.NoError(t, json.Unmarshal(resp.Payload, &wireErr))
	assert.Equal(t, signaling.ErrCodeBadInput, wireErr.Code)
}

func TestDispatchRawKnownPreAuthCommandSucceeds(t *testing.T) {
	srv, _ := newTestServer()
	sess := signaling.NewSession(0)

	resp := srv.dispatchRaw(sess, []byte(`{"id":7,"kind":"Request","cmd":"Ping"}`))

	assert.Equal(t, signaling.KindResponse, resp.Kind)
	assert.EqualValues(t, 7, resp.ID)
}

// TestHandleConnRoundTripsOneRequest drives handleConn over an in-memory
// pipe end to end: write one framed request, read back the framed
// response, and confirm the connection is cleaned up on close.
func TestHandleConnRoundTripsOneRequest(t *testing.T) {
	srv, _ := newTestServer()

	client, serverConn := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		srv.handleConn(t.Context(), serverConn)
		close(done)
	}()

	clientWriter := frame.NewWriter(client)
	clientReader := frame.NewReader(client)

	req, err := json.Marshal(signaling.Envelope{ID: 1, Kind: signaling.KindRequest, Cmd: signaling.CmdPing})
	require.NoError(t, err)
	require.NoError(t, clientWriter.WriteRaw(req))

	raw, err := clientReader.ReadRaw()
	require.NoError(t, err)

	var resp signaling.Envelope
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, signaling.KindResponse, resp.Kind)
	assert.EqualValues(t, 1, resp.ID)

	client.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected handleConn to return after the connection closed")
	}
}
