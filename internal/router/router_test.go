package router

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
)

type countingQueue struct{ n int }

func (q *countingQueue) Enqueue(_ []byte) bool {
	q.n++
	return true
}

func TestFanoutExcludesSender(t *testing.T) {
	t.Parallel()
	r := New()
	ch := identifiers.NewChannelID()
	a, b, c := identifiers.NewUserID(), identifiers.NewUserID(), identifiers.NewUserID()

	r.Join(ch, Member{User: a, SSRC: 1, Queue: &countingQueue{}})
	r.Join(ch, Member{User: b, SSRC: 2, Queue: &countingQueue{}})
	r.Join(ch, Member{User: c, SSRC: 3, Queue: &countingQueue{}})

	targets := r.FanoutTargets(a)
	require.Len(t, targets, 2)
	for _, target := range targets {
		assert.NotEqual(t, a, target.User)
	}
}

func TestLookupBySSRC(t *testing.T) {
	t.Parallel()
	r := New()
	ch := identifiers.NewChannelID()
	a := identifiers.NewUserID()
	r.Join(ch, Member{User: a, SSRC: 42, Queue: &countingQueue{}})

	m, ok := r.Lookup(42)
	require.True(t, ok)
	assert.Equal(t, a, m.User)
	assert.Equal(t, ch, m.Channel)
}

func TestLookupUnknownSSRC(t *testing.T) {
	t.Parallel()
	r := New()
	_, ok := r.Lookup(999)
	assert.False(t, ok)
}

func TestLeaveRemovesFromBothIndices(t *testing.T) {
	t.Parallel()
	r := New()
	ch := identifiers.NewChannelID()
	a, b := identifiers.NewUserID(), identifiers.NewUserID()
	r.Join(ch, Member{User: a, SSRC: 1, Queue: &countingQueue{}})
	r.Join(ch, Member{User: b, SSRC: 2, Queue: &countingQueue{}})

	r.Leave(a)

	_, ok := r.Lookup(1)
	assert.False(t, ok)
	assert.NotContains(t, r.ChannelMembers(ch), a)
	assert.Contains(t, r.ChannelMembers(ch), b)

	targets := r.FanoutTargets(b)
	assert.Empty(t, targets)
}

func TestJoinMovesMemberBetweenChannels(t *testing.T) {
	t.Parallel()
	r := New()
	ch1, ch2 := identifiers.NewChannelID(), identifiers.NewChannelID()
	a := identifiers.NewUserID()

	r.Join(ch1, Member{User: a, SSRC: 7, Queue: &countingQueue{}})
	r.Join(ch2, Member{User: a, SSRC: 7, Queue: &countingQueue{}})

	assert.NotContains(t, r.ChannelMembers(ch1), a)
	assert.Contains(t, r.ChannelMembers(ch2), a)
}

func TestBindAddrRecordsFirstDatagramSourceOnly(t *testing.T) {
	t.Parallel()
	r := New()
	ch := identifiers.NewChannelID()
	a := identifiers.NewUserID()
	r.Join(ch, Member{User: a, SSRC: 9, Queue: &countingQueue{}})

	first := &net.UDPAddr{IP: net.ParseIP("203.0.113.1"), Port: 4000}
	r.BindAddr(9, first)
	m, ok := r.Lookup(9)
	require.True(t, ok)
	assert.Equal(t, first, m.UDPAddr)

	second := &net.UDPAddr{IP: net.ParseIP("203.0.113.2"), Port: 4001}
	r.BindAddr(9, second)
	m, ok = r.Lookup(9)
	require.True(t, ok)
	assert.Equal(t, first, m.UDPAddr, "BindAddr must not rebind an already-bound SSRC")
}

func TestMemberOfResolvesCurrentChannel(t *testing.T) {
	t.Parallel()
	r := New()
	ch := identifiers.NewChannelID()
	a := identifiers.NewUserID()
	r.Join(ch, Member{User: a, SSRC: 5, Queue: &countingQueue{}})

	m, ok := r.MemberOf(a)
	require.True(t, ok)
	assert.Equal(t, ch, m.Channel)
	assert.Equal(t, uint32(5), m.SSRC)

	r.Leave(a)
	_, ok = r.MemberOf(a)
	assert.False(t, ok)
}

func TestBindAddrUnknownSSRCIsNoOp(t *testing.T) {
	t.Parallel()
	r := New()
	r.BindAddr(123, &net.UDPAddr{IP: net.ParseIP("203.0.113.1"), Port: 4000})
	_, ok := r.Lookup(123)
	assert.False(t, ok)
}
