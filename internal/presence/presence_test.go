package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
)

type fakeQueue struct {
	frames [][]byte
}

func (f *fakeQueue) Enqueue(frame []byte) bool {
	f.frames = append(f.frames, frame)
	return true
}

func TestInsertAndGet(t *testing.T) {
	t.Parallel()

	m := New()
	u := identifiers.NewUserID()
	m.Insert(u, &fakeQueue{}, nil)

	entry, ok := m.Get(u)
	require.True(t, ok)
	assert.Equal(t, u, entry.User)
	assert.True(t, entry.Channel.IsNil())
	assert.Equal(t, 1, m.OnlineCount())
}

func TestSetChannelSingleMembership(t *testing.T) {
	t.Parallel()

	m := New()
	u := identifiers.NewUserID()
	ch1 := identifiers.NewChannelID()
	ch2 := identifiers.NewChannelID()
	m.Insert(u, &fakeQueue{}, nil)

	require.True(t, m.SetChannel(u, ch1))
	assert.Contains(t, m.Members(ch1), u)

	// Moving to ch2 must remove u from ch1's member set (single active
	// channel per connection).
	require.True(t, m.SetChannel(u, ch2))
	assert.NotContains(t, m.Members(ch1), u)
	assert.Contains(t, m.Members(ch2), u)
}

func TestSetChannelUnknownUser(t *testing.T) {
	t.Parallel()

	m := New()
	ok := m.SetChannel(identifiers.NewUserID(), identifiers.NewChannelID())
	assert.False(t, ok)
}

func TestRemoveClearsMembership(t *testing.T) {
	t.Parallel()

	m := New()
	u := identifiers.NewUserID()
	ch := identifiers.NewChannelID()
	m.Insert(u, &fakeQueue{}, nil)
	require.True(t, m.SetChannel(u, ch))

	m.Remove(u)

	assert.False(t, m.IsOnline(u))
	assert.NotContains(t, m.Members(ch), u)
	assert.Equal(t, 0, m.OnlineCount())
}

func TestMembersUnknownChannelIsEmpty(t *testing.T) {
	t.Parallel()

	m := New()
	assert.Empty(t, m.Members(identifiers.NewChannelID()))
}
