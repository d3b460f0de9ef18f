package voice

import (
	"net"
	"testing"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speakeasy-rtc/speakeasy/internal/config"
	"github.com/speakeasy-rtc/speakeasy/internal/groupkey"
	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
	"github.com/speakeasy-rtc/speakeasy/internal/pubsub"
	"github.com/speakeasy-rtc/speakeasy/internal/router"
)

// capturingQueue records every packet handed to it, for asserting on
// fanout targets and counts.
type capturingQueue struct {
	packets [][]byte
}

func (q *capturingQueue) Enqueue(packet []byte) bool {
	q.packets = append(q.packets, packet)
	return true
}

type fakeDropCounter struct {
	counts map[string]int
}

func newFakeDropCounter() *fakeDropCounter { return &fakeDropCounter{counts: make(map[string]int)} }

func (f *fakeDropCounter) IncDropped(reason string) { f.counts[reason]++ }

// fakePubSub records every Publish call per topic; Subscribe is never
// exercised by these tests since they drive handleDatagram and the
// egress drain loop directly rather than through the relay goroutines.
type fakePubSub struct {
	mu        chan struct{}
	published map[string][][]byte
}

func newFakePubSub() *fakePubSub {
	return &fakePubSub{mu: make(chan struct{}, 1), published: make(map[string][][]byte)}
}

func (f *fakePubSub) lock()   { f.mu <- struct{}{} }
func (f *fakePubSub) unlock() { <-f.mu }

func (f *fakePubSub) Publish(topic string, message []byte) error {
	f.lock()
	defer f.unlock()
	f.published[topic] = append(f.published[topic], message)
	return nil
}

func (f *fakePubSub) Subscribe(string) pubsub.Subscription { return noopSubscription{} }
func (f *fakePubSub) Close() error                         { return nil }

func (f *fakePubSub) count(topic string) int {
	f.lock()
	defer f.unlock()
	return len(f.published[topic])
}

type noopSubscription struct{}

func (noopSubscription) Close() error           { return nil }
func (noopSubscription) Channel() <-chan []byte { return nil }

func newTestEngine(r *router.Router, keys GroupKeys, mode config.CryptoMode, drops DropCounter) *Engine {
	return &Engine{
		router:     r,
		keys:       keys,
		cryptoMode: mode,
		drops:      drops,
		senders:    xsync.NewMap[uint32, *senderState](),
		queues:     xsync.NewMap[identifiers.UserID, *registeredQueue](),
	}
}

func sealedPacket(t *testing.T, key *groupkey.Key, seq, ssrc uint32, plaintext []byte) []byte {
	t.Helper()
	payload, err := groupkey.Seal(key, seq, ssrc, plaintext)
	require.NoError(t, err)
	return payload
}

func TestHandleDatagramFansOutToCoMembersExcludingSender(t *testing.T) {
	r := router.New()
	keys := groupkey.New(config.GroupKeyAlgorithmChaCha20Poly1305)
	ch := identifiers.NewChannelID()
	key, err := keys.Create(ch)
	require.NoError(t, err)

	userA, userB := identifiers.NewUserID(), identifiers.NewUserID()
	qa, qb := &capturingQueue{}, &capturingQueue{}
	r.Join(ch, router.Member{User: userA, SSRC: 10, Queue: qa})
	r.Join(ch, router.Member{User: userB, SSRC: 20, Queue: qb})

	e := newTestEngine(r, keys, config.CryptoModeE2E, nil)

	addr := &net.UDPAddr{IP: net.ParseIP("203.0.113.5"), Port: 5000}
	packet := sealedPacket(t, key, 1, 10, []byte("opus-frame"))
	e.handleDatagram(addr, packet)

	require.Len(t, qb.packets, 1)
	assert.Equal(t, packet, qb.packets[0])
	assert.Empty(t, qa.packets, "sender must never receive its own packet back")

	member, ok := r.Lookup(10)
	require.True(t, ok)
	assert.Equal(t, addr, member.UDPAddr, "first datagram's source binds the member's UDP endpoint")
}

func TestHandleDatagramDropsSecondSenderImpersonatingBoundSSRC(t *testing.T) {
	r := router.New()
	keys := groupkey.New(config.GroupKeyAlgorithmChaCha20Poly1305)
	ch := identifiers.NewChannelID()
	key, err := keys.Create(ch)
	require.NoError(t, err)

	userA, userB := identifiers.NewUserID(), identifiers.NewUserID()
	qa, qb := &capturingQueue{}, &capturingQueue{}
	r.Join(ch, router.Member{User: userA, SSRC: 10, Queue: qa})
	r.Join(ch, router.Member{User: userB, SSRC: 20, Queue: qb})

	drops := newFakeDropCounter()
	e := newTestEngine(r, keys, config.CryptoModeE2E, drops)

	first := &net.UDPAddr{IP: net.ParseIP("203.0.113.5"), Port: 5000}
	e.handleDatagram(first, sealedPacket(t, key, 1, 10, []byte("frame-1")))
	require.Len(t, qb.packets, 1)

	spoofer := &net.UDPAddr{IP: net.ParseIP("198.51.100.9"), Port: 6000}
	e.handleDatagram(spoofer, sealedPacket(t, key, 2, 10, []byte("frame-2")))

	assert.Len(t, qb.packets, 1, "spoofed datagram must not be forwarded")
	assert.Equal(t, 1, drops.counts["spoofed_source"])
}

func TestHandleDatagramDropsWhenEpochOutsideRetainedWindow(t *testing.T) {
	r := router.New()
	keys := groupkey.New(config.GroupKeyAlgorithmChaCha20Poly1305)
	ch := identifiers.NewChannelID()
	staleKey, err := keys.Create(ch)
	require.NoError(t, err)

	userA, userB := identifiers.NewUserID(), identifiers.NewUserID()
	qa, qb := &capturingQueue{}, &capturingQueue{}
	r.Join(ch, router.Member{User: userA, SSRC: 10, Queue: qa})
	r.Join(ch, router.Member{User: userB, SSRC: 20, Queue: qb})

	// Rotate past the retained-epoch grace window, as happens after a
	// departed member's old packets should no longer be forwardable
	// (§8 scenario 3: key rotation on leave).
	for i := 0; i < groupkey.RetainedEpochs+1; i++ {
		_, err := keys.Rotate(ch)
		require.NoError(t, err)
	}

	drops := newFakeDropCounter()
	e := newTestEngine(r, keys, config.CryptoModeE2E, drops)

	addr := &net.UDPAddr{IP: net.ParseIP("203.0.113.5"), Port: 5000}
	e.handleDatagram(addr, sealedPacket(t, staleKey, 1, 10, []byte("old-epoch-frame")))

	assert.Empty(t, qb.packets)
	assert.Equal(t, 1, drops.counts["epoch_mismatch"])
}

func TestHandleDatagramForwardsCurrentEpochAfterRotation(t *testing.T) {
	r := router.New()
	keys := groupkey.New(config.GroupKeyAlgorithmChaCha20Poly1305)
	ch := identifiers.NewChannelID()
	_, err := keys.Create(ch)
	require.NoError(t, err)

	userA, userB := identifiers.NewUserID(), identifiers.NewUserID()
	qa, qb := &capturingQueue{}, &capturingQueue{}
	r.Join(ch, router.Member{User: userA, SSRC: 10, Queue: qa})
	r.Join(ch, router.Member{User: userB, SSRC: 20, Queue: qb})

	newKey, err := keys.Rotate(ch)
	require.NoError(t, err)

	e := newTestEngine(r, keys, config.CryptoModeE2E, nil)
	addr := &net.UDPAddr{IP: net.ParseIP("203.0.113.5"), Port: 5000}
	e.handleDatagram(addr, sealedPacket(t, newKey, 1, 10, []byte("new-epoch-frame")))

	require.Len(t, qb.packets, 1)
}

func TestHandleDatagramUnencryptedFallbackForwardsVerbatim(t *testing.T) {
	r := router.New()
	ch := identifiers.NewChannelID()
	userA, userB := identifiers.NewUserID(), identifiers.NewUserID()
	qa, qb := &capturingQueue{}, &capturingQueue{}
	r.Join(ch, router.Member{User: userA, SSRC: 77, Queue: qa})
	r.Join(ch, router.Member{User: userB, SSRC: 88, Queue: qb})

	e := newTestEngine(r, nil, config.CryptoModeNone, nil)

	// ssrc(4) || seq(4) || ts(4) || codec(1) || flags(1) || len(2) || payload
	packet := make([]byte, 0, 16)
	packet = appendU32(packet, 77)
	packet = appendU32(packet, 1)
	packet = appendU32(packet, 960)
	packet = append(packet, 0x01, 0x00)
	packet = appendU16(packet, 4)
	packet = append(packet, []byte("opus")...)

	addr := &net.UDPAddr{IP: net.ParseIP("203.0.113.5"), Port: 5000}
	e.handleDatagram(addr, packet)

	require.Len(t, qb.packets, 1)
	assert.Equal(t, packet, qb.packets[0])
}

func TestHandleDatagramDropsBadFormatPacket(t *testing.T) {
	r := router.New()
	drops := newFakeDropCounter()
	e := newTestEngine(r, nil, config.CryptoModeNone, drops)

	e.handleDatagram(&net.UDPAddr{IP: net.ParseIP("203.0.113.5"), Port: 5000}, []byte{0x01})
	assert.Equal(t, 1, drops.counts["bad_format"])
}

func TestHandleDatagramDropsUnknownSSRC(t *testing.T) {
	r := router.New()
	drops := newFakeDropCounter()
	e := newTestEngine(r, nil, config.CryptoModeNone, drops)

	packet := make([]byte, 0, 12)
	packet = appendU32(packet, 999)
	packet = appendU32(packet, 1)
	packet = appendU32(packet, 1)
	e.handleDatagram(&net.UDPAddr{IP: net.ParseIP("203.0.113.5"), Port: 5000}, packet)
	assert.Equal(t, 1, drops.counts["unknown_ssrc"])
}

func TestSenderStateTelemetryUpdatedOnIngress(t *testing.T) {
	r := router.New()
	keys := groupkey.New(config.GroupKeyAlgorithmChaCha20Poly1305)
	ch := identifiers.NewChannelID()
	key, err := keys.Create(ch)
	require.NoError(t, err)

	userA := identifiers.NewUserID()
	r.Join(ch, router.Member{User: userA, SSRC: 10, Queue: &capturingQueue{}})

	e := newTestEngine(r, keys, config.CryptoModeE2E, nil)
	addr := &net.UDPAddr{IP: net.ParseIP("203.0.113.5"), Port: 5000}

	e.handleDatagram(addr, sealedPacket(t, key, 1, 10, []byte("f1")))
	state, ok := e.senders.Load(10)
	require.True(t, ok)
	assert.True(t, state.haveReport)
}

func TestRegisterSendQueueDrainsToBoundAddressOverPubSub(t *testing.T) {
	r := router.New()
	ch := identifiers.NewChannelID()
	user := identifiers.NewUserID()
	r.Join(ch, router.Member{User: user, SSRC: 1, Queue: &capturingQueue{}})
	r.BindAddr(1, &net.UDPAddr{IP: net.ParseIP("203.0.113.9"), Port: 7000})

	ps := newFakePubSub()
	e := newTestEngine(r, nil, config.CryptoModeE2E, nil)
	e.ps = ps

	q := e.RegisterSendQueue(user)
	q.Enqueue([]byte("ciphertext"))

	require.Eventually(t, func() bool { return ps.count(egressTopic) == 1 }, time.Second, time.Millisecond)

	var got RawVoicePacket
	_, err := got.UnmarshalMsg(ps.published[egressTopic][0])
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.9", got.RemoteIP)
	assert.Equal(t, 7000, got.RemotePort)
	assert.Equal(t, []byte("ciphertext"), got.Data)

	e.Unregister(user)
	_, ok := e.queues.Load(user)
	assert.False(t, ok)
}

func TestRegisterSendQueueDropsUntilMemberIsBound(t *testing.T) {
	r := router.New()
	ch := identifiers.NewChannelID()
	user := identifiers.NewUserID()
	r.Join(ch, router.Member{User: user, SSRC: 2, Queue: &capturingQueue{}})

	ps := newFakePubSub()
	e := newTestEngine(r, nil, config.CryptoModeE2E, nil)
	e.ps = ps

	q := e.RegisterSendQueue(user)
	q.Enqueue([]byte("too-early"))
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, ps.count(egressTopic), "nothing to deliver before the member's endpoint is bound")

	e.Unregister(user)
}

func appendU32(b []byte, v uint32) []byte {
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func appendU16(b []byte, v uint16) []byte {
	return append(b, byte(v>>8), byte(v))
}
