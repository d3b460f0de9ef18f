// Package voice implements the UDP voice forwarding engine (§4.9): a
// single ingress task per socket that validates, routes, and fans out
// ciphertext voice packets without ever decrypting them, paired with an
// egress path that drains each recipient's bounded send queue. Grounded
// on the teacher's internal/dmr/servers/hbrp.Server: a UDP read loop that
// republishes every datagram onto an internal pubsub topic, decoupling
// socket I/O from packet handling exactly the way hbrp's listen /
// subscribePackets / subscribeRawPackets split does for DMR repeater
// traffic.
package voice

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/speakeasy-rtc/speakeasy/internal/broadcast"
	"github.com/speakeasy-rtc/speakeasy/internal/config"
	"github.com/speakeasy-rtc/speakeasy/internal/congestion"
	"github.com/speakeasy-rtc/speakeasy/internal/groupkey"
	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
	"github.com/speakeasy-rtc/speakeasy/internal/pubsub"
	"github.com/speakeasy-rtc/speakeasy/internal/router"

	"log/slog"
)

const (
	ingressTopic = "voice:ingress"
	egressTopic  = "voice:egress"

	// maxDatagramSize bounds one read from the socket; Opus frames at
	// 48kHz plus the encrypted payload envelope comfortably fit well
	// under this.
	maxDatagramSize = 1500

	// socketBufferSize is the OS-level read/write buffer requested on
	// the UDP socket, matching the teacher's 1MB hbrp buffer.
	socketBufferSize = 1 << 20
)

// DropCounter records named drop reasons for telemetry (§5: "every drop
// of data ... increments a named counter").
type DropCounter interface {
	IncDropped(reason string)
}

// GroupKeys is the subset of *groupkey.Manager the engine needs: resolving
// an epoch to a key to validate forwarding eligibility, without ever
// decrypting the packet itself.
type GroupKeys interface {
	ForEpoch(ch identifiers.ChannelID, epoch uint32) (*groupkey.Key, error)
}

// Engine is the UDP voice engine (C9).
type Engine struct {
	addr       net.UDPAddr
	conn       *net.UDPConn
	router     *router.Router
	keys       GroupKeys
	ps         pubsub.PubSub
	broadcaster *broadcast.Broadcaster
	cryptoMode config.CryptoMode
	drops      DropCounter

	senders *xsync.Map[uint32, *senderState]
	queues  *xsync.Map[identifiers.UserID, *registeredQueue]

	closeOnce sync.Once
}

type registeredQueue struct {
	queue *PacketQueue
	stop  chan struct{}
}

// New builds an Engine bound to the given UDP port. It does not open the
// socket; call Start for that.
func New(udpPort int, r *router.Router, keys GroupKeys, ps pubsub.PubSub, b *broadcast.Broadcaster, mode config.CryptoMode, drops DropCounter) *Engine {
	return &Engine{
		addr:       net.UDPAddr{Port: udpPort},
		router:     r,
		keys:       keys,
		ps:         ps,
		broadcaster: b,
		cryptoMode: mode,
		drops:      drops,
		senders:    xsync.NewMap[uint32, *senderState](),
		queues:     xsync.NewMap[identifiers.UserID, *registeredQueue](),
	}
}

// Start opens the UDP socket and launches the ingress read loop plus the
// internal pubsub relay tasks.
func (e *Engine) Start(ctx context.Context) error {
	conn, err := net.ListenUDP("udp", &e.addr)
	if err != nil {
		return fmt.Errorf("voice: opening UDP socket: %w", err)
	}
	if err := conn.SetReadBuffer(socketBufferSize); err != nil {
		slog.Warn("voice: setting UDP read buffer", "error", err)
	}
	if err := conn.SetWriteBuffer(socketBufferSize); err != nil {
		slog.Warn("voice: setting UDP write buffer", "error", err)
	}
	e.conn = conn

	slog.Info("voice: UDP engine listening", "port", e.addr.Port)

	go e.relayIngress(ctx)
	go e.relayEgress(ctx)
	go e.readLoop(ctx)

	return nil
}

// Stop closes the UDP socket, ending the read loop.
func (e *Engine) Stop() {
	e.closeOnce.Do(func() {
		if e.conn != nil {
			_ = e.conn.Close()
		}
	})
}

func (e *Engine) readLoop(ctx context.Context) {
	buf := make([]byte, maxDatagramSize)
	for {
		n, remote, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			// Socket closed (Stop) or a transient read error; either
			// way there's nothing left to read from a dead conn.
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		go e.publishIngress(ctx, remote, data)
	}
}

func (e *Engine) publishIngress(ctx context.Context, remote *net.UDPAddr, data []byte) {
	p := RawVoicePacket{Data: data, RemoteIP: remote.IP.String(), RemotePort: remote.Port}
	packed, err := p.MarshalMsg(nil)
	if err != nil {
		slog.Error("voice: marshalling inbound packet", "error", err)
		return
	}
	if err := e.ps.Publish(ingressTopic, packed); err != nil {
		slog.Error("voice: publishing inbound packet", "error", err)
	}
}

func (e *Engine) relayIngress(ctx context.Context) {
	sub := e.ps.Subscribe(ingressTopic)
	defer sub.Close()
	for payload := range sub.Channel() {
		var p RawVoicePacket
		if _, err := p.UnmarshalMsg(payload); err != nil {
			slog.Error("voice: unmarshalling inbound packet", "error", err)
			continue
		}
		e.handleDatagram(&net.UDPAddr{IP: net.ParseIP(p.RemoteIP), Port: p.RemotePort}, p.Data)
	}
}

func (e *Engine) relayEgress(ctx context.Context) {
	sub := e.ps.Subscribe(egressTopic)
	defer sub.Close()
	for payload := range sub.Channel() {
		var p RawVoicePacket
		if _, err := p.UnmarshalMsg(payload); err != nil {
			slog.Error("voice: unmarshalling outbound packet", "error", err)
			continue
		}
		if _, err := e.conn.WriteToUDP(p.Data, &net.UDPAddr{IP: net.ParseIP(p.RemoteIP), Port: p.RemotePort}); err != nil {
			slog.Warn("voice: writing outbound packet", "error", err)
		}
	}
}

func (e *Engine) publishEgress(addr *net.UDPAddr, data []byte) error {
	p := RawVoicePacket{Data: data, RemoteIP: addr.IP.String(), RemotePort: addr.Port}
	packed, err := p.MarshalMsg(nil)
	if err != nil {
		return err
	}
	return e.ps.Publish(egressTopic, packed)
}

// handleDatagram implements §4.9's five ingress steps for one inbound
// voice datagram, already resolved to its originating address.
func (e *Engine) handleDatagram(remote *net.UDPAddr, data []byte) {
	ssrc, ok := parseSSRC(data, e.cryptoMode)
	if !ok {
		e.drop("bad_format")
		return
	}

	member, ok := e.router.Lookup(ssrc)
	if !ok || member.Channel.IsNil() {
		e.drop("unknown_ssrc")
		return
	}

	switch {
	case member.UDPAddr == nil:
		e.router.BindAddr(ssrc, remote)
	case !sameUDPAddr(member.UDPAddr, remote):
		e.drop("spoofed_source")
		return
	}

	var epoch uint32
	if e.cryptoMode != config.CryptoModeNone {
		epoch, ok = groupkey.ParseEpoch(data)
		if !ok {
			e.drop("bad_format")
			return
		}
		if _, err := e.keys.ForEpoch(member.Channel, epoch); err != nil {
			e.drop("epoch_mismatch")
			return
		}
	}

	if seq, ok := parseSeq(data, e.cryptoMode); ok {
		state, _ := e.senders.LoadOrCompute(ssrc, func() (*senderState, bool) { return newSenderState(), false })
		if suggestion, changed := state.observe(seq, data); changed {
			e.suggestBitrate(member.User, suggestion)
		}
	}

	for _, target := range e.router.FanoutTargets(member.User) {
		if !target.Queue.Enqueue(data) {
			e.drop("queue_overflow")
		}
	}
}

type bitrateSuggestion struct {
	BitrateBPS  int  `json:"bitrate_bps"`
	WidenJitter bool `json:"widen_jitter"`
	EnableFEC   bool `json:"enable_fec"`
}

func (e *Engine) suggestBitrate(user identifiers.UserID, s congestion.Suggestion) {
	if e.broadcaster == nil {
		return
	}
	payload, err := json.Marshal(bitrateSuggestion{BitrateBPS: s.BitrateBPS, WidenJitter: s.WidenJitter, EnableFEC: s.EnableFEC})
	if err != nil {
		return
	}
	e.broadcaster.DeliverToSession(user, broadcast.Event{Kind: broadcast.KindCongestion, Payload: payload})
}

func (e *Engine) drop(reason string) {
	if e.drops != nil {
		e.drops.IncDropped(reason)
	}
}

// RegisterSendQueue builds and starts draining a new bounded voice send
// queue for user, for use as their router.Member's SendQueue. The
// returned queue resolves the recipient's live UDP address at write
// time via the router, rather than capturing it once at registration.
func (e *Engine) RegisterSendQueue(user identifiers.UserID) *PacketQueue {
	q := NewPacketQueue(DefaultQueueDepth)
	rq := &registeredQueue{queue: q, stop: make(chan struct{})}
	e.queues.Store(user, rq)
	go e.drain(user, rq)
	return q
}

// Unregister stops user's drain goroutine and forgets their queue. Safe
// to call even if user was never registered.
func (e *Engine) Unregister(user identifiers.UserID) {
	rq, ok := e.queues.LoadAndDelete(user)
	if !ok {
		return
	}
	close(rq.stop)
}

func (e *Engine) drain(user identifiers.UserID, rq *registeredQueue) {
	for {
		select {
		case <-rq.stop:
			return
		case packet := <-rq.queue.ch:
			member, ok := e.router.MemberOf(user)
			if !ok || member.UDPAddr == nil {
				continue
			}
			if err := e.publishEgress(member.UDPAddr, packet); err != nil {
				slog.Error("voice: publishing egress packet", "user", user, "error", err)
			}
		}
	}
}

func parseSSRC(data []byte, mode config.CryptoMode) (uint32, bool) {
	if mode == config.CryptoModeNone {
		if len(data) < 4 {
			return 0, false
		}
		return binary.BigEndian.Uint32(data[0:4]), true
	}
	return groupkey.ParseSSRC(data)
}

func parseSeq(data []byte, mode config.CryptoMode) (uint32, bool) {
	if mode == config.CryptoModeNone {
		if len(data) < 8 {
			return 0, false
		}
		return binary.BigEndian.Uint32(data[4:8]), true
	}
	return groupkey.ParseSeq(data)
}

func sameUDPAddr(a, b *net.UDPAddr) bool {
	return a.IP.Equal(b.IP) && a.Port == b.Port
}
