package handlers

import (
	"github.com/speakeasy-rtc/speakeasy/internal/config"
	"github.com/speakeasy-rtc/speakeasy/internal/identifiers"
	"github.com/speakeasy-rtc/speakeasy/internal/router"
	"github.com/speakeasy-rtc/speakeasy/internal/signaling"
	"github.com/speakeasy-rtc/speakeasy/internal/voice"
)

// VoiceInitRequest carries the caller's advertised UDP source, used as a
// hint only — the server binds the actual endpoint from the first
// authenticated datagram it receives on that SSRC (§3 cross-plane seam).
type VoiceInitRequest struct {
	ClientUDPPort int `json:"client_udp_port,omitempty"`
}

// VoiceInitResponse carries everything the client needs to start sending
// and receiving voice datagrams (§4.9).
type VoiceInitResponse struct {
	ServerUDPPort       int                      `json:"server_udp_port"`
	SSRC                uint32                   `json:"ssrc"`
	Codec               string                   `json:"codec"`
	CryptoMode          config.CryptoMode        `json:"crypto_mode"`
	ServerDTLSFingerprint string                 `json:"server_dtls_fingerprint,omitempty"`
}

// VoiceInit allocates an SSRC, registers the caller's voice-routing
// state against their current channel, and returns the parameters the
// client needs to start exchanging UDP voice packets.
func (d *Dependencies) VoiceInit(sess *signaling.Session, req signaling.Envelope) (any, *signaling.WireError) {
	ch := sess.Channel()
	if ch.IsNil() {
		return nil, &signaling.WireError{Code: signaling.ErrCodeBadInput, Message: "must join a channel before VoiceInit"}
	}

	ssrc := d.allocateSSRC()
	d.Router.Join(ch, router.Member{
		User:  sess.ID,
		SSRC:  ssrc,
		Queue: d.voiceQueue(sess.ID),
	})

	return VoiceInitResponse{
		ServerUDPPort: d.VoiceUDPPort,
		SSRC:          ssrc,
		Codec:         "opus",
		CryptoMode:    d.CryptoMode,
	}, nil
}

// VoiceDisconnectResponse acknowledges a VoiceDisconnect. Per an
// explicit Open Question decision (flagged in spec.md §9), this is a
// dedicated ack type rather than reusing VoiceReady/VoiceInitResponse
// with zeroed fields.
type VoiceDisconnectResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

// VoiceDisconnect tears down the caller's voice-routing state without
// affecting their control-plane session.
func (d *Dependencies) VoiceDisconnect(sess *signaling.Session, req signaling.Envelope) (any, *signaling.WireError) {
	d.Router.Leave(sess.ID)
	if d.Voice != nil {
		d.Voice.Unregister(sess.ID)
	}
	return VoiceDisconnectResponse{Acknowledged: true}, nil
}

// voiceQueue builds the router.SendQueue a new voice session forwards
// ciphertext through. With a live engine this is a UDP-backed queue the
// engine drains toward the recipient's bound endpoint; in tests that
// never start one, it's an inert queue nobody drains, which still
// satisfies router.Member's Queue field.
func (d *Dependencies) voiceQueue(user identifiers.UserID) router.SendQueue {
	if d.Voice != nil {
		return d.Voice.RegisterSendQueue(user)
	}
	return voice.NewPacketQueue(voice.DefaultQueueDepth)
}
