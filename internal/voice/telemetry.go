package voice

import (
	"sync"
	"time"

	"github.com/speakeasy-rtc/speakeasy/internal/congestion"
	"github.com/speakeasy-rtc/speakeasy/internal/jitter"
)

// senderState is the per-SSRC bookkeeping the ingress task feeds from
// every inbound datagram (§4.9 step 4): loss detection via sequence gaps,
// and the sender's own jitter buffer for playback-side synchronisation
// only. Neither ever delays or reorders the forwarding path.
type senderState struct {
	mu sync.Mutex

	buf  *jitter.Buffer
	ctrl *congestion.Controller

	haveSeq    bool
	lastSeq    uint32
	received   uint64
	lost       uint64
	haveReport bool
	lastReport int
}

func newSenderState() *senderState {
	return &senderState{buf: jitter.New(), ctrl: congestion.New()}
}

// observe folds in one inbound packet and returns the congestion
// controller's latest suggestion for this sender's encoder, plus whether
// the suggested bitrate changed since the last call (so the caller only
// notifies the sender when there's something new to say).
func (s *senderState) observe(seq uint32, payload []byte) (suggestion congestion.Suggestion, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf.Insert(jitter.Frame{Seq: seq, Payload: payload}, time.Now())
	s.received++
	if s.haveSeq {
		if gap := int32(seq - s.lastSeq); gap > 1 {
			s.lost += uint64(gap - 1)
		}
	}
	s.haveSeq = true
	s.lastSeq = seq

	var lossRate float64
	if total := s.received + s.lost; total > 0 {
		lossRate = float64(s.lost) / float64(total)
	}
	suggestion = s.ctrl.Update(congestion.Signal{LossRate: lossRate, BufferDepth: s.buf.TargetDelay()})

	changed = !s.haveReport || suggestion.BitrateBPS != s.lastReport
	s.haveReport = true
	s.lastReport = suggestion.BitrateBPS
	return suggestion, changed
}
