package dsp

// EchoCanceller subtracts an attenuated, delayed copy of the speaker's
// output from the capture signal: ref ring buffer of speaker output,
// subtract strength*ref[now-delay-i] per sample. Delay is coarse and
// configurable, matching a simple fixed-delay echo suppressor rather
// than a full adaptive-filter AEC.
type EchoCanceller struct {
	enabled bool

	strength   float64
	delayFrame int // delay expressed in samples

	ring    []float32
	writeAt int
}

// NewEchoCanceller builds a canceller with the given subtraction strength
// and delay (in samples) against a ring buffer sized to hold at least
// that much history.
func NewEchoCanceller(strength float64, delaySamples int) *EchoCanceller {
	ringSize := delaySamples * 2
	if ringSize < 1 {
		ringSize = 1
	}
	return &EchoCanceller{
		enabled:    true,
		strength:   strength,
		delayFrame: delaySamples,
		ring:       make([]float32, ringSize),
	}
}

func (e *EchoCanceller) Enabled() bool     { return e.enabled }
func (e *EchoCanceller) SetEnabled(v bool) { e.enabled = v }
func (e *EchoCanceller) Reset() {
	for i := range e.ring {
		e.ring[i] = 0
	}
	e.writeAt = 0
}

// FeedReference appends a block of speaker-output samples to the
// reference ring buffer. Must be called by the host with the speaker's
// output stream in real time for cancellation to track actual playback.
func (e *EchoCanceller) FeedReference(samples []float32) {
	for _, s := range samples {
		e.ring[e.writeAt] = s
		e.writeAt = (e.writeAt + 1) % len(e.ring)
	}
}

// Process subtracts the delayed, attenuated reference from the capture
// signal in place.
func (e *EchoCanceller) Process(samples []float32) {
	n := len(e.ring)
	if n == 0 {
		return
	}
	for i := range samples {
		refIdx := (e.writeAt - e.delayFrame - (len(samples) - i) + n*4) % n
		ref := e.ring[refIdx]
		samples[i] -= float32(e.strength) * ref
	}
}
