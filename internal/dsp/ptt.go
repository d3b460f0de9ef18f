package dsp

// PTTMode selects how the PTT gate decides whether a frame is
// transmitted.
type PTTMode int

const (
	PTTHold PTTMode = iota
	PTTToggle
	PTTVoiceActivation
)

// PTTGate runs after VAD per §4.10: muted overrides all modes; when not
// transmitting, the frame is dropped before encoding so the server never
// sees it.
type PTTGate struct {
	mode   PTTMode
	muted  bool
	held   bool // Hold mode: key currently pressed
	toggle bool // Toggle mode: currently toggled on
	vad    *VAD
}

// NewPTTGate builds a gate in the given mode. vad is required only for
// PTTVoiceActivation mode; pass nil otherwise.
func NewPTTGate(mode PTTMode, vad *VAD) *PTTGate {
	return &PTTGate{mode: mode, vad: vad}
}

// SetMuted overrides all transmission regardless of mode.
func (g *PTTGate) SetMuted(muted bool) { g.muted = muted }

// SetHeld reports the physical PTT key state, used by PTTHold.
func (g *PTTGate) SetHeld(held bool) { g.held = held }

// ToggleKeyPress flips the toggle state, used by PTTToggle.
func (g *PTTGate) ToggleKeyPress() { g.toggle = !g.toggle }

// ShouldTransmit decides, given the current frame, whether it should be
// encoded and sent. samples is only consulted in PTTVoiceActivation mode.
func (g *PTTGate) ShouldTransmit(samples []float32) bool {
	if g.muted {
		return false
	}
	switch g.mode {
	case PTTHold:
		return g.held
	case PTTToggle:
		return g.toggle
	case PTTVoiceActivation:
		if g.vad == nil {
			return false
		}
		return g.vad.Detect(samples)
	default:
		return false
	}
}
