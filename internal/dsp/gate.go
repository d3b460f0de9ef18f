package dsp

import "math"

// NoiseGate is the hysteretic gate: opens above openDB, closes below
// closeDB, with independent attack/release smoothing on the gain.
type NoiseGate struct {
	enabled bool

	openDB  float64
	closeDB float64
	attack  float64 // coefficient
	release float64 // coefficient

	gain float64 // smoothed [0,1]
	open bool
}

// NewNoiseGate builds a gate with the given thresholds (dBFS) and
// attack/release time constants (seconds).
func NewNoiseGate(openDB, closeDB, attackSeconds, releaseSeconds float64) *NoiseGate {
	return &NoiseGate{
		enabled: true,
		openDB:  openDB,
		closeDB: closeDB,
		attack:  expCoeff(attackSeconds, SampleRate),
		release: expCoeff(releaseSeconds, SampleRate),
		gain:    0,
	}
}

func (g *NoiseGate) Enabled() bool     { return g.enabled }
func (g *NoiseGate) SetEnabled(v bool) { g.enabled = v }
func (g *NoiseGate) Reset() {
	g.gain = 0
	g.open = false
}

// Process applies the gate in place, frame at a time: compute frame RMS
// in dBFS, decide open/close against hysteresis thresholds, and smooth
// the gain toward 1 (open) or 0 (closed) using attack/release
// coefficients.
func (g *NoiseGate) Process(samples []float32) {
	if len(samples) == 0 {
		return
	}
	rmsDB := rmsDBFS(samples)

	if g.open {
		if rmsDB < g.closeDB {
			g.open = false
		}
	} else {
		if rmsDB > g.openDB {
			g.open = true
		}
	}

	target := 0.0
	coeff := g.release
	if g.open {
		target = 1.0
		coeff = g.attack
	}

	for i := range samples {
		g.gain = coeff*g.gain + (1-coeff)*target
		samples[i] = float32(float64(samples[i]) * g.gain)
	}
}

// rmsDBFS computes the RMS level of a frame in dBFS.
func rmsDBFS(samples []float32) float64 {
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	return 20 * math.Log10(math.Max(rms, 1e-10))
}
