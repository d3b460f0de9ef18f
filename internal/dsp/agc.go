package dsp

// AGC is the automatic gain controller: drives per-sample RMS toward a
// target, with fast attack (gain decreasing) and slow release (gain
// increasing), clamped to [minGain,maxGain] and hard-limited at ±0.95.
type AGC struct {
	enabled bool

	targetRMS float64
	minGain   float64
	maxGain   float64
	attack    float64
	release   float64

	gain float64
}

const agcLimiterCeiling = 0.95

// NewAGC builds an AGC. targetRMS defaults to 0.1 per §4.10.
func NewAGC(targetRMS, minGain, maxGain, attackSeconds, releaseSeconds float64) *AGC {
	return &AGC{
		enabled:   true,
		targetRMS: targetRMS,
		minGain:   minGain,
		maxGain:   maxGain,
		attack:    expCoeff(attackSeconds, SampleRate),
		release:   expCoeff(releaseSeconds, SampleRate),
		gain:      1.0,
	}
}

func (a *AGC) Enabled() bool     { return a.enabled }
func (a *AGC) SetEnabled(v bool) { a.enabled = v }
func (a *AGC) Reset()            { a.gain = 1.0 }

func (a *AGC) Process(samples []float32) {
	if len(samples) == 0 {
		return
	}
	rms := frameRMS(samples)
	if rms < 1e-9 {
		return
	}

	desired := a.targetRMS / rms
	if desired > a.maxGain {
		desired = a.maxGain
	}
	if desired < a.minGain {
		desired = a.minGain
	}

	coeff := a.release
	if desired < a.gain {
		coeff = a.attack // gain must drop quickly to avoid clipping
	}

	for i := range samples {
		a.gain = coeff*a.gain + (1-coeff)*desired
		out := float64(samples[i]) * a.gain
		if out > agcLimiterCeiling {
			out = agcLimiterCeiling
		} else if out < -agcLimiterCeiling {
			out = -agcLimiterCeiling
		}
		samples[i] = float32(out)
	}
}
