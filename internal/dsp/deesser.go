package dsp

import "math"

// DeEsser reduces sibilance: a 1st-order RC high-pass at 4 kHz extracts
// HF energy; when its smoothed RMS exceeds threshold, the full-band
// signal is scaled down with a ratio-limited curve.
type DeEsser struct {
	enabled bool

	hpCoeff   float64
	hpState   float64 // previous input sample, for the 1-pole HPF
	hpPrevOut float64

	smoothedHF float64
	smoothing  float64

	thresholdRMS float64
	ratio        float64
}

// NewDeEsser builds a de-esser with a 4 kHz high-pass corner, the given
// HF-energy threshold RMS, and compression ratio (e.g. 4 means 4:1).
func NewDeEsser(thresholdRMS, ratio float64) *DeEsser {
	const cutoffHz = 4000.0
	rc := 1.0 / (2 * math.Pi * cutoffHz)
	dt := 1.0 / SampleRate
	coeff := rc / (rc + dt)

	return &DeEsser{
		enabled:      true,
		hpCoeff:      coeff,
		smoothing:    0.2,
		thresholdRMS: thresholdRMS,
		ratio:        ratio,
	}
}

func (d *DeEsser) Enabled() bool     { return d.enabled }
func (d *DeEsser) SetEnabled(v bool) { d.enabled = v }
func (d *DeEsser) Reset() {
	d.hpState = 0
	d.hpPrevOut = 0
	d.smoothedHF = 0
}

func (d *DeEsser) Process(samples []float32) {
	if len(samples) == 0 {
		return
	}

	hf := make([]float64, len(samples))
	for i, s := range samples {
		in := float64(s)
		out := d.hpCoeff * (d.hpPrevOut + in - d.hpState)
		d.hpState = in
		d.hpPrevOut = out
		hf[i] = out
	}

	var sum float64
	for _, v := range hf {
		sum += v * v
	}
	hfRMS := math.Sqrt(sum / float64(len(hf)))
	d.smoothedHF = d.smoothedHF + d.smoothing*(hfRMS-d.smoothedHF)

	if d.smoothedHF <= d.thresholdRMS || d.ratio <= 0 {
		return
	}

	excess := d.smoothedHF/d.thresholdRMS - 1
	gain := 1 / (1 + excess*(1-1/d.ratio))
	minGain := 1 / d.ratio
	if gain < minGain {
		gain = minGain
	}
	if gain > 1 {
		gain = 1
	}

	for i := range samples {
		samples[i] = float32(float64(samples[i]) * gain)
	}
}
