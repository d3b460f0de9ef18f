package dsp

import "math"

// VAD is analytic-only: it never mutates samples, only classifies them.
// Activity is asserted when frame energy exceeds a threshold AND the
// zero-crossing rate is in a speech-plausible band; a hangover counter
// keeps the active flag asserted briefly after energy drops, to avoid
// clipping the tail of speech.
type VAD struct {
	energyThreshold float64
	zcrMin          float64
	zcrMax          float64
	hangoverFrames  int

	hangoverRemaining int
	active            bool
}

// NewVAD builds a detector. Typical zcrMin/zcrMax bound the fraction of
// sign changes per sample that's plausible for voiced/unvoiced speech
// (roughly 0.02-0.35 for 48kHz speech frames).
func NewVAD(energyThreshold, zcrMin, zcrMax float64, hangoverFrames int) *VAD {
	return &VAD{
		energyThreshold: energyThreshold,
		zcrMin:          zcrMin,
		zcrMax:          zcrMax,
		hangoverFrames:  hangoverFrames,
	}
}

// Detect classifies one frame without mutating it, updating and
// returning the hangover-extended active flag.
func (v *VAD) Detect(samples []float32) bool {
	if len(samples) == 0 {
		return v.active
	}

	energy := frameRMS(samples)
	zcr := zeroCrossingRate(samples)

	plausibleSpeech := energy > v.energyThreshold && zcr >= v.zcrMin && zcr <= v.zcrMax

	if plausibleSpeech {
		v.active = true
		v.hangoverRemaining = v.hangoverFrames
		return true
	}

	if v.hangoverRemaining > 0 {
		v.hangoverRemaining--
		return true
	}

	v.active = false
	return false
}

// Reset clears hangover/active state.
func (v *VAD) Reset() {
	v.active = false
	v.hangoverRemaining = 0
}

func zeroCrossingRate(samples []float32) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if signOf(samples[i]) != signOf(samples[i-1]) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}

func signOf(v float32) bool { return v >= 0 }

// CalibrationResult is the recommended thresholds derived from ambient
// audio per §4.10's calibration procedure.
type CalibrationResult struct {
	NoiseFloorDB    float64
	GateOpenDB      float64
	GateCloseDB     float64
	VADThresholdRMS float64
}

// CalibrateFromSamples computes per-frame RMS over ambient audio split
// into frames of frameLen samples, takes the mean of the lowest 75% of
// frame RMS values as the noise floor, and derives recommended gate and
// VAD thresholds per §4.10.
func CalibrateFromSamples(samples []float32, frameLen int) CalibrationResult {
	if frameLen <= 0 || len(samples) < frameLen {
		frameLen = len(samples)
	}
	if frameLen == 0 {
		return CalibrationResult{}
	}

	var frameRMSValues []float64
	for i := 0; i+frameLen <= len(samples); i += frameLen {
		frameRMSValues = append(frameRMSValues, frameRMS(samples[i:i+frameLen]))
	}
	if len(frameRMSValues) == 0 {
		frameRMSValues = append(frameRMSValues, frameRMS(samples))
	}

	sortedAsc(frameRMSValues)
	keep := int(math.Ceil(float64(len(frameRMSValues)) * 0.75))
	if keep == 0 {
		keep = 1
	}
	var sum float64
	for _, v := range frameRMSValues[:keep] {
		sum += v
	}
	meanRMS := sum / float64(keep)
	floorDB := 20 * math.Log10(math.Max(meanRMS, 1e-5))

	return CalibrationResult{
		NoiseFloorDB:    floorDB,
		GateOpenDB:      floorDB + 6,
		GateCloseDB:     floorDB + 1,
		VADThresholdRMS: 3 * math.Max(meanRMS, 1e-5),
	}
}

func sortedAsc(vals []float64) {
	for i := 1; i < len(vals); i++ {
		for j := i; j > 0 && vals[j-1] > vals[j]; j-- {
			vals[j-1], vals[j] = vals[j], vals[j-1]
		}
	}
}
