// Package dsp implements the client-side capture processing chain
// (§4.10): noise gate, noise suppressor, AGC, echo canceller, de-esser,
// and VAD, run in that fixed order on 10- or 20-ms frames at 48 kHz mono,
// followed by the PTT gate.
package dsp

import "math"

// SampleRate is the only rate this chain is specified for.
const SampleRate = 48000

// Processor is the contract every stage in the chain implements.
type Processor interface {
	Process(samples []float32)
	Reset()
	Enabled() bool
	SetEnabled(bool)
}

// Chain runs its Processors in the fixed order they were given.
type Chain struct {
	stages []Processor
}

// NewChain builds a Chain in canonical order: gate, suppressor, agc,
// echo canceller, de-esser. VAD is analytic-only and is run separately
// via Chain.VAD since it doesn't mutate samples.
func NewChain(gate *NoiseGate, suppressor *NoiseSuppressor, agc *AGC, echo *EchoCanceller, deesser *DeEsser) *Chain {
	return &Chain{stages: []Processor{gate, suppressor, agc, echo, deesser}}
}

// Process runs every enabled stage in order, in place.
func (c *Chain) Process(samples []float32) {
	for _, s := range c.stages {
		if s.Enabled() {
			s.Process(samples)
		}
	}
}

// Reset resets every stage's internal state.
func (c *Chain) Reset() {
	for _, s := range c.stages {
		s.Reset()
	}
}

// expCoeff computes the standard one-pole smoothing coefficient for a
// time constant t (seconds) at sample rate fs, exp(-1/(t*fs)), used by
// every stage below for attack/release smoothing.
func expCoeff(t, fs float64) float64 {
	return math.Exp(-1 / (t * fs))
}
