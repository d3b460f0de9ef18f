// Package congestion implements the per-receiver bitrate controller
// (§4.8): an AIMD-style policy that turns {loss_rate, rtt_ewma,
// buffer_depth} into a suggested encoder bitrate and a jitter-buffer
// widen hint, without the server ever re-encoding media itself.
package congestion

import "time"

// Defaults, in bits per second, per a typical Opus voice deployment.
const (
	DefaultFloorBPS   = 8_000
	DefaultCeilingBPS = 64_000
	DefaultStartBPS   = 32_000

	// increaseFactor is applied once per RTT when conditions are good.
	increaseFactor = 1.05
	// decreaseFactor is applied on moderate loss/RTT spikes (AIMD-style).
	decreaseFactor = 0.5

	lossLowThreshold  = 0.02
	lossHighThreshold = 0.10
)

// Signal is one receiver's observed network conditions.
type Signal struct {
	LossRate    float64 // fraction in [0,1]
	RTTEWMA     time.Duration
	BufferDepth time.Duration
}

// Suggestion is the controller's output for one receiver.
type Suggestion struct {
	BitrateBPS  int
	WidenJitter bool
	EnableFEC   bool
}

// Controller tracks one receiver's bitrate state across updates.
type Controller struct {
	floorBPS   int
	ceilingBPS int
	bitrate    int
	lastRTT    time.Duration
	sustained  int // consecutive severe-loss observations
}

// New builds a Controller with default floor/ceiling/start bitrate.
func New() *Controller {
	return NewWithLimits(DefaultFloorBPS, DefaultCeilingBPS, DefaultStartBPS)
}

// NewWithLimits builds a Controller with explicit floor/ceiling/start.
func NewWithLimits(floorBPS, ceilingBPS, startBPS int) *Controller {
	return &Controller{floorBPS: floorBPS, ceilingBPS: ceilingBPS, bitrate: startBPS}
}

// Update folds in a new observation and returns the resulting suggestion,
// per §4.8's policy table.
func (c *Controller) Update(sig Signal) Suggestion {
	switch {
	case sig.LossRate > lossHighThreshold:
		c.sustained++
		if c.sustained >= 2 {
			c.bitrate = c.floorBPS
		} else {
			c.bitrate = c.decrease()
		}
		return Suggestion{BitrateBPS: c.bitrate, WidenJitter: true, EnableFEC: true}

	case sig.LossRate >= lossLowThreshold || c.rttSpiked(sig.RTTEWMA):
		c.sustained = 0
		c.bitrate = c.decrease()
		c.lastRTT = sig.RTTEWMA
		return Suggestion{BitrateBPS: c.bitrate, WidenJitter: sig.BufferDepth > 0}

	default:
		c.sustained = 0
		c.bitrate = c.increase()
		c.lastRTT = sig.RTTEWMA
		return Suggestion{BitrateBPS: c.bitrate}
	}
}

func (c *Controller) increase() int {
	next := int(float64(c.bitrate) * increaseFactor)
	if next > c.ceilingBPS {
		next = c.ceilingBPS
	}
	if next <= c.bitrate {
		next = c.bitrate + 1
		if next > c.ceilingBPS {
			next = c.ceilingBPS
		}
	}
	return next
}

func (c *Controller) decrease() int {
	next := int(float64(c.bitrate) * decreaseFactor)
	if next < c.floorBPS {
		next = c.floorBPS
	}
	return next
}

// rttSpiked reports whether rtt jumped meaningfully versus the last
// observed RTT. A zero lastRTT (first observation) never counts as a
// spike.
func (c *Controller) rttSpiked(rtt time.Duration) bool {
	if c.lastRTT == 0 {
		return false
	}
	return rtt > c.lastRTT*2
}

// Bitrate returns the controller's current suggested bitrate.
func (c *Controller) Bitrate() int { return c.bitrate }
