// Package stall flags periods without transcript growth.
package stall

import "time"

// Detector tracks the last time the transcript grew and raises a one-shot
// stall signal when growth stops for longer than a threshold. The signal does
// not re-fire until the next growth event resets it.
type Detector struct {
	clock      func() time.Time
	lastGrowth time.Time
	raised     bool
}

// New returns a detector primed as if growth just happened. A nil clock
// defaults to time.Now.
func New(clock func() time.Time) *Detector {
	if clock == nil {
		clock = time.Now
	}
	return &Detector{clock: clock, lastGrowth: clock()}
}

// Growth records a transcript-growth event and re-arms the detector.
func (d *Detector) Growth() {
	d.lastGrowth = d.clock()
	d.raised = false
}

// CheckStalled reports whether the time since the last growth event has
// reached threshold. It returns true at most once per stall.
func (d *Detector) CheckStalled(threshold time.Duration) bool {
	if d.raised {
		return false
	}
	if d.clock().Sub(d.lastGrowth) >= threshold {
		d.raised = true
		return true
	}
	return false
}
