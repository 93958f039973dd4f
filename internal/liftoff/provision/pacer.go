package provision

import "time"

// Pacer inserts a fixed pause between consecutive remote writes so bulk
// creation stays under tracker rate limits. A nil Pacer never pauses.
type Pacer struct {
	interval time.Duration
	sleep    func(time.Duration)
}

// NewPacer returns a Pacer with the given interval. Zero or negative
// intervals disable pacing.
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{interval: interval, sleep: time.Sleep}
}

// Pause blocks for the configured interval.
func (p *Pacer) Pause() {
	if p == nil || p.interval <= 0 {
		return
	}
	p.sleep(p.interval)
}
