package motion

import "time"

// Clock returns microseconds since an arbitrary fixed epoch. It must be
// monotonic and never return 0.
type Clock func() uint64

// MonotonicClock starts a Clock at the current instant.
func MonotonicClock() Clock {
	epoch := time.Now()
	return func() uint64 {
		// time.Since uses the monotonic reading.
		return uint64(time.Since(epoch)/time.Microsecond) + 1
	}
}

// channelClock remembers the previous timestamp of one channel and the
// clock domain it was taken in.
type channelClock struct {
	last     uint64
	source   Source
	hardware bool
}

// stamp returns the sample timestamp: the hardware one when present,
// otherwise the wall clock.
func stamp(hw uint64, now Clock) (ts uint64, hardware bool) {
	if hw != 0 {
		return hw, true
	}
	return now(), false
}

// advance records ts as the latest sample and returns the microseconds
// since the previous one. The delta is 0 for the first sample, after a
// change of clock domain, and when time went backward. Within one domain
// last never decreases; a change of domain restarts it.
func (c *channelClock) advance(ts uint64, src Source, hardware bool) uint64 {
	sameDomain := c.last != 0 && c.source == src && c.hardware == hardware
	if !sameDomain {
		c.last = ts
		c.source = src
		c.hardware = hardware
		return 0
	}
	if ts <= c.last {
		return 0
	}
	delta := ts - c.last
	c.last = ts
	return delta
}
