// Package gpio drives the sampling toggle from a physical switch wired to
// a GPIO input line.
package gpio

import (
	"log"
	"sync"
)

// Sampler receives the switch position.
type Sampler interface {
	SetSampling(on bool)
}

type Options struct {
	Chip      string
	Line      int
	ActiveLow bool
}

// Switch forwards level changes of one input line to a Sampler.
type Switch struct {
	target Sampler
	name   string

	mu    sync.Mutex
	have  bool
	state bool

	closer func() error
}

func newSwitch(target Sampler, name string) *Switch {
	return &Switch{target: target, name: name}
}

// apply forwards an active (true) or inactive level, ignoring repeats.
func (s *Switch) apply(active bool) {
	s.mu.Lock()
	if s.have && s.state == active {
		s.mu.Unlock()
		return
	}
	s.have = true
	s.state = active
	s.mu.Unlock()

	log.Printf("gpio: %s switched sampling %s", s.name, onOff(active))
	s.target.SetSampling(active)
}

// State reports the last level seen.
func (s *Switch) State() (active, ok bool) {
	if s == nil {
		return false, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.have
}

func (s *Switch) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	err := s.closer()
	s.closer = nil
	return err
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
