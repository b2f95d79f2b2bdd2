package motion

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultInterval is the refresh period when none is configured.
const DefaultInterval = 10 * time.Millisecond

// Service drives State.Refresh from a single goroutine and fans committed
// snapshots out to subscribers.
type Service struct {
	state       *State
	controllers ControllerSource
	interval    time.Duration

	reprobeCh chan chan bool

	subMu sync.Mutex
	subs  []func(Snapshot)

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewService(st *State, controllers ControllerSource, interval time.Duration) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Service{
		state:       st,
		controllers: controllers,
		interval:    interval,
		reprobeCh:   make(chan chan bool, 1),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

func (s *Service) State() *State {
	if s == nil {
		return nil
	}
	return s.state
}

// OnUpdate registers fn to be called with the snapshot of every committed
// cycle. fn runs on the refresh goroutine and must not block.
func (s *Service) OnUpdate(fn func(Snapshot)) {
	if s == nil || fn == nil {
		return
	}
	s.subMu.Lock()
	s.subs = append(s.subs, fn)
	s.subMu.Unlock()
}

// Run refreshes every interval until ctx is done or Close is called. The
// device handles are released before it returns. Run must be called once.
func (s *Service) Run(ctx context.Context) error {
	if s == nil || s.state == nil {
		return fmt.Errorf("motion: service is nil")
	}
	defer close(s.doneCh)
	defer s.state.Close()

	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case done := <-s.reprobeCh:
			done <- s.state.Reprobe()
		case <-t.C:
			if s.state.Refresh(s.controllers) {
				s.publish(s.state.Snapshot())
			}
		}
	}
}

func (s *Service) publish(snap Snapshot) {
	s.subMu.Lock()
	subs := append([]func(Snapshot){}, s.subs...)
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

// Reprobe asks the refresh goroutine to probe the device sensors again and
// reports whether both were found.
func (s *Service) Reprobe(ctx context.Context) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("motion: service is nil")
	}
	if ctx == nil {
		return false, fmt.Errorf("motion: ctx is nil")
	}
	done := make(chan bool, 1)
	select {
	case s.reprobeCh <- done:
	case <-ctx.Done():
		return false, ctx.Err()
	default:
		return false, fmt.Errorf("motion: reprobe already in progress")
	}
	select {
	case ok := <-done:
		return ok, nil
	case <-s.doneCh:
		return false, fmt.Errorf("motion: service stopped")
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Close stops Run. Wait on Done for the device handles to be released.
// Calling Close more than once is safe.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// Done is closed once Run has returned.
func (s *Service) Done() <-chan struct{} {
	if s == nil {
		return nil
	}
	return s.doneCh
}
