// Package ctrl tracks connected game controllers and copies out their
// built-in motion sensor readings.
package ctrl

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"motionhub/internal/sensor"
)

// Reader reads a controller's latest sensor sample for one channel.
// Vectors use the sensor package units (m/s^2, rad/s).
type Reader interface {
	SensorData(kind sensor.Kind) (mgl32.Vec3, error)
}

// TimestampedReader is implemented by backends that can attach the
// hardware timestamp (microseconds) to a sample.
type TimestampedReader interface {
	SensorDataWithTimestamp(kind sensor.Kind) (mgl32.Vec3, uint64, error)
}

// Info describes a connected controller.
type Info struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	HasGyro    bool   `json:"has_gyro"`
	HasAccel   bool   `json:"has_accel"`
	Timestamps bool   `json:"timestamps"`
}

type controller struct {
	info   Info
	reader Reader
	// ts is resolved once when the controller is added.
	ts TimestampedReader
}

// Channel is one controller reading copied out of the State.
type Channel struct {
	OK         bool
	Reading    sensor.Reading
	Controller string
}

// Motion is everything a refresh cycle needs from the controllers.
type Motion struct {
	Supported bool
	Gyro      Channel
	Accel     Channel
}

// State is the lock-guarded controller collection, ordered by connection.
type State struct {
	mu               sync.Mutex
	controllers      []*controller
	hasMotionSupport bool
}

func NewState() *State {
	return &State{}
}

// Add registers a controller. ids must be unique.
func (s *State) Add(info Info, r Reader) error {
	if s == nil {
		return fmt.Errorf("ctrl: state is nil")
	}
	if strings.TrimSpace(info.ID) == "" {
		return fmt.Errorf("ctrl: controller id is required")
	}
	if r == nil {
		return fmt.Errorf("ctrl: controller %q has no reader", info.ID)
	}
	c := &controller{info: info, reader: r}
	if ts, ok := r.(TimestampedReader); ok {
		c.ts = ts
	}
	c.info.Timestamps = c.ts != nil

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.controllers {
		if existing.info.ID == info.ID {
			return fmt.Errorf("ctrl: controller %q already connected", info.ID)
		}
	}
	s.controllers = append(s.controllers, c)
	s.recomputeLocked()
	return nil
}

// Remove drops a controller and closes its reader when it is an io.Closer.
func (s *State) Remove(id string) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	var removed *controller
	for i, c := range s.controllers {
		if c.info.ID == id {
			removed = c
			s.controllers = append(s.controllers[:i], s.controllers[i+1:]...)
			break
		}
	}
	s.recomputeLocked()
	s.mu.Unlock()

	if removed == nil {
		return false
	}
	if cl, ok := removed.reader.(io.Closer); ok {
		_ = cl.Close()
	}
	return true
}

// Has reports whether a controller with id is connected.
func (s *State) Has(id string) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.controllers {
		if c.info.ID == id {
			return true
		}
	}
	return false
}

func (s *State) recomputeLocked() {
	s.hasMotionSupport = false
	for _, c := range s.controllers {
		if c.info.HasGyro || c.info.HasAccel {
			s.hasMotionSupport = true
			return
		}
	}
}

func (s *State) HasMotionSupport() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMotionSupport
}

func (s *State) Controllers() []Info {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Info, 0, len(s.controllers))
	for _, c := range s.controllers {
		out = append(out, c.info)
	}
	return out
}

// ReadMotion copies out at most one gyro and one accel reading. The first
// controller (in connection order) that offers a channel and reads it
// successfully wins that channel; a controller is never asked for a
// channel it does not have. The lock is released before returning.
func (s *State) ReadMotion() Motion {
	if s == nil {
		return Motion{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m := Motion{Supported: s.hasMotionSupport}
	if !m.Supported {
		return m
	}
	for _, c := range s.controllers {
		if !m.Gyro.OK && c.info.HasGyro {
			if r, ok := c.read(sensor.KindGyro); ok {
				m.Gyro = Channel{OK: true, Reading: r, Controller: c.info.ID}
			}
		}
		if !m.Accel.OK && c.info.HasAccel {
			if r, ok := c.read(sensor.KindAccel); ok {
				m.Accel = Channel{OK: true, Reading: r, Controller: c.info.ID}
			}
		}
		if m.Gyro.OK && m.Accel.OK {
			break
		}
	}
	return m
}

func (c *controller) read(kind sensor.Kind) (sensor.Reading, bool) {
	if c.ts != nil {
		v, ts, err := c.ts.SensorDataWithTimestamp(kind)
		if err != nil {
			return sensor.Reading{}, false
		}
		return sensor.Reading{Vector: v, TimestampUS: ts}, true
	}
	v, err := c.reader.SensorData(kind)
	if err != nil {
		return sensor.Reading{}, false
	}
	return sensor.Reading{Vector: v}, true
}

// Close removes every controller.
func (s *State) Close() {
	if s == nil {
		return
	}
	for _, info := range s.Controllers() {
		s.Remove(info.ID)
	}
}
