package motion

import (
	"log"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"motionhub/internal/ctrl"
	"motionhub/internal/sensor"
)

// ControllerSource copies out the connected controllers' motion readings.
// Implementations take and release their own lock; Refresh never calls it
// while holding the motion lock.
type ControllerSource interface {
	ReadMotion() ctrl.Motion
}

type sample struct {
	ok     bool
	source Source
	vector mgl32.Vec3
	ts     uint64
	hw     bool
}

// Refresh runs one acquisition cycle. It reports whether a fused result
// was committed. It must only be called from one goroutine.
func (s *State) Refresh(controllers ControllerSource) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	sampling := s.sampling && !s.closed
	deviceMotion := s.deviceMotionSupport
	s.mu.Unlock()

	if !sampling {
		s.closeHandles()
		return false
	}

	// The controller lock is taken and released inside ReadMotion.
	var m ctrl.Motion
	if controllers != nil {
		m = controllers.ReadMotion()
	}
	if !m.Supported && !deviceMotion {
		return false
	}

	gyro := s.acquire(m.Gyro, &s.gyroHandle, sensor.KindGyro, deviceMotion)
	accel := s.acquire(m.Accel, &s.accelHandle, sensor.KindAccel, deviceMotion)
	if !gyro.ok && !accel.ok {
		return false
	}

	if gyro.ok {
		gyro.vector = NormalizeGyro(gyro.source, gyro.vector)
		gyro.ts, gyro.hw = stamp(gyro.ts, s.now)
	}
	if accel.ok {
		accel.vector = NormalizeAccel(accel.source, accel.vector)
		accel.ts, accel.hw = stamp(accel.ts, s.now)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gyro.ok {
		s.integ.SetGyroscope(gyro.vector)
		s.gyroSource = gyro.source
	}
	if accel.ok {
		s.integ.SetAcceleration(accel.vector)
		s.accelSource = accel.source
	}
	if gyro.ok {
		s.integ.UpdateRotation(s.gyroClock.advance(gyro.ts, gyro.source, gyro.hw))
	}
	if accel.ok {
		s.integ.UpdateOrientation(s.accelClock.advance(accel.ts, accel.source, accel.hw))
	}
	s.counter++
	s.updatedAt = time.Now().UTC()
	return true
}

// acquire resolves one channel: the controller reading when there is one,
// otherwise the device sensor, opened on demand. A device handle left over
// from an earlier fallback is closed once a controller covers the channel.
func (s *State) acquire(c ctrl.Channel, h **sensor.Handle, kind sensor.Kind, deviceMotion bool) sample {
	if c.OK {
		releaseHandle(h)
		return sample{ok: true, source: SourceController, vector: c.Reading.Vector, ts: c.Reading.TimestampUS}
	}
	if !deviceMotion {
		return sample{}
	}
	if *h == nil {
		opened, err := sensor.Open(s.host, kind)
		if err != nil {
			return sample{}
		}
		log.Printf("motion: opened device %s sensor %q", kind, opened.Info().Name)
		*h = opened
	}
	r, err := (*h).Read()
	if err != nil {
		return sample{}
	}
	return sample{ok: true, source: SourceDevice, vector: r.Vector, ts: r.TimestampUS}
}
