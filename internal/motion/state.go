package motion

import (
	"log"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"motionhub/internal/sensor"
)

type Config struct {
	Correction Correction
	// BiasCorrection is the initial gyro bias correction toggle.
	BiasCorrection bool
	// Sampling is the initial sampling toggle.
	Sampling bool
	// Clock substitutes for missing hardware timestamps. Defaults to
	// MonotonicClock.
	Clock Clock
}

// Snapshot is a consistent copy of the fused state.
type Snapshot struct {
	Counter             uint64     `json:"counter"`
	Sampling            bool       `json:"sampling"`
	BiasCorrection      bool       `json:"gyro_bias_correction"`
	DeviceMotionSupport bool       `json:"device_motion_support"`
	Acceleration        mgl32.Vec3 `json:"acceleration"`
	Gyroscope           mgl32.Vec3 `json:"gyroscope"`
	// Orientation is x, y, z, w in the caller-facing convention.
	Orientation [4]float32 `json:"orientation"`
	GyroSource  string     `json:"gyro_source,omitempty"`
	AccelSource string     `json:"accel_source,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// State is the fused motion record shared between the refresh goroutine
// and any number of readers.
type State struct {
	host sensor.Host
	now  Clock

	// Device handles belong to the refresh goroutine and are not guarded
	// by mu.
	gyroHandle  *sensor.Handle
	accelHandle *sensor.Handle

	mu                  sync.Mutex
	sampling            bool
	deviceMotionSupport bool
	gyroClock           channelClock
	accelClock          channelClock
	integ               Integrator
	counter             uint64
	gyroSource          Source
	accelSource         Source
	updatedAt           time.Time
	closed              bool
}

// New probes host for an accelerometer and a gyroscope and closes the
// probe handles again. A nil host means the device has no sensors.
func New(host sensor.Host, cfg Config) *State {
	if cfg.Clock == nil {
		cfg.Clock = MonotonicClock()
	}
	s := &State{
		host:     host,
		now:      cfg.Clock,
		sampling: cfg.Sampling,
		integ:    NewIntegrator(cfg.Correction),
	}
	s.integ.EnableGyroBias(cfg.BiasCorrection)
	s.deviceMotionSupport = s.probe()
	return s
}

// probe opens both device sensors and releases them right away; open
// sensors drain the battery.
func (s *State) probe() bool {
	if s.host == nil {
		return false
	}
	accel, accelErr := sensor.Open(s.host, sensor.KindAccel)
	gyro, gyroErr := sensor.Open(s.host, sensor.KindGyro)
	_ = accel.Close()
	_ = gyro.Close()
	ok := accelErr == nil && gyroErr == nil
	if ok {
		log.Printf("motion: device has builtin accelerometer and gyroscope")
	}
	return ok
}

// Reprobe closes any device handles and probes the host again. Like
// Refresh it must run on the refresh goroutine.
func (s *State) Reprobe() bool {
	if s == nil {
		return false
	}
	s.closeHandles()
	ok := s.probe()
	s.mu.Lock()
	s.deviceMotionSupport = ok
	s.mu.Unlock()
	return ok
}

func (s *State) DeviceMotionSupport() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceMotionSupport
}

func (s *State) Acceleration() mgl32.Vec3 {
	if s == nil {
		return mgl32.Vec3{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.integ.Acceleration()
}

// Gyroscope is the bias-compensated rate in rad/s.
func (s *State) Gyroscope() mgl32.Vec3 {
	if s == nil {
		return mgl32.Vec3{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.integ.Gyroscope()
}

func (s *State) Orientation() mgl32.Quat {
	if s == nil {
		return mgl32.QuatIdent()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.integ.Orientation()
}

func (s *State) GyroBiasCorrection() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.integ.IsGyroBiasEnabled()
}

func (s *State) SetGyroBiasCorrection(on bool) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.integ.EnableGyroBias(on)
	s.mu.Unlock()
}

func (s *State) Sampling() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampling
}

// SetSampling toggles sampling. Device handles are released by the next
// Refresh, on the refresh goroutine.
func (s *State) SetSampling(on bool) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.sampling = on
	s.mu.Unlock()
}

func (s *State) Counter() uint64 {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}

func (s *State) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.integ.Orientation()
	return Snapshot{
		Counter:             s.counter,
		Sampling:            s.sampling,
		BiasCorrection:      s.integ.IsGyroBiasEnabled(),
		DeviceMotionSupport: s.deviceMotionSupport,
		Acceleration:        s.integ.Acceleration(),
		Gyroscope:           s.integ.Gyroscope(),
		Orientation:         [4]float32{o.V[0], o.V[1], o.V[2], o.W},
		GyroSource:          s.gyroSource.String(),
		AccelSource:         s.accelSource.String(),
		UpdatedAt:           s.updatedAt,
	}
}

// DeviceHandlesOpen reports which device handles are currently open. It
// is only meaningful on the refresh goroutine.
func (s *State) DeviceHandlesOpen() (gyro, accel bool) {
	if s == nil {
		return false, false
	}
	return s.gyroHandle.IsOpen(), s.accelHandle.IsOpen()
}

// Close releases the device handles. Refresh is a no-op afterwards. Like
// Refresh it must run on the refresh goroutine, or once that goroutine has
// stopped; Service.Run calls it on the way out.
func (s *State) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.closeHandles()
}

func (s *State) closeHandles() {
	releaseHandle(&s.gyroHandle)
	releaseHandle(&s.accelHandle)
}

func releaseHandle(h **sensor.Handle) {
	if *h == nil {
		return
	}
	log.Printf("motion: closed device %s sensor", (*h).Kind())
	_ = (*h).Close()
	*h = nil
}
