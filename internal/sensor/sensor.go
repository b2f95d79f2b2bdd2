// Package sensor is the host sensor enumeration layer: it lists the
// device's own motion sensors, opens them by index and hands out owned
// handles that read one 3-axis sample at a time.
package sensor

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	// ErrUnavailable means no sensor offers the requested channel.
	ErrUnavailable = errors.New("sensor: unavailable")
	// ErrReadFailed means the sensor exists but the read did not produce a sample.
	ErrReadFailed = errors.New("sensor: read failed")
)

// Kind is the channel a sensor measures.
type Kind int

const (
	KindUnknown Kind = iota
	KindAccel
	KindGyro
)

func (k Kind) String() string {
	switch k {
	case KindAccel:
		return "accel"
	case KindGyro:
		return "gyro"
	default:
		return "unknown"
	}
}

// Reading is one raw 3-axis sample in the sensor's own frame.
// Accelerometers report m/s^2, gyroscopes rad/s.
// TimestampUS is zero when the hardware does not timestamp samples.
type Reading struct {
	Vector      mgl32.Vec3
	TimestampUS uint64
}

// Info describes one sensor a Host can open.
type Info struct {
	Index int
	Kind  Kind
	Name  string
}

// Driver is an opened hardware sensor.
type Driver interface {
	Read() (Reading, error)
	Close() error
}

// Host enumerates and opens the device's sensors.
type Host interface {
	Sensors() ([]Info, error)
	Open(index int) (Driver, error)
}

// Find returns the first listed sensor of the given kind.
func Find(h Host, kind Kind) (Info, bool, error) {
	if h == nil {
		return Info{}, false, nil
	}
	list, err := h.Sensors()
	if err != nil {
		return Info{}, false, err
	}
	for _, s := range list {
		if s.Kind == kind {
			return s, true, nil
		}
	}
	return Info{}, false, nil
}
