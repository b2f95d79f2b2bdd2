package sensor

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// SimHost is a synthetic device that slowly rocks about its own y axis
// while gravity stays consistent with the rotation. It is used for demo
// runs without hardware.
type SimHost struct {
	// Accel and Gyro select which sensors the host lists.
	Accel bool
	Gyro  bool
	// Timestamps makes drivers report hardware timestamps.
	Timestamps bool
	// AmplitudeRad and PeriodSec shape the rocking motion.
	AmplitudeRad float64
	PeriodSec    float64

	start time.Time
	now   func() time.Time

	mu    sync.Mutex
	opens int
}

func NewSimHost(accel, gyro, timestamps bool) *SimHost {
	return &SimHost{
		Accel:        accel,
		Gyro:         gyro,
		Timestamps:   timestamps,
		AmplitudeRad: 0.5,
		PeriodSec:    4,
		start:        time.Now(),
		now:          time.Now,
	}
}

// OpenCount is the number of drivers currently open.
func (h *SimHost) OpenCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opens
}

func (h *SimHost) Sensors() ([]Info, error) {
	var out []Info
	if h.Accel {
		out = append(out, Info{Index: 0, Kind: KindAccel, Name: "sim accel"})
	}
	if h.Gyro {
		out = append(out, Info{Index: 1, Kind: KindGyro, Name: "sim gyro"})
	}
	return out, nil
}

func (h *SimHost) Open(index int) (Driver, error) {
	var kind Kind
	switch {
	case index == 0 && h.Accel:
		kind = KindAccel
	case index == 1 && h.Gyro:
		kind = KindGyro
	default:
		return nil, fmt.Errorf("sim: sensor index %d not available", index)
	}
	h.mu.Lock()
	h.opens++
	h.mu.Unlock()
	return &simDriver{host: h, kind: kind}, nil
}

// sample returns the motion at t seconds after start: angle(t) = A sin(wt)
// about y, so the rate is A w cos(wt) and gravity tilts with the angle.
func (h *SimHost) sample(kind Kind, at time.Time) Reading {
	t := at.Sub(h.start).Seconds()
	w := 2 * math.Pi / h.PeriodSec
	angle := h.AmplitudeRad * math.Sin(w*t)
	var v mgl32.Vec3
	if kind == KindGyro {
		v = mgl32.Vec3{0, float32(h.AmplitudeRad * w * math.Cos(w*t)), 0}
	} else {
		// Resting reaction force points up the device z axis when flat.
		v = mgl32.Vec3{
			float32(-standardGravity * math.Sin(angle)),
			0,
			float32(standardGravity * math.Cos(angle)),
		}
	}
	r := Reading{Vector: v}
	if h.Timestamps {
		r.TimestampUS = uint64(at.Sub(h.start)/time.Microsecond) + 1
	}
	return r
}

type simDriver struct {
	host   *SimHost
	kind   Kind
	closed bool
}

func (d *simDriver) Read() (Reading, error) {
	if d.closed {
		return Reading{}, fmt.Errorf("sim: driver closed")
	}
	return d.host.sample(d.kind, d.host.now()), nil
}

func (d *simDriver) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.host.mu.Lock()
	d.host.opens--
	d.host.mu.Unlock()
	return nil
}
