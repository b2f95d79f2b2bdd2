package motion

import (
	"errors"
	"sync"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"motionhub/internal/sensor"
)

// fakeHost lists one accel (index 0) and/or one gyro (index 1).
type fakeHost struct {
	mu       sync.Mutex
	kinds    map[sensor.Kind]bool
	readings map[sensor.Kind]sensor.Reading
	readErr  error
	opens    map[sensor.Kind]int
	open     map[sensor.Kind]int
}

func newFakeHost(kinds ...sensor.Kind) *fakeHost {
	h := &fakeHost{
		kinds:    make(map[sensor.Kind]bool),
		readings: make(map[sensor.Kind]sensor.Reading),
		opens:    make(map[sensor.Kind]int),
		open:     make(map[sensor.Kind]int),
	}
	for _, k := range kinds {
		h.kinds[k] = true
	}
	return h
}

func (h *fakeHost) set(kind sensor.Kind, v mgl32.Vec3, ts uint64) {
	h.mu.Lock()
	h.readings[kind] = sensor.Reading{Vector: v, TimestampUS: ts}
	h.mu.Unlock()
}

func (h *fakeHost) openCount(kind sensor.Kind) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.open[kind]
}

func (h *fakeHost) totalOpens(kind sensor.Kind) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opens[kind]
}

func (h *fakeHost) Sensors() ([]sensor.Info, error) {
	var out []sensor.Info
	if h.kinds[sensor.KindAccel] {
		out = append(out, sensor.Info{Index: 0, Kind: sensor.KindAccel, Name: "fake accel"})
	}
	if h.kinds[sensor.KindGyro] {
		out = append(out, sensor.Info{Index: 1, Kind: sensor.KindGyro, Name: "fake gyro"})
	}
	return out, nil
}

func (h *fakeHost) Open(index int) (sensor.Driver, error) {
	kind := sensor.KindAccel
	if index == 1 {
		kind = sensor.KindGyro
	}
	if !h.kinds[kind] {
		return nil, errors.New("no such sensor")
	}
	h.mu.Lock()
	h.opens[kind]++
	h.open[kind]++
	h.mu.Unlock()
	return &fakeDriver{host: h, kind: kind}, nil
}

type fakeDriver struct {
	host *fakeHost
	kind sensor.Kind
}

func (d *fakeDriver) Read() (sensor.Reading, error) {
	d.host.mu.Lock()
	defer d.host.mu.Unlock()
	if d.host.readErr != nil {
		return sensor.Reading{}, d.host.readErr
	}
	return d.host.readings[d.kind], nil
}

func (d *fakeDriver) Close() error {
	d.host.mu.Lock()
	d.host.open[d.kind]--
	d.host.mu.Unlock()
	return nil
}

// fakeController is a ctrl.Reader that counts reads per channel.
type fakeController struct {
	mu    sync.Mutex
	vec   map[sensor.Kind]mgl32.Vec3
	calls map[sensor.Kind]int
}

func newFakeController() *fakeController {
	return &fakeController{vec: make(map[sensor.Kind]mgl32.Vec3), calls: make(map[sensor.Kind]int)}
}

func (c *fakeController) SensorData(kind sensor.Kind) (mgl32.Vec3, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[kind]++
	return c.vec[kind], nil
}

func (c *fakeController) callCount(kind sensor.Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[kind]
}

// stepClock is a Clock advanced by hand.
type stepClock struct {
	mu  sync.Mutex
	now uint64
}

func (c *stepClock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(us uint64) {
	c.mu.Lock()
	c.now += us
	c.mu.Unlock()
}

func vecNear(a, b mgl32.Vec3, eps float32) bool {
	for i := range a {
		if math32.Abs(a[i]-b[i]) > eps {
			return false
		}
	}
	return true
}

func quatNear(a, b mgl32.Quat, eps float32) bool {
	same := math32.Abs(a.W-b.W) <= eps && vecNear(a.V, b.V, eps)
	// q and -q are the same rotation.
	flipped := math32.Abs(a.W+b.W) <= eps && vecNear(a.V, b.V.Mul(-1), eps)
	return same || flipped
}
