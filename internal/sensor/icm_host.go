package sensor

import (
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"motionhub/internal/i2c"
	"motionhub/internal/sensor/icm20948"
)

const standardGravity = 9.80665

// imuChip is the part of the ICM-20948 driver the host needs.
type imuChip interface {
	Read() (icm20948.Sample, error)
	Sleep() error
	Wake() error
}

// ICM20948Host exposes an on-board ICM-20948 as two sensors (accel, gyro)
// sharing one chip. The chip is brought up by the first open handle and
// put to sleep when the last one closes.
type ICM20948Host struct {
	open func() (imuChip, io.Closer, error)

	mu     sync.Mutex
	chip   imuChip
	closer io.Closer
	refs   int
}

func NewICM20948Host(bus int, addr uint16, opts icm20948.Options) *ICM20948Host {
	if bus == 0 {
		bus = 1
	}
	if addr == 0 {
		addr = icm20948.DefaultAddress()
	}
	return &ICM20948Host{open: func() (imuChip, io.Closer, error) {
		b, err := i2c.Open(i2c.BusPath(bus))
		if err != nil {
			return nil, nil, err
		}
		dev, err := icm20948.New(b.Dev(addr), opts)
		if err != nil {
			_ = b.Close()
			return nil, nil, err
		}
		return dev, b, nil
	}}
}

func (h *ICM20948Host) Sensors() ([]Info, error) {
	return []Info{
		{Index: 0, Kind: KindAccel, Name: "icm20948 accel"},
		{Index: 1, Kind: KindGyro, Name: "icm20948 gyro"},
	}, nil
}

func (h *ICM20948Host) Open(index int) (Driver, error) {
	var kind Kind
	switch index {
	case 0:
		kind = KindAccel
	case 1:
		kind = KindGyro
	default:
		return nil, fmt.Errorf("icm20948: sensor index %d out of range", index)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.chip == nil {
		chip, closer, err := h.open()
		if err != nil {
			return nil, err
		}
		h.chip, h.closer = chip, closer
	} else if h.refs == 0 {
		if err := h.chip.Wake(); err != nil {
			return nil, err
		}
	}
	h.refs++
	return &icmDriver{host: h, kind: kind}, nil
}

func (h *ICM20948Host) release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refs == 0 {
		return nil
	}
	h.refs--
	if h.refs > 0 || h.chip == nil {
		return nil
	}
	return h.chip.Sleep()
}

// Close shuts the chip and its bus down regardless of open handles.
func (h *ICM20948Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refs = 0
	if h.chip == nil {
		return nil
	}
	_ = h.chip.Sleep()
	h.chip = nil
	if h.closer == nil {
		return nil
	}
	err := h.closer.Close()
	h.closer = nil
	return err
}

func (h *ICM20948Host) read() (icm20948.Sample, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.chip == nil {
		return icm20948.Sample{}, fmt.Errorf("icm20948: chip closed")
	}
	return h.chip.Read()
}

type icmDriver struct {
	host   *ICM20948Host
	kind   Kind
	closed bool
}

func (d *icmDriver) Read() (Reading, error) {
	if d.closed {
		return Reading{}, fmt.Errorf("icm20948: driver closed")
	}
	s, err := d.host.read()
	if err != nil {
		return Reading{}, err
	}
	if d.kind == KindAccel {
		return Reading{Vector: mgl32.Vec3{
			float32(s.Ax * standardGravity),
			float32(s.Ay * standardGravity),
			float32(s.Az * standardGravity),
		}}, nil
	}
	const degToRad = math.Pi / 180
	return Reading{Vector: mgl32.Vec3{
		float32(s.Gx * degToRad),
		float32(s.Gy * degToRad),
		float32(s.Gz * degToRad),
	}}, nil
}

func (d *icmDriver) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.host.release()
}
