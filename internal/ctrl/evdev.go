package ctrl

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"motionhub/internal/sensor"
)

// Linux input event codes used by gamepad motion-sensor nodes
// (hid-playstation, hid-nintendo, hid-sony expose the IMU as a separate
// evdev device flagged INPUT_PROP_ACCELEROMETER).
const (
	evSyn = 0x00
	evAbs = 0x03
	evMsc = 0x04

	synReport    = 0x00
	mscTimestamp = 0x05

	absX  = 0x00
	absY  = 0x01
	absZ  = 0x02
	absRX = 0x03
	absRY = 0x04
	absRZ = 0x05

	inputPropAccelerometer = 0x06

	// hid-playstation resolutions, used when a node reports none.
	defaultAccelResPerG     = 8192
	defaultGyroResPerDegSec = 1024

	standardGravity = 9.80665
)

var errNoSample = errors.New("ctrl: no sample yet")

type inputEvent struct {
	typ   uint16
	code  uint16
	value int32
}

// decodeEvents splits a read buffer into input events. size is the
// platform's sizeof(struct input_event); the timeval prefix is skipped.
func decodeEvents(buf []byte, size int) []inputEvent {
	if size < 8 {
		return nil
	}
	out := make([]inputEvent, 0, len(buf)/size)
	for off := 0; off+size <= len(buf); off += size {
		tail := buf[off+size-8 : off+size]
		out = append(out, inputEvent{
			typ:   binary.LittleEndian.Uint16(tail[0:2]),
			code:  binary.LittleEndian.Uint16(tail[2:4]),
			value: int32(binary.LittleEndian.Uint32(tail[4:8])),
		})
	}
	return out
}

// timestampUnwrapper extends the 32-bit MSC_TIMESTAMP counter to 64 bits.
type timestampUnwrapper struct {
	have  bool
	last  uint32
	wraps uint64
}

func (u *timestampUnwrapper) next(raw uint32) uint64 {
	if u.have && raw < u.last {
		u.wraps += 1 << 32
	}
	u.have = true
	u.last = raw
	return u.wraps + uint64(raw)
}

// motionFrame accumulates one SYN_REPORT-delimited frame of axis values.
type motionFrame struct {
	accelRes [3]float64
	gyroRes  [3]float64

	raw   [6]int32
	ts    timestampUnwrapper
	tsUS  uint64
	dirty bool
}

func newMotionFrame(accelRes, gyroRes [3]float64) *motionFrame {
	f := &motionFrame{accelRes: accelRes, gyroRes: gyroRes}
	for i := range f.accelRes {
		if f.accelRes[i] <= 0 {
			f.accelRes[i] = defaultAccelResPerG
		}
		if f.gyroRes[i] <= 0 {
			f.gyroRes[i] = defaultGyroResPerDegSec
		}
	}
	return f
}

// apply folds one event into the frame and reports whether it closed a
// frame that carried new data.
func (f *motionFrame) apply(ev inputEvent) bool {
	switch ev.typ {
	case evAbs:
		if ev.code <= absRZ {
			f.raw[ev.code] = ev.value
			f.dirty = true
		}
	case evMsc:
		if ev.code == mscTimestamp {
			f.tsUS = f.ts.next(uint32(ev.value))
		}
	case evSyn:
		if ev.code == synReport && f.dirty {
			f.dirty = false
			return true
		}
	}
	return false
}

// accel returns the frame's acceleration in m/s^2.
func (f *motionFrame) accel() mgl32.Vec3 {
	var v mgl32.Vec3
	for i := 0; i < 3; i++ {
		v[i] = float32(float64(f.raw[absX+i]) / f.accelRes[i] * standardGravity)
	}
	return v
}

// gyro returns the frame's angular rate in rad/s.
func (f *motionFrame) gyro() mgl32.Vec3 {
	var v mgl32.Vec3
	for i := 0; i < 3; i++ {
		v[i] = float32(float64(f.raw[absRX+i]) / f.gyroRes[i] * math.Pi / 180)
	}
	return v
}

// latestMotion is the committed sample shared between an evdev reader
// goroutine and ReadMotion.
type latestMotion struct {
	mu    sync.Mutex
	have  bool
	accel mgl32.Vec3
	gyro  mgl32.Vec3
	tsUS  uint64
	err   error
}

func (l *latestMotion) commit(f *motionFrame) {
	l.mu.Lock()
	l.have = true
	l.accel = f.accel()
	l.gyro = f.gyro()
	l.tsUS = f.tsUS
	l.mu.Unlock()
}

func (l *latestMotion) fail(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
}

func (l *latestMotion) SensorData(kind sensor.Kind) (mgl32.Vec3, error) {
	v, _, err := l.SensorDataWithTimestamp(kind)
	return v, err
}

func (l *latestMotion) SensorDataWithTimestamp(kind sensor.Kind) (mgl32.Vec3, uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return mgl32.Vec3{}, 0, l.err
	}
	if !l.have {
		return mgl32.Vec3{}, 0, errNoSample
	}
	switch kind {
	case sensor.KindAccel:
		return l.accel, l.tsUS, nil
	case sensor.KindGyro:
		return l.gyro, l.tsUS, nil
	}
	return mgl32.Vec3{}, 0, errors.New("ctrl: unknown sensor kind")
}

// Failed reports the reader error once the node stopped delivering events.
func (l *latestMotion) Failed() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}
