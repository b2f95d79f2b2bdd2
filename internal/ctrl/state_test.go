package ctrl

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"motionhub/internal/sensor"
)

type fakeReader struct {
	vec    map[sensor.Kind]mgl32.Vec3
	errFor map[sensor.Kind]error
	calls  map[sensor.Kind]int
	closed bool
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		vec:    make(map[sensor.Kind]mgl32.Vec3),
		errFor: make(map[sensor.Kind]error),
		calls:  make(map[sensor.Kind]int),
	}
}

func (r *fakeReader) SensorData(kind sensor.Kind) (mgl32.Vec3, error) {
	r.calls[kind]++
	if err := r.errFor[kind]; err != nil {
		return mgl32.Vec3{}, err
	}
	return r.vec[kind], nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type fakeTSReader struct {
	*fakeReader
	ts uint64
}

func (r *fakeTSReader) SensorDataWithTimestamp(kind sensor.Kind) (mgl32.Vec3, uint64, error) {
	v, err := r.SensorData(kind)
	return v, r.ts, err
}

func TestReadMotion_NoControllers(t *testing.T) {
	s := NewState()
	m := s.ReadMotion()
	if m.Supported || m.Gyro.OK || m.Accel.OK {
		t.Fatalf("motion=%+v want empty", m)
	}
}

func TestReadMotion_FirstControllerWinsPerChannel(t *testing.T) {
	s := NewState()
	a := newFakeReader()
	a.vec[sensor.KindGyro] = mgl32.Vec3{1, 0, 0}
	b := newFakeReader()
	b.vec[sensor.KindGyro] = mgl32.Vec3{2, 0, 0}
	b.vec[sensor.KindAccel] = mgl32.Vec3{0, 0, 9}

	if err := s.Add(Info{ID: "a", HasGyro: true}, a); err != nil {
		t.Fatalf("Add a: %v", err)
	}
	if err := s.Add(Info{ID: "b", HasGyro: true, HasAccel: true}, b); err != nil {
		t.Fatalf("Add b: %v", err)
	}

	m := s.ReadMotion()
	if !m.Supported {
		t.Fatalf("expected support")
	}
	if !m.Gyro.OK || m.Gyro.Controller != "a" || m.Gyro.Reading.Vector[0] != 1 {
		t.Fatalf("gyro=%+v want from a", m.Gyro)
	}
	if !m.Accel.OK || m.Accel.Controller != "b" {
		t.Fatalf("accel=%+v want from b", m.Accel)
	}
	if b.calls[sensor.KindGyro] != 0 {
		t.Fatalf("b gyro calls=%d want 0 once a satisfied gyro", b.calls[sensor.KindGyro])
	}
	// a lacks accel and must never be asked for it.
	if a.calls[sensor.KindAccel] != 0 {
		t.Fatalf("a accel calls=%d want 0", a.calls[sensor.KindAccel])
	}
}

func TestReadMotion_FailedReadFallsThrough(t *testing.T) {
	s := NewState()
	a := newFakeReader()
	a.errFor[sensor.KindGyro] = errors.New("stale")
	b := newFakeReader()
	b.vec[sensor.KindGyro] = mgl32.Vec3{0, 3, 0}
	_ = s.Add(Info{ID: "a", HasGyro: true}, a)
	_ = s.Add(Info{ID: "b", HasGyro: true}, b)

	m := s.ReadMotion()
	if !m.Gyro.OK || m.Gyro.Controller != "b" {
		t.Fatalf("gyro=%+v want from b", m.Gyro)
	}
	if m.Accel.OK {
		t.Fatalf("accel=%+v want absent", m.Accel)
	}
}

func TestAdd_DetectsTimestampSupport(t *testing.T) {
	s := NewState()
	plain := newFakeReader()
	ts := &fakeTSReader{fakeReader: newFakeReader(), ts: 1234}
	ts.vec[sensor.KindAccel] = mgl32.Vec3{0, 0, 1}
	_ = s.Add(Info{ID: "plain", HasGyro: true}, plain)
	_ = s.Add(Info{ID: "ts", HasAccel: true}, ts)

	infos := s.Controllers()
	if infos[0].Timestamps || !infos[1].Timestamps {
		t.Fatalf("infos=%+v", infos)
	}
	m := s.ReadMotion()
	if m.Accel.Reading.TimestampUS != 1234 {
		t.Fatalf("ts=%d want 1234", m.Accel.Reading.TimestampUS)
	}
	if m.Gyro.Reading.TimestampUS != 0 {
		t.Fatalf("ts=%d want 0 without timestamp support", m.Gyro.Reading.TimestampUS)
	}
}

func TestAdd_Validation(t *testing.T) {
	s := NewState()
	if err := s.Add(Info{}, newFakeReader()); err == nil {
		t.Fatalf("expected error for empty id")
	}
	if err := s.Add(Info{ID: "x"}, nil); err == nil {
		t.Fatalf("expected error for nil reader")
	}
	_ = s.Add(Info{ID: "x", HasGyro: true}, newFakeReader())
	if err := s.Add(Info{ID: "x"}, newFakeReader()); err == nil {
		t.Fatalf("expected duplicate error")
	}
}

func TestRemove_RecomputesSupportAndCloses(t *testing.T) {
	s := NewState()
	r := newFakeReader()
	_ = s.Add(Info{ID: "pad", HasAccel: true}, r)
	_ = s.Add(Info{ID: "plain"}, newFakeReader())
	if !s.HasMotionSupport() {
		t.Fatalf("expected support")
	}
	if !s.Remove("pad") {
		t.Fatalf("expected removal")
	}
	if s.HasMotionSupport() {
		t.Fatalf("expected no support after removing the only motion controller")
	}
	if !r.closed {
		t.Fatalf("expected reader closed")
	}
	if s.Remove("pad") {
		t.Fatalf("second remove should report false")
	}
}

func TestSimReaders(t *testing.T) {
	s := NewState()
	_ = s.Add(Info{ID: "sim", HasGyro: true, HasAccel: true}, NewSimTimestampedReader(nil))
	m := s.ReadMotion()
	if !m.Gyro.OK || !m.Accel.OK {
		t.Fatalf("motion=%+v", m)
	}
	if m.Accel.Reading.TimestampUS == 0 {
		t.Fatalf("expected sim timestamp")
	}
	s.Close()
	if len(s.Controllers()) != 0 {
		t.Fatalf("expected empty state after Close")
	}
}
