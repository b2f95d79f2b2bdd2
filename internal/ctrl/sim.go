package ctrl

import (
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"motionhub/internal/sensor"
)

// SimReader is a controller that reports the synthetic motion of a
// sensor.SimHost. It does not timestamp samples; see SimTimestampedReader.
type SimReader struct {
	mu      sync.Mutex
	host    *sensor.SimHost
	drivers map[sensor.Kind]sensor.Driver
}

func NewSimReader(host *sensor.SimHost) *SimReader {
	if host == nil {
		host = sensor.NewSimHost(true, true, false)
	}
	return &SimReader{host: host, drivers: make(map[sensor.Kind]sensor.Driver)}
}

func (r *SimReader) SensorData(kind sensor.Kind) (mgl32.Vec3, error) {
	rd, err := r.read(kind)
	return rd.Vector, err
}

func (r *SimReader) read(kind sensor.Kind) (sensor.Reading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drivers[kind]
	if !ok {
		info, found, err := sensor.Find(r.host, kind)
		if err != nil {
			return sensor.Reading{}, err
		}
		if !found {
			return sensor.Reading{}, fmt.Errorf("ctrl: sim controller has no %s", kind)
		}
		d, err = r.host.Open(info.Index)
		if err != nil {
			return sensor.Reading{}, err
		}
		r.drivers[kind] = d
	}
	return d.Read()
}

func (r *SimReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, d := range r.drivers {
		_ = d.Close()
		delete(r.drivers, k)
	}
	return nil
}

// SimTimestampedReader also reports the sim host's timestamps.
type SimTimestampedReader struct {
	*SimReader
}

func NewSimTimestampedReader(host *sensor.SimHost) *SimTimestampedReader {
	if host == nil {
		host = sensor.NewSimHost(true, true, true)
	}
	host.Timestamps = true
	return &SimTimestampedReader{SimReader: NewSimReader(host)}
}

func (r *SimTimestampedReader) SensorDataWithTimestamp(kind sensor.Kind) (mgl32.Vec3, uint64, error) {
	rd, err := r.read(kind)
	return rd.Vector, rd.TimestampUS, err
}
