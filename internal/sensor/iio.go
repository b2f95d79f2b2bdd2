package sensor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// DefaultIIORoot is where the kernel exposes Industrial I/O devices.
const DefaultIIORoot = "/sys/bus/iio/devices"

// IIOHost exposes Linux IIO accelerometers and gyroscopes through sysfs.
//
// Raw channel values are multiplied by the channel scale, which the kernel
// defines so that accel yields m/s^2 and anglvel yields rad/s. Sysfs reads
// carry no hardware timestamp.
type IIOHost struct {
	Root string
}

func NewIIOHost(root string) *IIOHost {
	if strings.TrimSpace(root) == "" {
		root = DefaultIIORoot
	}
	return &IIOHost{Root: root}
}

type iioChannel struct {
	info   Info
	dir    string
	prefix string // "in_accel" or "in_anglvel"
}

func (h *IIOHost) channels() ([]iioChannel, error) {
	entries, err := os.ReadDir(h.Root)
	if err != nil {
		return nil, fmt.Errorf("iio: read %s: %w", h.Root, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		// sysfs entries are symlinks; accept anything with the device prefix.
		if strings.HasPrefix(e.Name(), "iio:device") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []iioChannel
	for _, n := range names {
		dir := filepath.Join(h.Root, n)
		b, _ := os.ReadFile(filepath.Join(dir, "name"))
		devName := strings.TrimSpace(string(b))
		if devName == "" {
			devName = n
		}
		if fileExists(filepath.Join(dir, "in_accel_x_raw")) {
			out = append(out, iioChannel{
				info:   Info{Index: len(out), Kind: KindAccel, Name: devName + " accel"},
				dir:    dir,
				prefix: "in_accel",
			})
		}
		if fileExists(filepath.Join(dir, "in_anglvel_x_raw")) {
			out = append(out, iioChannel{
				info:   Info{Index: len(out), Kind: KindGyro, Name: devName + " gyro"},
				dir:    dir,
				prefix: "in_anglvel",
			})
		}
	}
	return out, nil
}

func (h *IIOHost) Sensors() ([]Info, error) {
	chans, err := h.channels()
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(chans))
	for _, c := range chans {
		out = append(out, c.info)
	}
	return out, nil
}

func (h *IIOHost) Open(index int) (Driver, error) {
	chans, err := h.channels()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(chans) {
		return nil, fmt.Errorf("iio: sensor index %d out of range", index)
	}
	c := chans[index]
	d := &iioDriver{}
	axes := [3]string{"x", "y", "z"}
	for i, ax := range axes {
		d.rawPaths[i] = filepath.Join(c.dir, c.prefix+"_"+ax+"_raw")
		// Per-axis scale first, then the shared one.
		s, ok := readFloatIfExists(filepath.Join(c.dir, c.prefix+"_"+ax+"_scale"))
		if !ok {
			s, ok = readFloatIfExists(filepath.Join(c.dir, c.prefix+"_scale"))
		}
		if !ok || s == 0 {
			return nil, fmt.Errorf("iio: %s has no usable %s scale", c.info.Name, ax)
		}
		d.scale[i] = s
		o, ok := readFloatIfExists(filepath.Join(c.dir, c.prefix+"_"+ax+"_offset"))
		if !ok {
			o, _ = readFloatIfExists(filepath.Join(c.dir, c.prefix+"_offset"))
		}
		d.offset[i] = o
	}
	return d, nil
}

type iioDriver struct {
	rawPaths [3]string
	scale    [3]float64
	offset   [3]float64
	closed   bool
}

func (d *iioDriver) Read() (Reading, error) {
	if d.closed {
		return Reading{}, fmt.Errorf("iio: driver closed")
	}
	var v mgl32.Vec3
	for i, p := range d.rawPaths {
		raw, err := readInt(p)
		if err != nil {
			return Reading{}, err
		}
		v[i] = float32((float64(raw) + d.offset[i]) * d.scale[i])
	}
	return Reading{Vector: v}, nil
}

func (d *iioDriver) Close() error {
	d.closed = true
	return nil
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func readInt(path string) (int64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(b))
	if len(fields) == 0 {
		return 0, fmt.Errorf("iio: %s is empty", path)
	}
	v, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("iio: parse %q: %w", fields[0], err)
	}
	return v, nil
}

func readFloatIfExists(path string) (float64, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
