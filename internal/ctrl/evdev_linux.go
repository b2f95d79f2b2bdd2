//go:build linux

package ctrl

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

var errNotMotionNode = errors.New("ctrl: not a motion sensor node")

const iocRead = 2

func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | typ<<8 | nr
}

func eviocgname(n uintptr) uintptr    { return ioc(iocRead, 'E', 0x06, n) }
func eviocgprop(n uintptr) uintptr    { return ioc(iocRead, 'E', 0x09, n) }
func eviocgbit(ev, n uintptr) uintptr { return ioc(iocRead, 'E', 0x20+ev, n) }
func eviocgabs(abs uintptr) uintptr   { return ioc(iocRead, 'E', 0x40+abs, unsafe.Sizeof(absInfo{})) }

// absInfo mirrors struct input_absinfo.
type absInfo struct {
	value      int32
	minimum    int32
	maximum    int32
	fuzz       int32
	flat       int32
	resolution int32
}

func ioctlPtr(fd uintptr, req uintptr, p unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(p))
	if errno != 0 {
		return errno
	}
	return nil
}

func hasBit(bits []byte, n int) bool {
	return n/8 < len(bits) && bits[n/8]&(1<<(uint(n)%8)) != 0
}

// EvdevController is one gamepad motion-sensor node. A goroutine reads
// events and keeps the latest complete frame.
type EvdevController struct {
	*latestMotion

	info      Info
	f         *os.File
	frame     *motionFrame
	closeOnce sync.Once
	done      chan struct{}
}

// OpenEvdev opens path and starts reading when the node is an
// accelerometer-flagged motion device.
func OpenEvdev(path string) (*EvdevController, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("ctrl: open %s: %w", path, err)
	}
	fd := f.Fd()

	var props [8]byte
	if err := ioctlPtr(fd, eviocgprop(uintptr(len(props))), unsafe.Pointer(&props[0])); err != nil || !hasBit(props[:], inputPropAccelerometer) {
		_ = f.Close()
		return nil, errNotMotionNode
	}

	var absBits [8]byte
	if err := ioctlPtr(fd, eviocgbit(evAbs, uintptr(len(absBits))), unsafe.Pointer(&absBits[0])); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("ctrl: %s abs bits: %w", path, err)
	}

	var name [256]byte
	_ = ioctlPtr(fd, eviocgname(uintptr(len(name))), unsafe.Pointer(&name[0]))
	devName := strings.TrimRight(string(name[:]), "\x00")
	if devName == "" {
		devName = filepath.Base(path)
	}

	var accelRes, gyroRes [3]float64
	for i := 0; i < 3; i++ {
		var ai absInfo
		if hasBit(absBits[:], absX+i) && ioctlPtr(fd, eviocgabs(uintptr(absX+i)), unsafe.Pointer(&ai)) == nil {
			accelRes[i] = float64(ai.resolution)
		}
		ai = absInfo{}
		if hasBit(absBits[:], absRX+i) && ioctlPtr(fd, eviocgabs(uintptr(absRX+i)), unsafe.Pointer(&ai)) == nil {
			gyroRes[i] = float64(ai.resolution)
		}
	}

	c := &EvdevController{
		latestMotion: &latestMotion{},
		info: Info{
			ID:       path,
			Name:     devName,
			HasAccel: hasBit(absBits[:], absX) && hasBit(absBits[:], absY) && hasBit(absBits[:], absZ),
			HasGyro:  hasBit(absBits[:], absRX) && hasBit(absBits[:], absRY) && hasBit(absBits[:], absRZ),
		},
		f:     f,
		frame: newMotionFrame(accelRes, gyroRes),
		done:  make(chan struct{}),
	}
	if !c.info.HasAccel && !c.info.HasGyro {
		_ = f.Close()
		return nil, errNotMotionNode
	}
	go c.run()
	return c, nil
}

func (c *EvdevController) Info() Info { return c.info }

func (c *EvdevController) run() {
	defer close(c.done)
	size := int(unsafe.Sizeof(unix.Timeval{})) + 8
	buf := make([]byte, size*64)
	for {
		n, err := c.f.Read(buf)
		if err != nil {
			c.fail(fmt.Errorf("ctrl: read %s: %w", c.info.ID, err))
			return
		}
		for _, ev := range decodeEvents(buf[:n], size) {
			if c.frame.apply(ev) {
				c.commit(c.frame)
			}
		}
	}
}

// Close stops the reader and releases the node.
func (c *EvdevController) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.f.Close()
		<-c.done
	})
	return err
}

func listEventNodes(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "event*"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func openMotionNode(path string) (motionNode, error) {
	c, err := OpenEvdev(path)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func isNotMotionNode(err error) bool {
	return errors.Is(err, errNotMotionNode)
}
