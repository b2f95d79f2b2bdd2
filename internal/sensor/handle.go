package sensor

import (
	"fmt"
	"reflect"
)

// Handle owns one opened sensor. It is not safe for concurrent use; the
// goroutine that opened it is the only one expected to read or close it.
type Handle struct {
	info   Info
	driver Driver
}

// Open opens the first sensor of kind listed by h.
func Open(h Host, kind Kind) (*Handle, error) {
	info, ok, err := Find(h, kind)
	if err != nil {
		return nil, fmt.Errorf("sensor: list %s: %v: %w", kind, err, ErrUnavailable)
	}
	if !ok {
		return nil, fmt.Errorf("sensor: no %s sensor: %w", kind, ErrUnavailable)
	}
	d, err := h.Open(info.Index)
	if err != nil {
		return nil, fmt.Errorf("sensor: open %s %q: %v: %w", kind, info.Name, err, ErrUnavailable)
	}
	if isNilDriver(d) {
		return nil, fmt.Errorf("sensor: open %s %q returned no driver: %w", kind, info.Name, ErrUnavailable)
	}
	return &Handle{info: info, driver: d}, nil
}

// isNilDriver also catches a nil pointer stored in the interface.
func isNilDriver(d Driver) bool {
	if d == nil {
		return true
	}
	v := reflect.ValueOf(d)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

func (h *Handle) Info() Info {
	if h == nil {
		return Info{}
	}
	return h.info
}

func (h *Handle) Kind() Kind {
	return h.Info().Kind
}

// IsOpen reports whether the handle still owns its driver.
func (h *Handle) IsOpen() bool {
	return h != nil && !isNilDriver(h.driver)
}

func (h *Handle) Read() (Reading, error) {
	if !h.IsOpen() {
		return Reading{}, fmt.Errorf("sensor: handle closed: %w", ErrReadFailed)
	}
	r, err := h.driver.Read()
	if err != nil {
		return Reading{}, fmt.Errorf("sensor: read %s %q: %v: %w", h.info.Kind, h.info.Name, err, ErrReadFailed)
	}
	return r, nil
}

// Close releases the driver. Closing a closed or nil handle is a no-op.
func (h *Handle) Close() error {
	if !h.IsOpen() {
		if h != nil {
			h.driver = nil
		}
		return nil
	}
	d := h.driver
	h.driver = nil
	return d.Close()
}
