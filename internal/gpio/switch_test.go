package gpio

import (
	"errors"
	"testing"
)

type recordingSampler struct {
	calls []bool
}

func (r *recordingSampler) SetSampling(on bool) { r.calls = append(r.calls, on) }

func TestSwitch_ForwardsTransitionsOnly(t *testing.T) {
	rs := &recordingSampler{}
	sw := newSwitch(rs, "gpiochip0:17")

	if _, ok := sw.State(); ok {
		t.Fatalf("state should be unknown before the first level")
	}
	for _, level := range []bool{true, true, false, false, true} {
		sw.apply(level)
	}
	want := []bool{true, false, true}
	if len(rs.calls) != len(want) {
		t.Fatalf("calls=%v want=%v", rs.calls, want)
	}
	for i := range want {
		if rs.calls[i] != want[i] {
			t.Fatalf("calls=%v want=%v", rs.calls, want)
		}
	}
	if active, ok := sw.State(); !ok || !active {
		t.Fatalf("state=%v,%v want true,true", active, ok)
	}
}

func TestSwitch_Close(t *testing.T) {
	closeErr := errors.New("busy")
	calls := 0
	sw := newSwitch(&recordingSampler{}, "x")
	sw.closer = func() error { calls++; return closeErr }
	if err := sw.Close(); !errors.Is(err, closeErr) {
		t.Fatalf("err=%v want %v", err, closeErr)
	}
	if err := sw.Close(); err != nil || calls != 1 {
		t.Fatalf("second close err=%v calls=%d", err, calls)
	}
	var nilSw *Switch
	if err := nilSw.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}
