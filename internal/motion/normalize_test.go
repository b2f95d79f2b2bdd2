package motion

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestNormalizeGyro(t *testing.T) {
	const w = 2 * math.Pi
	cases := []struct {
		name string
		src  Source
		in   mgl32.Vec3
		want mgl32.Vec3
	}{
		{"controller x", SourceController, mgl32.Vec3{w, 0, 0}, mgl32.Vec3{1, 0, 0}},
		{"controller y", SourceController, mgl32.Vec3{0, w, 0}, mgl32.Vec3{0, 0, 1}},
		{"controller z", SourceController, mgl32.Vec3{0, 0, w}, mgl32.Vec3{0, -1, 0}},
		{"device x", SourceDevice, mgl32.Vec3{w, 0, 0}, mgl32.Vec3{0, 1, 0}},
		{"device y", SourceDevice, mgl32.Vec3{0, w, 0}, mgl32.Vec3{-1, 0, 0}},
		{"device z", SourceDevice, mgl32.Vec3{0, 0, w}, mgl32.Vec3{0, 0, 1}},
		{"zero", SourceDevice, mgl32.Vec3{}, mgl32.Vec3{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeGyro(tc.src, tc.in)
			if !vecNear(got, tc.want, 1e-6) {
				t.Fatalf("got=%v want=%v", got, tc.want)
			}
		})
	}
}

func TestNormalizeAccel(t *testing.T) {
	const g = StandardGravity
	cases := []struct {
		name string
		src  Source
		in   mgl32.Vec3
		want mgl32.Vec3
	}{
		{"controller x", SourceController, mgl32.Vec3{g, 0, 0}, mgl32.Vec3{-1, 0, 0}},
		{"controller y", SourceController, mgl32.Vec3{0, g, 0}, mgl32.Vec3{0, 0, -1}},
		{"controller z", SourceController, mgl32.Vec3{0, 0, g}, mgl32.Vec3{0, 1, 0}},
		{"device x", SourceDevice, mgl32.Vec3{g, 0, 0}, mgl32.Vec3{0, -1, 0}},
		{"device y", SourceDevice, mgl32.Vec3{0, g, 0}, mgl32.Vec3{1, 0, 0}},
		// A phone lying flat on a table.
		{"device flat", SourceDevice, mgl32.Vec3{0, 0, g}, mgl32.Vec3{0, 0, -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeAccel(tc.src, tc.in)
			if !vecNear(got, tc.want, 1e-6) {
				t.Fatalf("got=%v want=%v", got, tc.want)
			}
		})
	}
}

func TestNormalizeIsLinear(t *testing.T) {
	u := mgl32.Vec3{0.3, -1.2, 2.5}
	v := mgl32.Vec3{-4, 0.5, 0.25}
	for _, src := range []Source{SourceController, SourceDevice} {
		lhs := NormalizeGyro(src, u.Mul(2).Add(v.Mul(-3)))
		rhs := NormalizeGyro(src, u).Mul(2).Add(NormalizeGyro(src, v).Mul(-3))
		if !vecNear(lhs, rhs, 1e-5) {
			t.Fatalf("%s gyro: got=%v want=%v", src, lhs, rhs)
		}
		lhs = NormalizeAccel(src, u.Add(v))
		rhs = NormalizeAccel(src, u).Add(NormalizeAccel(src, v))
		if !vecNear(lhs, rhs, 1e-5) {
			t.Fatalf("%s accel: got=%v want=%v", src, lhs, rhs)
		}
	}
}

func TestPublicOrientation(t *testing.T) {
	cases := []struct {
		in   mgl32.Quat
		want mgl32.Quat
	}{
		{mgl32.QuatIdent(), mgl32.Quat{W: 0, V: mgl32.Vec3{0, 0, -1}}},
		{mgl32.Quat{W: 0.1, V: mgl32.Vec3{0.2, 0.3, 0.4}}, mgl32.Quat{W: -0.4, V: mgl32.Vec3{0.3, 0.2, -0.1}}},
	}
	for _, tc := range cases {
		got := publicOrientation(tc.in)
		if !quatNear(got, tc.want, 1e-7) || got.W != tc.want.W {
			t.Fatalf("got=%v want=%v", got, tc.want)
		}
	}
}

// A device spun about its own z axis ends up as a yaw in the public
// orientation, through both the frame remap and the output permutation.
func TestDeviceYawThroughPublicOrientation(t *testing.T) {
	in := NewIntegrator(Correction{})
	// pi/2 rad/s for 1 s.
	in.SetGyroscope(NormalizeGyro(SourceDevice, mgl32.Vec3{0, 0, math.Pi / 2}))
	for i := 0; i < 10; i++ {
		in.UpdateRotation(100_000)
	}
	h := float32(math.Sqrt2 / 2)
	want := mgl32.Quat{W: -h, V: mgl32.Vec3{0, 0, -h}}
	if got := in.Orientation(); !quatNear(got, want, 1e-4) {
		t.Fatalf("got=%v want=%v", got, want)
	}
}
