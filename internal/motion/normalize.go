// Package motion fuses controller and device motion sensors into the
// accelerometer, gyroscope and orientation values a guest reads.
package motion

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// StandardGravity is one g in m/s^2.
const StandardGravity = 9.80665

// Source is the hardware a sample came from. Each source has its own
// native axis convention.
type Source int

const (
	SourceNone Source = iota
	SourceController
	SourceDevice
)

func (s Source) String() string {
	switch s {
	case SourceController:
		return "controller"
	case SourceDevice:
		return "device"
	default:
		return ""
	}
}

// remapFor rotates a source-native vector into the controller convention.
// Controllers already use it.
func remapFor(src Source, v mgl32.Vec3) mgl32.Vec3 {
	if src == SourceDevice {
		return mgl32.Vec3{-v[1], v[2], -v[0]}
	}
	return v
}

// toTarget is the final step shared by every source: swap y and z, then
// negate the new y.
func toTarget(v mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{v[0], -v[2], v[1]}
}

// NormalizeGyro converts a rad/s reading into revolutions per second in
// the target frame.
func NormalizeGyro(src Source, v mgl32.Vec3) mgl32.Vec3 {
	return toTarget(remapFor(src, v.Mul(1/(2*math32.Pi))))
}

// NormalizeAccel converts a m/s^2 reading into g in the target frame. The
// sign flips so a resting sensor reports gravity rather than the reaction
// force.
func NormalizeAccel(src Source, v mgl32.Vec3) mgl32.Vec3 {
	return toTarget(remapFor(src, v.Mul(1/float32(-StandardGravity))))
}
