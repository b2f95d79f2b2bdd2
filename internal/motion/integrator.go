package motion

import (
	"time"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Correction tunes the accelerometer correction applied by
// UpdateOrientation.
type Correction struct {
	// Kp is the proportional gain (1/s) pulling the estimated gravity
	// toward the measured one.
	Kp float32
	// RestThreshold is the compensated rate (rev/s) below which the
	// sensor counts as at rest and the gyro bias is learned.
	RestThreshold float32
	// BiasLearnRate is how fast (1/s) the bias follows the resting rate.
	BiasLearnRate float32
	// MaxSampleDelta bounds the step integrated from one sample. Longer
	// gaps are skipped.
	MaxSampleDelta time.Duration
}

func DefaultCorrection() Correction {
	return Correction{
		Kp:             0.5,
		RestThreshold:  0.01,
		BiasLearnRate:  0.2,
		MaxSampleDelta: 100 * time.Millisecond,
	}
}

// Accelerometer magnitudes outside this band are dominated by linear
// acceleration and are not used as a gravity reference.
const (
	minGravityG = 0.75
	maxGravityG = 1.25
)

// worldGravity is gravity as seen by a device lying flat, face up.
var worldGravity = mgl32.Vec3{0, 0, -1}

// Integrator keeps the running orientation estimate. Inputs are normalized
// (rev/s and g in the target frame); q rotates the sensor frame into the
// world frame.
//
// An Integrator is not safe for concurrent use; State guards it.
type Integrator struct {
	corr Correction

	q     mgl32.Quat
	gyro  mgl32.Vec3
	accel mgl32.Vec3
	bias  mgl32.Vec3

	biasEnabled bool
}

func NewIntegrator(corr Correction) Integrator {
	def := DefaultCorrection()
	if corr.Kp <= 0 {
		corr.Kp = def.Kp
	}
	if corr.RestThreshold <= 0 {
		corr.RestThreshold = def.RestThreshold
	}
	if corr.BiasLearnRate <= 0 {
		corr.BiasLearnRate = def.BiasLearnRate
	}
	if corr.MaxSampleDelta <= 0 {
		corr.MaxSampleDelta = def.MaxSampleDelta
	}
	return Integrator{corr: corr, q: mgl32.QuatIdent()}
}

func (in *Integrator) SetGyroscope(v mgl32.Vec3)    { in.gyro = v }
func (in *Integrator) SetAcceleration(v mgl32.Vec3) { in.accel = v }

func (in *Integrator) IsGyroBiasEnabled() bool { return in.biasEnabled }

// EnableGyroBias turns the accelerometer correction and bias learning on
// or off from the next update. The learned bias is kept while disabled.
func (in *Integrator) EnableGyroBias(on bool) { in.biasEnabled = on }

// compensated is the gyro rate with the learned bias removed, in rev/s.
func (in *Integrator) compensated() mgl32.Vec3 {
	if !in.biasEnabled {
		return in.gyro
	}
	return in.gyro.Sub(in.bias)
}

// step converts a sample delta to seconds; ok is false for deltas that
// must not be integrated.
func (in *Integrator) step(deltaUS uint64) (float32, bool) {
	if deltaUS == 0 || time.Duration(deltaUS)*time.Microsecond > in.corr.MaxSampleDelta {
		return 0, false
	}
	return float32(deltaUS) / 1e6, true
}

// UpdateRotation integrates the stored angular rate over deltaUS
// microseconds.
func (in *Integrator) UpdateRotation(deltaUS uint64) {
	dt, ok := in.step(deltaUS)
	if !ok {
		return
	}
	w := in.compensated().Mul(2 * math32.Pi)
	rate := w.Len()
	if rate == 0 || math32.IsNaN(rate) || math32.IsInf(rate, 0) {
		return
	}
	in.q = in.q.Mul(mgl32.QuatRotate(rate*dt, w.Mul(1/rate))).Normalize()
}

// UpdateOrientation pulls the estimate toward the measured gravity and
// learns the gyro bias while at rest. It does nothing unless bias
// correction is enabled.
func (in *Integrator) UpdateOrientation(deltaUS uint64) {
	if !in.biasEnabled {
		return
	}
	dt, ok := in.step(deltaUS)
	if !ok {
		return
	}
	g := in.accel.Len()
	if g < minGravityG || g > maxGravityG {
		return
	}
	measured := in.accel.Mul(1 / g)
	estimated := in.q.Conjugate().Rotate(worldGravity)

	// Rotating the frame about measured x estimated moves the estimate
	// toward the measurement.
	e := measured.Cross(estimated)
	if n := e.Len(); n > 0 {
		angle := math32.Min(in.corr.Kp*dt*math32.Asin(math32.Min(n, 1)), math32.Pi/4)
		in.q = in.q.Mul(mgl32.QuatRotate(angle, e.Mul(1/n))).Normalize()
	}

	rest := in.gyro.Sub(in.bias)
	if rest.Len() < in.corr.RestThreshold {
		k := math32.Min(in.corr.BiasLearnRate*dt, 1)
		in.bias = in.bias.Add(rest.Mul(k))
	}
}

// Quaternion is the raw estimate in the target frame.
func (in *Integrator) Quaternion() mgl32.Quat { return in.q }

// Orientation is the estimate in the caller-facing convention: imaginary
// part (q.y, q.x, -q.w), real part -q.z.
func (in *Integrator) Orientation() mgl32.Quat {
	return publicOrientation(in.q)
}

func publicOrientation(q mgl32.Quat) mgl32.Quat {
	return mgl32.Quat{W: -q.V[2], V: mgl32.Vec3{q.V[1], q.V[0], -q.W}}
}

// Gyroscope is the compensated rate in rad/s.
func (in *Integrator) Gyroscope() mgl32.Vec3 {
	return in.compensated().Mul(2 * math32.Pi)
}

// Acceleration is the last normalized acceleration in g.
func (in *Integrator) Acceleration() mgl32.Vec3 { return in.accel }

// Bias is the learned gyro bias in rev/s.
func (in *Integrator) Bias() mgl32.Vec3 { return in.bias }

// Reset drops the estimate and learned bias, keeping the configuration.
func (in *Integrator) Reset() {
	in.q = mgl32.QuatIdent()
	in.gyro = mgl32.Vec3{}
	in.accel = mgl32.Vec3{}
	in.bias = mgl32.Vec3{}
}
