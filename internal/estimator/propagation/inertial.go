package propagation

import (
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/inekf/internal/estimator/config"
	"github.com/banshee-data/inekf/internal/estimator/lie"
	"github.com/banshee-data/inekf/internal/estimator/measurement"
	"github.com/banshee-data/inekf/internal/estimator/state"
)

// InertialPropagator drives the filter's time update from a stream of
// ImuMeasurement samples: Euler integration of (R, v, p) between samples,
// linearised covariance propagation alongside it, and the bias-init
// sub-mode that must complete before propagation is allowed to touch
// (X, P) at all. Its integration loop mirrors the predict step of
// lidar.Tracker.Update: drain what's due, integrate sample by sample,
// track how far the clock actually advanced.
type InertialPropagator struct {
	queue *measurement.Queue[measurement.ImuMeasurement]
	cfg   config.Config

	imuToBody *mat.Dense // rotation applied to raw IMU samples before use

	biasInitialized bool
	sampleCount     int
	gyroSum         [3]float64
	accelSum        [3]float64
	biasGyro        [3]float64
	biasAccel       [3]float64

	counters Counters
}

// NewInertialPropagator creates a propagator draining queue, configured by
// cfg.
func NewInertialPropagator(queue *measurement.Queue[measurement.ImuMeasurement], cfg config.Config) *InertialPropagator {
	// R = Rz(yaw)·Ry(pitch)·Rx(roll) from the configured roll/pitch/yaw.
	rpy := cfg.ImuToBody.RollPitchYaw
	var yawPitch, imuToBody mat.Dense
	yawPitch.Mul(lie.ExpSO3([]float64{0, 0, rpy[2]}), lie.ExpSO3([]float64{0, rpy[1], 0}))
	imuToBody.Mul(&yawPitch, lie.ExpSO3([]float64{rpy[0], 0, 0}))
	return &InertialPropagator{
		queue:     queue,
		cfg:       cfg,
		imuToBody: &imuToBody,
	}
}

func (p *InertialPropagator) Kind() Kind { return KindInertial }

func (p *InertialPropagator) BiasInitialized() bool { return p.biasInitialized }

// InitBias forces bias-init to complete immediately with whatever samples
// have accumulated so far, used when the coordinator is told to skip the
// bias-settling wait (e.g. a resumed run with a previously known bias).
func (p *InertialPropagator) InitBias() {
	if p.biasInitialized {
		return
	}
	if p.sampleCount == 0 {
		p.biasInitialized = true
		return
	}
	n := float64(p.sampleCount)
	for i := 0; i < 3; i++ {
		p.biasGyro[i] = p.gyroSum[i] / n
		// A stationary IMU measures the reaction to gravity, i.e.
		// mean(a) ≈ -Gravity + b_a, so the bias is mean(a) + Gravity, not
		// mean(a) - Gravity. Matches the +Gravity sign integrate() uses to
		// turn a bias-corrected specific force into world-frame accel.
		p.biasAccel[i] = p.accelSum[i]/n + p.cfg.Gravity[i]
	}
	p.biasInitialized = true
}

func (p *InertialPropagator) Bias() (gyro, accel [3]float64) { return p.biasGyro, p.biasAccel }

func (p *InertialPropagator) Counters() Counters { return p.counters }

// Propagate drains every IMU sample with timestamp <= tCurr and integrates
// the state forward sample by sample. While bias-init is still running, it
// accumulates gyro/accel sums instead of touching (X, P); once the
// configured sample count is reached it resolves the bias estimate and
// begins integrating starting with the next sample.
func (p *InertialPropagator) Propagate(s *state.RobotState, tCurr float64) (bool, error) {
	samples := p.queue.DrainUpTo(tCurr)
	if len(samples) == 0 {
		return false, nil
	}

	tPrev := s.Time()
	advanced := false

	for _, m := range samples {
		dt := m.T - tPrev
		if dt <= 0 {
			p.counters.ClockMonotonicityViolations++
			continue
		}
		if dt > p.cfg.MaxDt {
			p.counters.StalenessViolations++
			dt = p.cfg.MaxDt
		}
		tPrev = m.T
		p.counters.SamplesConsumed++

		omega := rotateVec(p.imuToBody, m.AngularVelocity)
		accel := rotateVec(p.imuToBody, m.LinearAccel)

		if !p.biasInitialized {
			p.accumulateBiasSample(omega, accel)
			continue
		}

		p.integrate(s, omega, accel, dt)
		advanced = true
	}

	s.SetTime(tPrev)
	return advanced, nil
}

func (p *InertialPropagator) accumulateBiasSample(omega, accel [3]float64) {
	for i := 0; i < 3; i++ {
		p.gyroSum[i] += omega[i]
		p.accelSum[i] += accel[i]
	}
	p.sampleCount++
	if p.sampleCount >= p.cfg.BiasInitSampleCount {
		p.InitBias()
	}
}

// integrate advances (R, v, p) by one IMU sample and propagates P alongside
// it via a first-order discretisation Phi_k = I + A_k*dt of the invariant
// error dynamics, plus additive process noise Q_k.
func (p *InertialPropagator) integrate(s *state.RobotState, omega, accel [3]float64, dt float64) {
	omegaHat := sub3(omega, p.biasGyro)
	accelHat := sub3(accel, p.biasAccel)

	r := s.R()
	v := s.V()
	pos := s.Pos()

	var aWorld [3]float64
	rAccel := matVec3(r, accelHat)
	for i := 0; i < 3; i++ {
		aWorld[i] = rAccel[i] + p.cfg.Gravity[i]
	}

	dR := lie.ExpSO3(scale3(omegaHat, dt))
	var rNext mat.Dense
	rNext.Mul(r, dR)

	var vNext, pNext [3]float64
	for i := 0; i < 3; i++ {
		vNext[i] = v[i] + aWorld[i]*dt
		pNext[i] = pos[i] + v[i]*dt + 0.5*aWorld[i]*dt*dt
	}

	s.SetR(&rNext)
	s.SetV(vNext)
	s.SetPos(pNext)

	phi := p.buildPhi(s, r, omegaHat, accelHat, dt)
	q := p.buildQ(s, dt)

	cov := s.P()
	var phiP, next mat.Dense
	phiP.Mul(phi, cov)
	next.Mul(&phiP, phi.T())
	next.Add(&next, q)
	s.SetP(&next)
}

// buildPhi assembles the discrete state-transition matrix for one
// integration step. For the right-invariant convention the continuous-time
// generator's rotation/velocity/position block is state-independent except
// through gravity and the current rotation — the defining convenience of
// the invariant filter. The left-invariant block instead couples through
// the measured (bias-corrected) specific force directly, since its error is
// expressed in the body frame rather than the world frame.
func (p *InertialPropagator) buildPhi(s *state.RobotState, r *mat.Dense, omegaHat, accelHat [3]float64, dt float64) *mat.Dense {
	n := s.Dim()
	phi := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		phi.Set(i, i, 1)
	}

	rOff := s.RotationOffset()
	vOff := s.VelocityOffset()
	pOff := s.PositionOffset()

	addBlock := func(rowOff, colOff int, block mat.Matrix) {
		br, bc := block.Dims()
		for i := 0; i < br; i++ {
			for j := 0; j < bc; j++ {
				phi.Set(rowOff+i, colOff+j, phi.At(rowOff+i, colOff+j)+block.At(i, j)*dt)
			}
		}
	}

	switch p.cfg.ErrorType {
	case lie.RightInvariant:
		g := lie.SkewSymmetric(p.cfg.Gravity[:])
		addBlock(vOff, rOff, g)
		addBlock(pOff, vOff, identity3())
		if s.EstimateBias() {
			negR := mat.DenseCopyOf(r)
			negR.Scale(-1, negR)
			addBlock(rOff, s.BiasOffset(), negR)
			addBlock(vOff, s.AccelBiasOffset(), negR)
		}
	default: // lie.LeftInvariant
		ax := lie.SkewSymmetric(accelHat[:])
		addBlock(vOff, rOff, ax)
		addBlock(pOff, vOff, identity3())
		if s.EstimateBias() {
			negI := identity3()
			negI.Scale(-1, negI)
			addBlock(rOff, s.BiasOffset(), negI)
			addBlock(vOff, s.AccelBiasOffset(), negI)
		}
	}

	return phi
}

// buildQ assembles the additive discretised process-noise matrix from the
// configured noise densities. Augmented landmark blocks carry no process
// noise here: held-fixed foot positions evolve only in correction.
func (p *InertialPropagator) buildQ(s *state.RobotState, dt float64) *mat.Dense {
	n := s.Dim()
	q := mat.NewDense(n, n, nil)

	set := func(off int, density float64) {
		for i := 0; i < 3; i++ {
			q.Set(off+i, off+i, density*dt)
		}
	}

	set(s.RotationOffset(), p.cfg.ProcessNoise.Gyro)
	set(s.VelocityOffset(), p.cfg.ProcessNoise.Accel)

	if s.EstimateBias() {
		set(s.BiasOffset(), p.cfg.ProcessNoise.GyroBias)
		set(s.AccelBiasOffset(), p.cfg.ProcessNoise.AccelBias)
	}
	return q
}

func identity3() *mat.Dense {
	m := mat.NewDense(3, 3, nil)
	m.Set(0, 0, 1)
	m.Set(1, 1, 1)
	m.Set(2, 2, 1)
	return m
}

func rotateVec(r *mat.Dense, v [3]float64) [3]float64 {
	return matVec3(r, v)
}

func matVec3(m *mat.Dense, v [3]float64) [3]float64 {
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = m.At(i, 0)*v[0] + m.At(i, 1)*v[1] + m.At(i, 2)*v[2]
	}
	return out
}

func sub3(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func scale3(a [3]float64, s float64) []float64 {
	return []float64{a[0] * s, a[1] * s, a[2] * s}
}
