// Package coordinator owns the estimator's per-cycle sequencing: the
// bias-init/state-init/running lifecycle, the one registered Propagation
// and ordered list of Corrections, and the output queue they publish to.
package coordinator

import (
	"github.com/banshee-data/inekf/internal/estimator/config"
	"github.com/banshee-data/inekf/internal/estimator/correction"
	"github.com/banshee-data/inekf/internal/estimator/measurement"
	"github.com/banshee-data/inekf/internal/estimator/output"
	"github.com/banshee-data/inekf/internal/estimator/propagation"
	"github.com/banshee-data/inekf/internal/estimator/state"
	"github.com/banshee-data/inekf/internal/monitoring"
)

// LifecycleState is one of the coordinator's three init states.
type LifecycleState int

const (
	BiasInit LifecycleState = iota
	StateInit
	Running
)

func (s LifecycleState) String() string {
	switch s {
	case BiasInit:
		return "BiasInit"
	case StateInit:
		return "StateInit"
	case Running:
		return "Running"
	default:
		return "Unknown"
	}
}

// Counters accumulates the coordinator's own operational counters plus a
// snapshot of every error-taxonomy counter reachable from its registered
// propagator/corrections and their queues, aggregated by Counters() into
// the single view the estimator's external-interface contract promises.
type Counters struct {
	CyclesRun           uint64
	StatesPublished     uint64
	CovarianceLossOfPSD uint64

	ClockMonotonicityViolations uint64
	StalenessViolations         uint64
	DimensionMismatch           uint64
	QueueOverflow               uint64
}

// Estimator is the estimator core's composition root: it owns the
// RobotState, the registered Propagation and Corrections, and the output
// queue, and drives them through the BiasInit -> StateInit -> Running
// lifecycle. RobotState is owned solely by Estimator; nothing outside
// RunOnce/InitState/Clear ever mutates it.
type Estimator struct {
	cfg       config.Config
	lifecycle LifecycleState

	state *state.RobotState

	propagator propagation.Propagator
	imuQueue   *measurement.Queue[measurement.ImuMeasurement]

	corrections []correction.Correction

	velocityInitQueue    *measurement.Queue[measurement.VelocityMeasurement]
	kinematicsInitQueue  *measurement.Queue[measurement.KinematicsMeasurement]
	velocityRegistered   bool
	kinematicsRegistered bool

	out *output.Queue

	counters Counters
}

// New creates an Estimator in the BiasInit state, ready for
// add_*_propagation/correction registration.
func New(cfg config.Config, maxLandmarks int) *Estimator {
	return &Estimator{
		cfg:       cfg,
		lifecycle: BiasInit,
		state:     state.New(maxLandmarks, cfg.EstimateBias),
		out:       output.NewQueue(),
	}
}

// AddImuPropagation registers the inertial propagation source. Only one
// may be registered; a later call replaces both the queue and the
// propagator, discarding any accumulated bias-init state.
func (e *Estimator) AddImuPropagation(queue *measurement.Queue[measurement.ImuMeasurement]) {
	e.imuQueue = queue
	e.propagator = propagation.NewInertialPropagator(queue, e.cfg)
}

// AddVelocityCorrection registers a body-velocity correction source. Per
// the project's resolution of the upstream "fuse one or many velocity
// sources" open question, only the first registered source is honored;
// later calls are rejected with a logged warning rather than silently
// fused or silently dropped.
func (e *Estimator) AddVelocityCorrection(queue *measurement.Queue[measurement.VelocityMeasurement]) {
	if e.velocityRegistered {
		monitoring.Logf("coordinator: velocity correction already registered, ignoring additional source")
		return
	}
	e.velocityRegistered = true
	e.velocityInitQueue = queue
	e.corrections = append(e.corrections, correction.NewVelocityCorrection(queue))
}

// AddKinematicsCorrection registers a legged-kinematics correction source.
func (e *Estimator) AddKinematicsCorrection(queue *measurement.Queue[measurement.KinematicsMeasurement]) {
	e.kinematicsRegistered = true
	e.kinematicsInitQueue = queue
	e.corrections = append(e.corrections, correction.NewKinematicsCorrection(queue, e.cfg.NumLimbs))
}

// AddPositionCorrection registers an absolute-position correction source.
func (e *Estimator) AddPositionCorrection(queue *measurement.Queue[measurement.PositionMeasurement]) {
	e.corrections = append(e.corrections, correction.NewPositionCorrection(queue))
}

// IsEnabled reports whether the coordinator has reached Running.
func (e *Estimator) IsEnabled() bool { return e.lifecycle == Running }

// BiasInitialized reports whether the registered propagator has finished
// bias initialisation. False if no propagator is registered.
func (e *Estimator) BiasInitialized() bool {
	return e.propagator != nil && e.propagator.BiasInitialized()
}

// InitBias forces the propagator's bias-init sub-mode to complete
// immediately. A no-op if already initialized, per the bias-init
// idempotence property.
func (e *Estimator) InitBias() {
	if e.propagator != nil {
		e.propagator.InitBias()
	}
}

// InitState forces the StateInit -> Running transition immediately, using
// whatever velocity/kinematics sample is available (or a zero v0 if
// none). Exposed for callers that want to skip waiting on the next
// RunOnce cycle, e.g. test harnesses and the zero-velocity-source robot
// case.
func (e *Estimator) InitState() {
	if e.lifecycle != BiasInit && e.lifecycle != StateInit {
		return
	}
	e.completeStateInit()
}

// Clear resets the coordinator to BiasInit with a fresh RobotState and a
// fresh propagator (discarding any accumulated bias-init samples), per
// the lifecycle's "Running is terminal unless an external reset is
// requested" contract.
func (e *Estimator) Clear() {
	e.lifecycle = BiasInit
	e.state = state.New(e.state.MaxLandmarks(), e.cfg.EstimateBias)
	if e.imuQueue != nil {
		e.propagator = propagation.NewInertialPropagator(e.imuQueue, e.cfg)
	}
	e.counters = Counters{}
}

// Reset is Clear plus dropping every registered correction, the harder
// reset a test harness uses between independent scenarios rather than
// the lifecycle's own soft reset.
func (e *Estimator) Reset() {
	e.Clear()
	e.corrections = nil
	e.velocityRegistered = false
	e.kinematicsRegistered = false
	e.velocityInitQueue = nil
	e.kinematicsInitQueue = nil
}

// GetState returns a deep clone of the current RobotState; callers never
// observe the coordinator's live, mutating copy.
func (e *Estimator) GetState() *state.RobotState { return e.state.Clone() }

// Counters returns a snapshot of the coordinator's own operational
// counters, aggregated with the propagator's ClockMonotonicity/Staleness
// counters, the imu queue's overflow count, and every registered
// correction's queue overflow plus DimensionMismatch counters. This is
// the single error-taxonomy view the estimator's external-interface
// contract promises callers, rather than making them reach into
// propagation/correction/measurement internals themselves.
func (e *Estimator) Counters() Counters {
	c := e.counters

	if e.propagator != nil {
		pc := e.propagator.Counters()
		c.ClockMonotonicityViolations += pc.ClockMonotonicityViolations
		c.StalenessViolations += pc.StalenessViolations
	}
	if e.imuQueue != nil {
		c.QueueOverflow += e.imuQueue.Stats().Overflow
	}
	for _, corr := range e.corrections {
		c.QueueOverflow += corr.QueueStats().Overflow
		c.DimensionMismatch += corr.Counters().DimensionMismatch
	}

	return c
}

// OutputQueue returns the coordinator's published-snapshot queue.
func (e *Estimator) OutputQueue() *output.Queue { return e.out }

// RunOnce drives one coordinator cycle at tCurr. In BiasInit/StateInit it
// runs the corresponding initialisation routine instead of
// propagation+correction; in Running it runs the full propagate-then-
// correct sequence and publishes a snapshot if anything advanced. It
// returns true if the cycle advanced published state.
func (e *Estimator) RunOnce(tCurr float64) (bool, error) {
	switch e.lifecycle {
	case BiasInit:
		return e.runBiasInit(tCurr)
	case StateInit:
		return e.runStateInit(tCurr)
	default:
		return e.runCycle(tCurr)
	}
}

func (e *Estimator) runBiasInit(tCurr float64) (bool, error) {
	if e.propagator == nil {
		return false, nil
	}
	if _, err := e.propagator.Propagate(e.state, tCurr); err != nil {
		return false, err
	}
	if e.propagator.BiasInitialized() {
		e.lifecycle = StateInit
	}
	return false, nil
}

func (e *Estimator) runStateInit(tCurr float64) (bool, error) {
	if !e.stateInitReady() {
		return false, nil
	}
	e.completeStateInit()
	return false, nil
}

// stateInitReady reports whether at least one IMU sample has been seen
// (bias-init already requires this) and at least one velocity or
// kinematics sample is available to seed v0.
func (e *Estimator) stateInitReady() bool {
	if e.propagator == nil {
		return false
	}
	if e.velocityInitQueue != nil {
		if _, _, ok := e.velocityInitQueue.Peek(); ok {
			return true
		}
	}
	if e.kinematicsInitQueue != nil {
		if _, _, ok := e.kinematicsInitQueue.Peek(); ok {
			return true
		}
	}
	return false
}

// completeStateInit performs the one-shot StateInit -> Running transition:
// identity rotation, origin position, v0 from the front of the velocity
// queue (zero if only kinematics is available), biases copied from the
// propagator, and covariance seeded from the configured block diagonals.
func (e *Estimator) completeStateInit() {
	v0 := [3]float64{}
	if e.velocityInitQueue != nil {
		if m, _, ok := e.velocityInitQueue.Peek(); ok {
			v0 = m.BodyVelocity // R0 = identity, so R0*v_body == v_body
		}
	}
	e.state.SetV(v0)
	e.state.SetPos([3]float64{0, 0, 0})

	if e.propagator != nil {
		gyro, accel := e.propagator.Bias()
		e.state.SetBias(gyro, accel)
	}

	e.seedInitialCovariance()
	e.lifecycle = Running
}

func (e *Estimator) seedInitialCovariance() {
	p := e.state.P()
	ic := e.cfg.InitialCovariance
	setBlock := func(off int, v float64) {
		for i := 0; i < 3; i++ {
			p.Set(off+i, off+i, v)
		}
	}
	setBlock(e.state.RotationOffset(), ic.Rotation)
	setBlock(e.state.VelocityOffset(), ic.Velocity)
	setBlock(e.state.PositionOffset(), ic.Position)
	if e.state.EstimateBias() {
		setBlock(e.state.BiasOffset(), ic.GyroBias)
		setBlock(e.state.AccelBiasOffset(), ic.AccelBias)
	}
	e.state.SetP(p)
}

// runCycle is the Running-state per-cycle algorithm: propagate, then run
// every correction in registration order, then symmetrise/renormalise and
// publish if anything advanced.
func (e *Estimator) runCycle(tCurr float64) (bool, error) {
	advanced := false

	if e.propagator != nil {
		a, err := e.propagator.Propagate(e.state, tCurr)
		if err != nil {
			return false, err
		}
		advanced = advanced || a
	}

	for _, c := range e.corrections {
		a, err := c.Correct(e.state, e.cfg.ErrorType)
		if err != nil {
			return false, err
		}
		advanced = advanced || a
	}

	e.state.Symmetrize()
	e.state.RenormalizeRotation()
	if !e.state.IsValid(1e-6) {
		e.counters.CovarianceLossOfPSD++
	}

	e.counters.CyclesRun++

	// Open question (not silently resolved): whether to gate publication
	// on "new information" rather than any advancing step. This always
	// publishes after any advancing step, matching the upstream TODO'd
	// behaviour rather than the unimplemented alternative.
	if advanced {
		e.counters.StatesPublished++
		e.out.Push(tCurr, e.state.Clone())
	}
	return advanced, nil
}
