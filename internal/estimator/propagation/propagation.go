// Package propagation implements the estimator's propagation step: the
// high-rate inertial integration of (X, θ, P), plus the bias
// initialisation sub-mode that gates filtering until sensor biases have
// settled.
package propagation

import (
	"github.com/banshee-data/inekf/internal/estimator/state"
)

// Kind identifies a propagator variant. Today there is only Inertial, but
// the type stays open per the redesign note calling for a dispatchable
// sum type rather than a hard-coded single implementation.
type Kind int

const (
	KindInertial Kind = iota
)

// Counters accumulates the numerical/operational error taxonomy this
// package can encounter, per the estimator's error-handling contract:
// nothing throws across the public boundary, callers observe counter
// deltas instead.
type Counters struct {
	ClockMonotonicityViolations uint64
	StalenessViolations         uint64
	SamplesConsumed             uint64
}

// Propagator advances a RobotState using one sensor stream. The one
// concrete implementation today is InertialPropagator.
type Propagator interface {
	// Kind identifies the propagator variant.
	Kind() Kind
	// Propagate drains its queue up to tCurr and advances state in place.
	// It returns true if at least one measurement caused the state to
	// advance.
	Propagate(s *state.RobotState, tCurr float64) (bool, error)
	// BiasInitialized reports whether the bias-init sub-mode has
	// completed.
	BiasInitialized() bool
	// InitBias forces bias-init to complete immediately using whatever
	// samples have accumulated so far. Idempotent once BiasInitialized is
	// true.
	InitBias()
	// Bias returns the current gyro/accel bias estimate, valid once
	// BiasInitialized is true.
	Bias() (gyro, accel [3]float64)
	// Counters returns a snapshot of the error-taxonomy counters.
	Counters() Counters
}
