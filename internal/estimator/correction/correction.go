// Package correction implements the estimator's measurement-correction
// step: the common invariant-Kalman-update machinery, and the three
// concrete correction variants (legged-kinematics, body-velocity,
// absolute-position) that consume it.
package correction

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/inekf/internal/estimator/lie"
	"github.com/banshee-data/inekf/internal/estimator/measurement"
	"github.com/banshee-data/inekf/internal/estimator/state"
)

// Kind identifies a correction variant, the re-architecting of the
// source's virtual-dispatch base class into a tagged sum type.
type Kind int

const (
	KindVelocity Kind = iota
	KindPosition
	KindKinematics
)

func (k Kind) String() string {
	switch k {
	case KindVelocity:
		return "Velocity"
	case KindPosition:
		return "Position"
	case KindKinematics:
		return "Kinematics"
	default:
		return "Unknown"
	}
}

// Counters accumulates the error-taxonomy counters a correction can
// encounter beyond its queue's own push/pop/overflow Stats, per the
// estimator's error-handling contract: nothing throws across the public
// boundary, callers observe counter deltas instead. Only
// KinematicsCorrection currently populates DimensionMismatch; the other
// variants always report a zero Counters.
type Counters struct {
	DimensionMismatch uint64
}

// Correction advances (X, θ, P) using one measurement stream. A cycle
// peeks its queue; if empty, or the front measurement is not yet due
// (timestamp after the state's current time), it is a no-op returning
// false. Otherwise it pops the one due measurement and applies it,
// returning true if that changed the state; a popped measurement that
// changes nothing, or is refused with an error, returns false.
type Correction interface {
	Kind() Kind
	Correct(s *state.RobotState, errType lie.ErrorType) (bool, error)
	// QueueStats returns a snapshot of the correction's queue push/pop/
	// overflow counters, so a coordinator can fold QueueOverflow across
	// every registered correction without knowing its concrete type.
	QueueStats() measurement.Stats
	// Counters returns a snapshot of this correction's own error-taxonomy
	// counters, separate from its queue Stats.
	Counters() Counters
}

// josephUpdate runs the common invariant-Kalman-update arithmetic given
// measurement Jacobian H (rows x s.Dim()), noise N (rows x rows), and
// innovation y (length rows). It mutates s's covariance in place via the
// Joseph form and returns the tangent-space correction ξ for the caller
// to apply to (X, θ) via the group retraction.
func josephUpdate(s *state.RobotState, H, N *mat.Dense, y []float64) ([]float64, error) {
	n := s.Dim()
	rows, cols := H.Dims()
	if cols != n {
		return nil, fmt.Errorf("correction: Jacobian has %d columns, want %d", cols, n)
	}
	if nr, nc := N.Dims(); nr != rows || nc != rows {
		return nil, fmt.Errorf("correction: noise matrix is %dx%d, want %dx%d", nr, nc, rows, rows)
	}

	p := s.P()

	var hp mat.Dense
	hp.Mul(H, p)
	var innovCov mat.Dense
	innovCov.Mul(&hp, H.T())
	innovCov.Add(&innovCov, N)

	var sInv mat.Dense
	if err := sInv.Inverse(&innovCov); err != nil {
		return nil, fmt.Errorf("correction: innovation covariance is singular: %w", err)
	}

	var pHt mat.Dense
	pHt.Mul(p, H.T())
	var k mat.Dense
	k.Mul(&pHt, &sInv)

	yVec := mat.NewVecDense(rows, append([]float64(nil), y...))
	var xiVec mat.VecDense
	xiVec.MulVec(&k, yVec)
	xi := make([]float64, n)
	for i := 0; i < n; i++ {
		xi[i] = xiVec.AtVec(i)
	}

	ident := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		ident.Set(i, i, 1)
	}
	var kh mat.Dense
	kh.Mul(&k, H)
	var imKH mat.Dense
	imKH.Sub(ident, &kh)

	var t1, newP mat.Dense
	t1.Mul(&imKH, p)
	newP.Mul(&t1, imKH.T())

	var kn, knkt mat.Dense
	kn.Mul(&k, N)
	knkt.Mul(&kn, k.T())
	newP.Add(&newP, &knkt)

	s.SetP(&newP)
	return xi, nil
}
