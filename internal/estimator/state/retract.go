package state

import (
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/inekf/internal/estimator/lie"
)

// ApplyCorrection applies a tangent-space correction ξ (laid out in the
// same block order as P's rows/columns) to (X, θ) via the group
// retraction implied by errType: X̂ = X·exp(ξ) for RightInvariant,
// X̂ = exp(ξ)·X for LeftInvariant. The bias block always uses plain
// vector addition regardless of convention, per the correction contract.
func (s *RobotState) ApplyCorrection(xi []float64, errType lie.ErrorType) {
	phi := xi[s.RotationOffset() : s.RotationOffset()+3]
	nu := xi[s.VelocityOffset() : s.VelocityOffset()+3]
	rho := xi[s.PositionOffset() : s.PositionOffset()+3]

	expPhi := lie.ExpSO3(phi)
	jl := lie.LeftJacobianSO3(phi)

	switch errType {
	case lie.RightInvariant:
		var newR mat.Dense
		newR.Mul(s.r, expPhi)

		s.v = addRJv(s.r, jl, nu, s.v)
		s.p = addRJv(s.r, jl, rho, s.p)
		for _, slot := range s.aug.ActiveSlots() {
			off := rotationDim + velocityDim + positionDim + 3*slot
			delta := xi[off : off+3]
			s.landmarks[slot] = addRJv(s.r, jl, delta, s.landmarks[slot])
		}
		s.r = &newR

	default: // lie.LeftInvariant
		var newR mat.Dense
		newR.Mul(expPhi, s.r)

		s.v = addJvExpV(jl, nu, expPhi, s.v)
		s.p = addJvExpV(jl, rho, expPhi, s.p)
		for _, slot := range s.aug.ActiveSlots() {
			off := rotationDim + velocityDim + positionDim + 3*slot
			delta := xi[off : off+3]
			s.landmarks[slot] = addJvExpV(jl, delta, expPhi, s.landmarks[slot])
		}
		s.r = &newR
	}

	if s.estimateBias {
		bg := xi[s.BiasOffset() : s.BiasOffset()+3]
		ba := xi[s.AccelBiasOffset() : s.AccelBiasOffset()+3]
		for i := 0; i < 3; i++ {
			s.biasGyro[i] += bg[i]
			s.biasAccel[i] += ba[i]
		}
	}
}

// addRJv computes R*(Jl*delta) + base, the right-invariant translation
// update for one ℝ³ block of the retraction.
func addRJv(r, jl *mat.Dense, delta []float64, base [3]float64) [3]float64 {
	var jlDelta mat.VecDense
	jlDelta.MulVec(jl, mat.NewVecDense(3, delta))
	var out [3]float64
	for i := 0; i < 3; i++ {
		sum := 0.0
		for k := 0; k < 3; k++ {
			sum += r.At(i, k) * jlDelta.AtVec(k)
		}
		out[i] = sum + base[i]
	}
	return out
}

// addJvExpV computes Jl*delta + exp(phi)*base, the left-invariant
// translation update for one ℝ³ block of the retraction.
func addJvExpV(jl *mat.Dense, delta []float64, expPhi *mat.Dense, base [3]float64) [3]float64 {
	var jlDelta mat.VecDense
	jlDelta.MulVec(jl, mat.NewVecDense(3, delta))
	var out [3]float64
	for i := 0; i < 3; i++ {
		sum := 0.0
		for k := 0; k < 3; k++ {
			sum += expPhi.At(i, k) * base[k]
		}
		out[i] = jlDelta.AtVec(i) + sum
	}
	return out
}
