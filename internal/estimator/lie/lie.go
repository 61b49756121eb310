// Package lie provides the SO(3) algebra the estimator core builds its
// SE_{K+2}(3) state on: the skew-symmetric hat/vee maps, the exponential
// and logarithmic maps, and the left Jacobian used by the state
// retraction. The SE_{K+2}(3) retraction itself lives in the state
// package.
package lie

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrorType selects whether a correction's error state is composed on the
// left (X̂ = exp(ξ)·X) or the right (X̂ = X·exp(ξ)) of the nominal state.
type ErrorType int

const (
	// LeftInvariant composes the error on the left: X̂ = exp(ξ)·X.
	LeftInvariant ErrorType = iota
	// RightInvariant composes the error on the right: X̂ = X·exp(ξ).
	RightInvariant
)

func (t ErrorType) String() string {
	if t == LeftInvariant {
		return "LeftInvariant"
	}
	return "RightInvariant"
}

// SkewSymmetric returns the 3x3 skew-symmetric "hat" matrix of a 3-vector,
// satisfying SkewSymmetric(v)*w == Cross(v, w).
func SkewSymmetric(v []float64) *mat.Dense {
	if len(v) != 3 {
		panic("lie: SkewSymmetric requires a 3-vector")
	}
	return mat.NewDense(3, 3, []float64{
		0, -v[2], v[1],
		v[2], 0, -v[0],
		-v[1], v[0], 0,
	})
}

// Vee is the inverse of SkewSymmetric: it extracts the 3-vector from a
// skew-symmetric 3x3 matrix (the symmetric part, if any, is averaged out).
func Vee(W *mat.Dense) []float64 {
	return []float64{
		0.5 * (W.At(2, 1) - W.At(1, 2)),
		0.5 * (W.At(0, 2) - W.At(2, 0)),
		0.5 * (W.At(1, 0) - W.At(0, 1)),
	}
}

// ExpSO3 computes the Rodrigues rotation matrix exp(SkewSymmetric(omega)),
// the exponential map from so(3) to SO(3).
func ExpSO3(omega []float64) *mat.Dense {
	theta := math.Sqrt(omega[0]*omega[0] + omega[1]*omega[1] + omega[2]*omega[2])
	W := SkewSymmetric(omega)

	R := mat.NewDense(3, 3, nil)
	R.Apply(func(i, j int, _ float64) float64 {
		if i == j {
			return 1
		}
		return 0
	}, R)

	if theta < 1e-10 {
		// Small-angle approximation: exp(W) ≈ I + W, avoids the 0/0 in
		// the Rodrigues coefficients below.
		R.Add(R, W)
		return R
	}

	var W2 mat.Dense
	W2.Mul(W, W)

	a := math.Sin(theta) / theta
	b := (1 - math.Cos(theta)) / (theta * theta)

	var term1, term2 mat.Dense
	term1.Scale(a, W)
	term2.Scale(b, &W2)

	R.Add(R, &term1)
	R.Add(R, &term2)
	return R
}

// LogSO3 computes the axis-angle vector omega such that ExpSO3(omega) == R,
// the logarithmic map from SO(3) to so(3).
func LogSO3(R *mat.Dense) []float64 {
	trace := R.At(0, 0) + R.At(1, 1) + R.At(2, 2)
	cosTheta := (trace - 1) / 2
	cosTheta = math.Max(-1, math.Min(1, cosTheta))
	theta := math.Acos(cosTheta)

	if theta < 1e-10 {
		var skew mat.Dense
		skew.Sub(R, R.T())
		skew.Scale(0.5, &skew)
		return Vee(&skew)
	}

	var skew mat.Dense
	skew.Sub(R, R.T())
	scale := theta / (2 * math.Sin(theta))
	skew.Scale(scale, &skew)
	return Vee(&skew)
}

// LeftJacobianSO3 computes the left Jacobian J_l(omega) of SO(3), used by
// the state retraction to map the tangent-space translation parts of a
// correction onto the velocity, position and landmark columns.
func LeftJacobianSO3(omega []float64) *mat.Dense {
	theta := math.Sqrt(omega[0]*omega[0] + omega[1]*omega[1] + omega[2]*omega[2])
	J := mat.NewDense(3, 3, nil)
	J.Apply(func(i, j int, _ float64) float64 {
		if i == j {
			return 1
		}
		return 0
	}, J)

	if theta < 1e-10 {
		W := SkewSymmetric(omega)
		W.Scale(0.5, W)
		J.Add(J, W)
		return J
	}

	W := SkewSymmetric(omega)
	var W2 mat.Dense
	W2.Mul(W, W)

	a := (1 - math.Cos(theta)) / (theta * theta)
	b := (theta - math.Sin(theta)) / (theta * theta * theta)

	var term1, term2 mat.Dense
	term1.Scale(a, W)
	term2.Scale(b, &W2)

	J.Add(J, &term1)
	J.Add(J, &term2)
	return J
}

// NormalizeSO3 projects a near-orthogonal 3x3 matrix back onto SO(3) via a
// symmetric-orthogonalization (Gram-Schmidt-free) renormalization, used to
// re-enforce the R·Rᵀ = I, det R = +1 invariant after repeated propagation
// steps accumulate floating point drift.
func NormalizeSO3(R *mat.Dense) *mat.Dense {
	var svd mat.SVD
	ok := svd.Factorize(R, mat.SVDFull)
	if !ok {
		return mat.DenseCopyOf(R)
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var out mat.Dense
	out.Mul(&u, v.T())

	if mat.Det(&out) < 0 {
		// Flip the sign of the last column of U to restore det = +1,
		// the standard fix for a reflection introduced by SVD rounding.
		for r := 0; r < 3; r++ {
			u.Set(r, 2, -u.At(r, 2))
		}
		out.Mul(&u, v.T())
	}
	return &out
}

// QuaternionFromSO3 converts a rotation matrix to a unit quaternion
// (w, x, y, z), using Shepperd's method to pick the numerically stable
// branch.
func QuaternionFromSO3(R *mat.Dense) [4]float64 {
	m00, m11, m22 := R.At(0, 0), R.At(1, 1), R.At(2, 2)
	trace := m00 + m11 + m22

	var q [4]float64
	switch {
	case trace > 0:
		s := 0.5 / math.Sqrt(trace+1)
		q[0] = 0.25 / s
		q[1] = (R.At(2, 1) - R.At(1, 2)) * s
		q[2] = (R.At(0, 2) - R.At(2, 0)) * s
		q[3] = (R.At(1, 0) - R.At(0, 1)) * s
	case m00 > m11 && m00 > m22:
		s := 2 * math.Sqrt(1+m00-m11-m22)
		q[0] = (R.At(2, 1) - R.At(1, 2)) / s
		q[1] = 0.25 * s
		q[2] = (R.At(0, 1) + R.At(1, 0)) / s
		q[3] = (R.At(0, 2) + R.At(2, 0)) / s
	case m11 > m22:
		s := 2 * math.Sqrt(1+m11-m00-m22)
		q[0] = (R.At(0, 2) - R.At(2, 0)) / s
		q[1] = (R.At(0, 1) + R.At(1, 0)) / s
		q[2] = 0.25 * s
		q[3] = (R.At(1, 2) + R.At(2, 1)) / s
	default:
		s := 2 * math.Sqrt(1+m22-m00-m11)
		q[0] = (R.At(1, 0) - R.At(0, 1)) / s
		q[1] = (R.At(0, 2) + R.At(2, 0)) / s
		q[2] = (R.At(1, 2) + R.At(2, 1)) / s
		q[3] = 0.25 * s
	}
	return q
}

// IsSO3 reports whether R satisfies R·Rᵀ = I and det R = +1 to within tol.
func IsSO3(R *mat.Dense, tol float64) bool {
	var RRt mat.Dense
	RRt.Mul(R, R.T())
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(RRt.At(i, j)-want) > tol {
				return false
			}
		}
	}
	return math.Abs(mat.Det(R)-1) <= tol
}
