// Package state implements the estimator's Lie-group state container: the
// extended SE_{K+2}(3) pose X, the sensor-bias vector θ, and their joint
// covariance P, together with the bookkeeping for dynamically augmented
// contact-foot landmarks.
package state

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/inekf/internal/estimator/lie"
)

// Block layout of the tangent space (and of P's rows/columns), in order:
// rotation (3), velocity (3), position (3), landmark_0..landmark_{cap-1}
// (3 each), gyro bias (3, if bias estimated), accel bias (3, if bias
// estimated).
const (
	rotationDim = 3
	velocityDim = 3
	positionDim = 3
	biasDim     = 6
)

// RobotState is the filter's current estimate: the pose/landmark group
// element X, the IMU bias θ, and their covariance P. It is owned solely by
// the estimator coordinator — unlike measurement.Queue and output.Queue,
// it carries no internal mutex, because the coordinator contract
// guarantees exactly one goroutine ever touches it at a time.
type RobotState struct {
	r *mat.Dense // 3x3 rotation

	v [3]float64 // body velocity, world frame
	p [3]float64 // position, world frame

	landmarks []([3]float64) // arena-indexed augmented foot positions, world frame
	aug       *AugmentationManager

	estimateBias bool
	biasGyro     [3]float64
	biasAccel    [3]float64

	cov *mat.Dense // P, square, dim() x dim()

	t float64 // time this state was last advanced to
}

// New creates a RobotState at the identity pose with zero covariance,
// with room for maxLandmarks simultaneously augmented contact feet.
func New(maxLandmarks int, estimateBias bool) *RobotState {
	s := &RobotState{
		r:            lie.ExpSO3([]float64{0, 0, 0}),
		landmarks:    make([][3]float64, maxLandmarks),
		aug:          NewAugmentationManager(maxLandmarks),
		estimateBias: estimateBias,
	}
	s.cov = mat.NewDense(s.Dim(), s.Dim(), nil)
	return s
}

// Dim returns the dimension of the tangent space (and of P).
func (s *RobotState) Dim() int {
	d := rotationDim + velocityDim + positionDim + 3*s.aug.Capacity()
	if s.estimateBias {
		d += biasDim
	}
	return d
}

// Offset accessors for the block layout, used by propagation and
// correction to address the right rows/columns of P without either
// package needing to know the other's layout assumptions.

func (s *RobotState) RotationOffset() int { return 0 }
func (s *RobotState) VelocityOffset() int { return rotationDim }
func (s *RobotState) PositionOffset() int { return rotationDim + velocityDim }

// LandmarkOffset returns the row/column offset of landmark id's block, and
// false if id is not currently augmented.
func (s *RobotState) LandmarkOffset(id uuid.UUID) (int, bool) {
	slot, ok := s.aug.SlotOf(id)
	if !ok {
		return 0, false
	}
	return rotationDim + velocityDim + positionDim + 3*slot, true
}

// BiasOffset returns the offset of the gyro-bias block; AccelBiasOffset
// follows it directly. Both are meaningless if EstimateBias is false.
func (s *RobotState) BiasOffset() int {
	return rotationDim + velocityDim + positionDim + 3*s.aug.Capacity()
}

func (s *RobotState) AccelBiasOffset() int { return s.BiasOffset() + 3 }

// EstimateBias reports whether this state carries a bias block.
func (s *RobotState) EstimateBias() bool { return s.estimateBias }

// MaxLandmarks reports the augmentation arena's capacity.
func (s *RobotState) MaxLandmarks() int { return s.aug.Capacity() }

// Augmentation returns the landmark arena manager, for correction/
// diagnostics code that needs to iterate currently augmented slots. It
// exposes slot indices (ActiveSlots, SlotOf) but no way to list the
// landmark IDs, so callers track the uuid.UUID values themselves.
func (s *RobotState) Augmentation() *AugmentationManager { return s.aug }

// R returns the current rotation matrix.
func (s *RobotState) R() *mat.Dense { return mat.DenseCopyOf(s.r) }

// SetR sets the rotation matrix. Callers are expected to pass an
// (approximately) orthonormal matrix; RobotState does not silently
// renormalize on every SetR, only where the propagation/correction
// contract calls for it explicitly (see RenormalizeRotation).
func (s *RobotState) SetR(r *mat.Dense) { s.r = mat.DenseCopyOf(r) }

// V returns the body velocity in the world frame.
func (s *RobotState) V() [3]float64 { return s.v }

// SetV sets the body velocity.
func (s *RobotState) SetV(v [3]float64) { s.v = v }

// Pos returns the position in the world frame.
func (s *RobotState) Pos() [3]float64 { return s.p }

// SetPos sets the position.
func (s *RobotState) SetPos(p [3]float64) { s.p = p }

// Bias returns the current gyro and accelerometer bias estimates.
func (s *RobotState) Bias() (gyro, accel [3]float64) { return s.biasGyro, s.biasAccel }

// SetBias sets the gyro and accelerometer bias estimates.
func (s *RobotState) SetBias(gyro, accel [3]float64) {
	s.biasGyro = gyro
	s.biasAccel = accel
}

// Time returns the timestamp this state was last advanced to.
func (s *RobotState) Time() float64 { return s.t }

// SetTime sets the timestamp this state was last advanced to.
func (s *RobotState) SetTime(t float64) { s.t = t }

// Landmark returns the world-frame position of augmented landmark id.
func (s *RobotState) Landmark(id uuid.UUID) ([3]float64, bool) {
	slot, ok := s.aug.SlotOf(id)
	if !ok {
		return [3]float64{}, false
	}
	return s.landmarks[slot], true
}

// P returns a copy of the state covariance.
func (s *RobotState) P() *mat.Dense { return mat.DenseCopyOf(s.cov) }

// SetP replaces the state covariance. P must already be Dim() x Dim().
func (s *RobotState) SetP(p *mat.Dense) {
	r, c := p.Dims()
	if r != s.Dim() || c != s.Dim() {
		panic(fmt.Sprintf("state: SetP dimension mismatch: got %dx%d, want %dx%d", r, c, s.Dim(), s.Dim()))
	}
	s.cov = mat.DenseCopyOf(p)
}

// Symmetrize enforces P = (P + Pᵀ)/2, the numerical upkeep the coordinator
// runs every cycle to counter floating point asymmetry drift.
func (s *RobotState) Symmetrize() {
	var t mat.Dense
	t.CloneFrom(s.cov.T())
	s.cov.Add(s.cov, &t)
	s.cov.Scale(0.5, s.cov)
}

// RenormalizeRotation projects R back onto SO(3), the numerical upkeep
// that counters floating point drift away from orthonormality.
func (s *RobotState) RenormalizeRotation() {
	s.r = lie.NormalizeSO3(s.r)
}

// IsValid reports whether R is orthonormal with det +1, and P is
// symmetric with no eigenvalue below -tol, both to the given tolerance.
func (s *RobotState) IsValid(tol float64) bool {
	if !lie.IsSO3(s.r, tol) {
		return false
	}
	n := s.Dim()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if math.Abs(s.cov.At(i, j)-s.cov.At(j, i)) > tol {
				return false
			}
		}
	}
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, s.cov.At(i, j))
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(sym, false) {
		return false
	}
	for _, v := range eig.Values(nil) {
		if v < -tol {
			return false
		}
	}
	return true
}

// Augment appends a contact-foot landmark at world-frame position d with
// covariance block cov, returning an error if the augmentation arena is
// already at capacity.
func (s *RobotState) Augment(id uuid.UUID, d [3]float64, cov [3][3]float64) error {
	slot, ok := s.aug.Augment(id)
	if !ok {
		return fmt.Errorf("state: augmentation arena at capacity (%d landmarks)", s.aug.Capacity())
	}
	s.landmarks[slot] = d

	off := rotationDim + velocityDim + positionDim + 3*slot
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			s.cov.Set(off+i, off+j, cov[i][j])
		}
	}
	return nil
}

// Unaugment removes landmark id, zeroing its P block and tombstoning its
// arena slot for reuse. It is a no-op if id is not currently augmented.
func (s *RobotState) Unaugment(id uuid.UUID) {
	slot, ok := s.aug.Unaugment(id)
	if !ok {
		return
	}
	s.landmarks[slot] = [3]float64{}

	off := rotationDim + velocityDim + positionDim + 3*slot
	n := s.Dim()
	for i := 0; i < 3; i++ {
		for j := 0; j < n; j++ {
			s.cov.Set(off+i, j, 0)
			s.cov.Set(j, off+i, 0)
		}
	}
}

// Clone returns a deep copy of s with no aliasing to the live state —
// the snapshot contract the output queue relies on.
func (s *RobotState) Clone() *RobotState {
	out := &RobotState{
		r:            mat.DenseCopyOf(s.r),
		v:            s.v,
		p:            s.p,
		landmarks:    make([][3]float64, len(s.landmarks)),
		aug:          s.aug.Clone(),
		estimateBias: s.estimateBias,
		biasGyro:     s.biasGyro,
		biasAccel:    s.biasAccel,
		cov:          mat.DenseCopyOf(s.cov),
		t:            s.t,
	}
	copy(out.landmarks, s.landmarks)
	return out
}
