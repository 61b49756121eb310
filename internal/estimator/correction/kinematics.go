package correction

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/inekf/internal/estimator/lie"
	"github.com/banshee-data/inekf/internal/estimator/measurement"
	"github.com/banshee-data/inekf/internal/estimator/state"
)

// KinematicsCorrection fuses legged-kinematics contact observations into
// the filter. The per-limb foot position and Jacobian-propagated
// covariance are computed by the adapter's forward-kinematics
// collaborator before the measurement is enqueued (measurement.LimbContact
// already carries them), so this correction consumes the measurement
// directly rather than invoking a forward-kinematics interface itself.
//
// On a 0->1 contact transition it augments the state with a new landmark;
// on 1->0 it un-augments; while contact persists it folds the limb's
// residual into a single stacked update alongside every other limb that
// also persists contact this cycle.
type KinematicsCorrection struct {
	queue    *measurement.Queue[measurement.KinematicsMeasurement]
	numLimbs int

	wasContact  map[int]bool
	landmarkIDs map[int]uuid.UUID

	counters Counters
}

// NewKinematicsCorrection creates a KinematicsCorrection draining queue.
// numLimbs is the configured number of contact limbs every
// KinematicsMeasurement must report; a measurement whose Limbs map has a
// different length is refused (DimensionMismatch) rather than applied. A
// numLimbs of 0 disables the check, for callers that model a variable
// number of limbs per measurement.
func NewKinematicsCorrection(queue *measurement.Queue[measurement.KinematicsMeasurement], numLimbs int) *KinematicsCorrection {
	return &KinematicsCorrection{
		queue:       queue,
		numLimbs:    numLimbs,
		wasContact:  make(map[int]bool),
		landmarkIDs: make(map[int]uuid.UUID),
	}
}

func (c *KinematicsCorrection) Kind() Kind { return KindKinematics }

// QueueStats returns a snapshot of the queue's push/pop/overflow counters.
func (c *KinematicsCorrection) QueueStats() measurement.Stats { return c.queue.Stats() }

// Counters returns a snapshot of this correction's own error-taxonomy
// counters (today, just DimensionMismatch).
func (c *KinematicsCorrection) Counters() Counters { return c.counters }

func (c *KinematicsCorrection) Correct(s *state.RobotState, errType lie.ErrorType) (bool, error) {
	_, t, ok := c.queue.Peek()
	if !ok || t > s.Time() {
		return false, nil
	}
	m, _, _ := c.queue.Pop()

	if c.numLimbs > 0 && len(m.Limbs) != c.numLimbs {
		c.counters.DimensionMismatch++
		return false, fmt.Errorf("correction: kinematics measurement has %d limbs, want %d", len(m.Limbs), c.numLimbs)
	}

	limbIDs := make([]int, 0, len(m.Limbs))
	for id := range m.Limbs {
		limbIDs = append(limbIDs, id)
	}
	sort.Ints(limbIDs)

	advanced := false
	var rows []float64
	var hRows [][]float64
	var noiseBlocks []([3][3]float64)

	r := s.R()
	pos := s.Pos()

	for _, limbID := range limbIDs {
		limb := m.Limbs[limbID]
		was := c.wasContact[limbID]

		switch {
		case limb.Contact && !was:
			id := uuid.New()
			worldPos := addVec(pos, matVec(r, limb.FootPosition))
			worldCov := rCovRt(r, limb.Covariance)
			if err := s.Augment(id, worldPos, worldCov); err == nil {
				c.landmarkIDs[limbID] = id
				advanced = true
			}

		case !limb.Contact && was:
			if id, ok := c.landmarkIDs[limbID]; ok {
				s.Unaugment(id)
				delete(c.landmarkIDs, limbID)
				advanced = true
			}

		case limb.Contact && was:
			id, ok := c.landmarkIDs[limbID]
			if !ok {
				break
			}
			off, ok := s.LandmarkOffset(id)
			if !ok {
				break
			}
			d, ok := s.Landmark(id)
			if !ok {
				break
			}
			yRow, hRow := kinematicsResidual(s, r, pos, d, off, limb.FootPosition)
			rows = append(rows, yRow...)
			hRows = append(hRows, hRow...)
			noiseBlocks = append(noiseBlocks, limb.Covariance)
		}
		c.wasContact[limbID] = limb.Contact
	}

	if len(hRows) == 0 {
		return advanced, nil
	}

	n := s.Dim()
	stackRows := len(hRows)
	h := mat.NewDense(stackRows, n, nil)
	for i, row := range hRows {
		for j := 0; j < n; j++ {
			h.Set(i, j, row[j])
		}
	}

	noise := mat.NewDense(stackRows, stackRows, nil)
	for b, block := range noiseBlocks {
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				noise.Set(b*3+i, b*3+j, block[i][j])
			}
		}
	}

	xi, err := josephUpdate(s, h, noise, rows)
	if err != nil {
		return advanced, err
	}
	s.ApplyCorrection(xi, errType)
	return true, nil
}

// kinematicsResidual builds the 3-row innovation and Jacobian block for a
// limb whose contact persists: the body-frame residual between the
// measured foot position and the one predicted from the augmented
// landmark, y = Rᵗ(d - p) - p_i^B, with H selecting +Rᵗ at the position
// block and -Rᵗ at the landmark's block.
func kinematicsResidual(s *state.RobotState, r *mat.Dense, pos, d [3]float64, landmarkOff int, footBody [3]float64) ([]float64, [][]float64) {
	n := s.Dim()
	diff := subVec(d, pos)
	predicted := matVecT(r, diff)

	y := make([]float64, 3)
	for i := 0; i < 3; i++ {
		y[i] = predicted[i] - footBody[i]
	}

	h := make([][]float64, 3)
	pOff := s.PositionOffset()
	for i := 0; i < 3; i++ {
		h[i] = make([]float64, n)
		for k := 0; k < 3; k++ {
			h[i][pOff+k] = r.At(k, i)
			h[i][landmarkOff+k] = -r.At(k, i)
		}
	}
	return y, h
}

func addVec(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

func subVec(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

// matVec computes R*v.
func matVec(r *mat.Dense, v [3]float64) [3]float64 {
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = r.At(i, 0)*v[0] + r.At(i, 1)*v[1] + r.At(i, 2)*v[2]
	}
	return out
}

// matVecT computes Rᵗ*v.
func matVecT(r *mat.Dense, v [3]float64) [3]float64 {
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = r.At(0, i)*v[0] + r.At(1, i)*v[1] + r.At(2, i)*v[2]
	}
	return out
}

// rCovRt computes R*Σ*Rᵗ, rotating a body-frame covariance block into the
// world frame for a newly augmented landmark.
func rCovRt(r *mat.Dense, cov [3][3]float64) [3][3]float64 {
	c := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			c.Set(i, j, cov[i][j])
		}
	}
	var rc, out mat.Dense
	rc.Mul(r, c)
	out.Mul(&rc, r.T())

	var res [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			res[i][j] = out.At(i, j)
		}
	}
	return res
}
