package correction

import (
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/inekf/internal/estimator/lie"
	"github.com/banshee-data/inekf/internal/estimator/measurement"
	"github.com/banshee-data/inekf/internal/estimator/state"
)

// PositionCorrection fuses an absolute world-frame position fix (e.g. a
// GPS/RTK receiver, already converted to the local tangent-plane frame by
// the adapter) into the filter.
type PositionCorrection struct {
	queue *measurement.Queue[measurement.PositionMeasurement]
}

// NewPositionCorrection creates a PositionCorrection draining queue.
func NewPositionCorrection(queue *measurement.Queue[measurement.PositionMeasurement]) *PositionCorrection {
	return &PositionCorrection{queue: queue}
}

func (c *PositionCorrection) Kind() Kind { return KindPosition }

// QueueStats returns a snapshot of the queue's push/pop/overflow counters.
func (c *PositionCorrection) QueueStats() measurement.Stats { return c.queue.Stats() }

// Counters returns a zero Counters: PositionCorrection has no error
// taxonomy of its own beyond its queue Stats.
func (c *PositionCorrection) Counters() Counters { return Counters{} }

func (c *PositionCorrection) Correct(s *state.RobotState, errType lie.ErrorType) (bool, error) {
	_, t, ok := c.queue.Peek()
	if !ok || t > s.Time() {
		return false, nil
	}
	m, _, _ := c.queue.Pop()

	n := s.Dim()
	pos := s.Pos()

	h := mat.NewDense(3, n, nil)
	y := make([]float64, 3)
	pOff := s.PositionOffset()
	for i := 0; i < 3; i++ {
		y[i] = pos[i] - m.Position[i]
		h.Set(i, pOff+i, -1)
	}

	noise := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			noise.Set(i, j, m.Covariance[i][j])
		}
	}

	xi, err := josephUpdate(s, h, noise, y)
	if err != nil {
		return false, err
	}
	s.ApplyCorrection(xi, errType)
	return true, nil
}
