package correction

import (
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/inekf/internal/estimator/lie"
	"github.com/banshee-data/inekf/internal/estimator/measurement"
	"github.com/banshee-data/inekf/internal/estimator/state"
)

// VelocityCorrection fuses a body-frame velocity stream (wheel odometry, a
// Doppler sensor) into the filter.
type VelocityCorrection struct {
	queue *measurement.Queue[measurement.VelocityMeasurement]
}

// NewVelocityCorrection creates a VelocityCorrection draining queue.
func NewVelocityCorrection(queue *measurement.Queue[measurement.VelocityMeasurement]) *VelocityCorrection {
	return &VelocityCorrection{queue: queue}
}

func (c *VelocityCorrection) Kind() Kind { return KindVelocity }

// QueueStats returns a snapshot of the queue's push/pop/overflow counters.
func (c *VelocityCorrection) QueueStats() measurement.Stats { return c.queue.Stats() }

// Counters returns a zero Counters: VelocityCorrection has no error
// taxonomy of its own beyond its queue Stats.
func (c *VelocityCorrection) Counters() Counters { return Counters{} }

func (c *VelocityCorrection) Correct(s *state.RobotState, errType lie.ErrorType) (bool, error) {
	_, t, ok := c.queue.Peek()
	if !ok || t > s.Time() {
		return false, nil
	}
	m, _, _ := c.queue.Pop()

	n := s.Dim()
	r := s.R()
	v := s.V()

	h := mat.NewDense(3, n, nil)
	y := make([]float64, 3)

	vOff := s.VelocityOffset()
	switch errType {
	case lie.RightInvariant:
		// Innovation and Jacobian expressed in the body frame: the
		// right-invariant error composes velocity residuals through Rᵗ.
		for i := 0; i < 3; i++ {
			pred := 0.0
			for k := 0; k < 3; k++ {
				pred += r.At(k, i) * v[k]
			}
			y[i] = pred - m.BodyVelocity[i]
			for k := 0; k < 3; k++ {
				h.Set(i, vOff+k, -r.At(k, i))
			}
		}
	default: // lie.LeftInvariant
		for i := 0; i < 3; i++ {
			rotMeas := 0.0
			for k := 0; k < 3; k++ {
				rotMeas += r.At(i, k) * m.BodyVelocity[k]
			}
			y[i] = v[i] - rotMeas
			h.Set(i, vOff+i, -1)
		}
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
