package correction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/inekf/internal/estimator/lie"
	"github.com/banshee-data/inekf/internal/estimator/measurement"
	"github.com/banshee-data/inekf/internal/estimator/state"
)

func identityCov(scale float64) [3][3]float64 {
	return [3][3]float64{
		{scale, 0, 0},
		{0, scale, 0},
		{0, 0, scale},
	}
}

func TestVelocityCorrection_NoMeasurementDue(t *testing.T) {
	t.Parallel()

	q := measurement.NewQueue[measurement.VelocityMeasurement](0)
	c := NewVelocityCorrection(q)
	s := state.New(0, false)
	s.SetTime(1.0)

	q.Push(5.0, measurement.VelocityMeasurement{T: 5.0})
	advanced, err := c.Correct(s, lie.RightInvariant)
	require.NoError(t, err)
	assert.False(t, advanced)
}

func TestVelocityCorrection_PullsVelocityTowardMeasurement(t *testing.T) {
	t.Parallel()

	q := measurement.NewQueue[measurement.VelocityMeasurement](0)
	c := NewVelocityCorrection(q)
	s := state.New(0, false)
	s.SetTime(1.0)
	s.SetV([3]float64{2, 0, 0})

	p := s.P()
	for i := 0; i < 3; i++ {
		p.Set(i+3, i+3, 1.0)
	}
	s.SetP(p)

	q.Push(1.0, measurement.VelocityMeasurement{
		T:            1.0,
		BodyVelocity: [3]float64{0, 0, 0},
		Covariance:   identityCov(1e-4),
	})

	advanced, err := c.Correct(s, lie.RightInvariant)
	require.NoError(t, err)
	assert.True(t, advanced)

	v := s.V()
	assert.Less(t, v[0], 2.0)
	assert.True(t, s.IsValid(1e-6))
}

func TestPositionCorrection_PullsPositionTowardFix(t *testing.T) {
	t.Parallel()

	q := measurement.NewQueue[measurement.PositionMeasurement](0)
	c := NewPositionCorrection(q)
	s := state.New(0, false)
	s.SetTime(1.0)
	s.SetPos([3]float64{10, 0, 0})

	p := s.P()
	for i := 0; i < 3; i++ {
		p.Set(i+6, i+6, 1.0)
	}
	s.SetP(p)

	q.Push(1.0, measurement.PositionMeasurement{
		T:          1.0,
		Position:   [3]float64{0, 0, 0},
		Covariance: identityCov(1e-2),
	})

	advanced, err := c.Correct(s, lie.RightInvariant)
	require.NoError(t, err)
	assert.True(t, advanced)

	pos := s.Pos()
	assert.Less(t, pos[0], 10.0)
}

func TestKinematicsCorrection_AugmentsOnNewContact(t *testing.T) {
	t.Parallel()

	q := measurement.NewQueue[measurement.KinematicsMeasurement](0)
	c := NewKinematicsCorrection(q, 0)
	s := state.New(2, false)
	s.SetTime(1.0)

	q.Push(1.0, measurement.KinematicsMeasurement{
		T: 1.0,
		Limbs: map[int]measurement.LimbContact{
			0: {Contact: true, FootPosition: [3]float64{0.3, 0, -0.3}, Covariance: identityCov(1e-3)},
		},
	})

	advanced, err := c.Correct(s, lie.RightInvariant)
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.Equal(t, 1, s.Augmentation().ActiveCount())
}

func TestKinematicsCorrection_UnaugmentsOnContactLoss(t *testing.T) {
	t.Parallel()

	q := measurement.NewQueue[measurement.KinematicsMeasurement](0)
	c := NewKinematicsCorrection(q, 0)
	s := state.New(2, false)
	s.SetTime(1.0)

	q.Push(1.0, measurement.KinematicsMeasurement{
		T: 1.0,
		Limbs: map[int]measurement.LimbContact{
			0: {Contact: true, FootPosition: [3]float64{0.3, 0, -0.3}, Covariance: identityCov(1e-3)},
		},
	})
	_, err := c.Correct(s, lie.RightInvariant)
	require.NoError(t, err)
	require.Equal(t, 1, s.Augmentation().ActiveCount())

	s.SetTime(2.0)
	q.Push(2.0, measurement.KinematicsMeasurement{
		T: 2.0,
		Limbs: map[int]measurement.LimbContact{
			0: {Contact: false},
		},
	})
	advanced, err := c.Correct(s, lie.RightInvariant)
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.Equal(t, 0, s.Augmentation().ActiveCount())
}

func TestKinematicsCorrection_PersistentContactStaysConstant(t *testing.T) {
	t.Parallel()

	q := measurement.NewQueue[measurement.KinematicsMeasurement](0)
	c := NewKinematicsCorrection(q, 0)
	s := state.New(2, false)
	s.SetTime(1.0)

	footBody := [3]float64{0.3, 0, -0.3}
	q.Push(1.0, measurement.KinematicsMeasurement{
		T: 1.0,
		Limbs: map[int]measurement.LimbContact{
			0: {Contact: true, FootPosition: footBody, Covariance: identityCov(1e-3)},
		},
	})
	_, err := c.Correct(s, lie.RightInvariant)
	require.NoError(t, err)

	id := c.landmarkIDs[0]
	before, ok := s.Landmark(id)
	require.True(t, ok)

	s.SetTime(1.05)
	q.Push(1.05, measurement.KinematicsMeasurement{
		T: 1.05,
		Limbs: map[int]measurement.LimbContact{
			0: {Contact: true, FootPosition: footBody, Covariance: identityCov(1e-3)},
		},
	})
	advanced, err := c.Correct(s, lie.RightInvariant)
	require.NoError(t, err)
	assert.True(t, advanced)

	after, ok := s.Landmark(id)
	require.True(t, ok)
	assert.InDelta(t, before[0], after[0], 1e-6)
	assert.InDelta(t, before[1], after[1], 1e-6)
	assert.InDelta(t, before[2], after[2], 1e-6)
}

func TestKinematicsCorrection_DimensionMismatchRefusesMeasurement(t *testing.T) {
	t.Parallel()

	q := measurement.NewQueue[measurement.KinematicsMeasurement](0)
	c := NewKinematicsCorrection(q, 4)
	s := state.New(2, false)
	s.SetTime(1.0)

	q.Push(1.0, measurement.KinematicsMeasurement{
		T: 1.0,
		Limbs: map[int]measurement.LimbContact{
			0: {Contact: true, FootPosition: [3]float64{0.3, 0, -0.3}, Covariance: identityCov(1e-3)},
		},
	})

	advanced, err := c.Correct(s, lie.RightInvariant)
	require.Error(t, err)
	assert.False(t, advanced)
	assert.Equal(t, 0, s.Augmentation().ActiveCount())
	assert.Equal(t, uint64(1), c.Counters().DimensionMismatch)
}
