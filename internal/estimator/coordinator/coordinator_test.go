package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/inekf/internal/estimator/config"
	"github.com/banshee-data/inekf/internal/estimator/measurement"
)

func newTestEstimator() (*Estimator, *measurement.Queue[measurement.ImuMeasurement], *measurement.Queue[measurement.VelocityMeasurement]) {
	cfg := config.DefaultConfig()
	cfg.BiasInitSampleCount = 3
	cfg.Gravity = [3]float64{0, 0, 0}

	e := New(cfg, 2)
	imu := measurement.NewQueue[measurement.ImuMeasurement](0)
	vel := measurement.NewQueue[measurement.VelocityMeasurement](0)
	e.AddImuPropagation(imu)
	e.AddVelocityCorrection(vel)
	return e, imu, vel
}

func TestEstimator_LifecycleReachesRunning(t *testing.T) {
	t.Parallel()

	e, imu, vel := newTestEstimator()
	assert.Equal(t, BiasInit, e.lifecycle)

	imu.Push(0.01, measurement.ImuMeasurement{T: 0.01})
	imu.Push(0.02, measurement.ImuMeasurement{T: 0.02})
	imu.Push(0.03, measurement.ImuMeasurement{T: 0.03})

	_, err := e.RunOnce(0.03)
	require.NoError(t, err)
	assert.True(t, e.BiasInitialized())
	assert.Equal(t, StateInit, e.lifecycle)
	assert.False(t, e.IsEnabled())

	// Not ready yet: no velocity/kinematics sample available.
	_, err = e.RunOnce(0.04)
	require.NoError(t, err)
	assert.Equal(t, StateInit, e.lifecycle)

	vel.Push(0.04, measurement.VelocityMeasurement{T: 0.04, BodyVelocity: [3]float64{1, 0, 0}})
	_, err = e.RunOnce(0.04)
	require.NoError(t, err)
	assert.Equal(t, Running, e.lifecycle)
	assert.True(t, e.IsEnabled())

	s := e.GetState()
	assert.Equal(t, [3]float64{1, 0, 0}, s.V())
}

// TestEstimator_StaticGravityDoesNotDriftVelocity exercises spec §8
// scenario 1 end to end through the coordinator: a stationary robot under
// the default (non-zeroed) gravity must resolve an accel bias that leaves
// the post-init velocity near zero, not drifting as if gravity were being
// double-counted.
func TestEstimator_StaticGravityDoesNotDriftVelocity(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.BiasInitSampleCount = 3
	e := New(cfg, 0)
	imu := measurement.NewQueue[measurement.ImuMeasurement](0)
	vel := measurement.NewQueue[measurement.VelocityMeasurement](0)
	e.AddImuPropagation(imu)
	e.AddVelocityCorrection(vel)

	for i := 1; i <= 3; i++ {
		imu.Push(float64(i)*0.01, measurement.ImuMeasurement{T: float64(i) * 0.01, LinearAccel: [3]float64{0, 0, 9.81}})
	}
	_, err := e.RunOnce(0.03)
	require.NoError(t, err)
	require.True(t, e.BiasInitialized())

	vel.Push(0.04, measurement.VelocityMeasurement{T: 0.04})
	_, err = e.RunOnce(0.04)
	require.NoError(t, err)
	require.True(t, e.IsEnabled())

	for i := 5; i <= 10; i++ {
		imu.Push(float64(i)*0.01, measurement.ImuMeasurement{T: float64(i) * 0.01, LinearAccel: [3]float64{0, 0, 9.81}})
	}
	_, err = e.RunOnce(0.10)
	require.NoError(t, err)

	v := e.GetState().V()
	assert.InDelta(t, 0, v[0], 1e-2)
	assert.InDelta(t, 0, v[1], 1e-2)
	assert.InDelta(t, 0, v[2], 1e-1)
}

// TestEstimator_CountersAggregatesAcrossPropagatorAndCorrections exercises
// SPEC_FULL §4's promise that Estimator.Counters() surfaces every
// error-taxonomy counter in one call: a clock-monotonicity violation from
// the propagator, a queue overflow from an undersized velocity queue, and
// a DimensionMismatch from a kinematics measurement with the wrong number
// of limbs.
func TestEstimator_CountersAggregatesAcrossPropagatorAndCorrections(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.BiasInitSampleCount = 1
	cfg.Gravity = [3]float64{0, 0, 0}
	cfg.NumLimbs = 2

	e := New(cfg, 2)
	imu := measurement.NewQueue[measurement.ImuMeasurement](0)
	vel := measurement.NewQueue[measurement.VelocityMeasurement](1)
	kin := measurement.NewQueue[measurement.KinematicsMeasurement](0)
	e.AddImuPropagation(imu)
	e.AddVelocityCorrection(vel)
	e.AddKinematicsCorrection(kin)

	imu.Push(0.01, measurement.ImuMeasurement{T: 0.01})
	_, err := e.RunOnce(0.01)
	require.NoError(t, err)
	require.True(t, e.BiasInitialized())

	// Overflow the capacity-1 velocity queue before it's ever popped.
	vel.Push(0.02, measurement.VelocityMeasurement{T: 0.02})
	vel.Push(0.03, measurement.VelocityMeasurement{T: 0.03})

	_, err = e.RunOnce(0.03)
	require.NoError(t, err)
	require.True(t, e.IsEnabled())

	// A clock-monotonicity violation (timestamp not after the filter's
	// current time) followed by a valid sample that advances the clock
	// far enough for the pending velocity/kinematics measurements below to
	// become due.
	imu.Push(0.01, measurement.ImuMeasurement{T: 0.01})
	imu.Push(0.05, measurement.ImuMeasurement{T: 0.05})
	// A kinematics measurement reporting only one limb against NumLimbs=2.
	kin.Push(0.04, measurement.KinematicsMeasurement{
		T: 0.04,
		Limbs: map[int]measurement.LimbContact{
			0: {Contact: true},
		},
	})

	_, err = e.RunOnce(0.05)
	require.Error(t, err)

	c := e.Counters()
	assert.Equal(t, uint64(1), c.ClockMonotonicityViolations)
	assert.Equal(t, uint64(1), c.QueueOverflow)
	assert.Equal(t, uint64(1), c.DimensionMismatch)
}

func TestEstimator_InitBiasIdempotent(t *testing.T) {
	t.Parallel()

	e, imu, _ := newTestEstimator()
	imu.Push(0.01, measurement.ImuMeasurement{T: 0.01})
	imu.Push(0.02, measurement.ImuMeasurement{T: 0.02})
	imu.Push(0.03, measurement.ImuMeasurement{T: 0.03})
	_, err := e.RunOnce(0.03)
	require.NoError(t, err)
	require.True(t, e.BiasInitialized())

	e.InitBias()
	assert.True(t, e.BiasInitialized())
}

func TestEstimator_RunOnceNoOpBeforeBiasInit(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestEstimator()
	advanced, err := e.RunOnce(1.0)
	require.NoError(t, err)
	assert.False(t, advanced)
	assert.False(t, e.IsEnabled())
}

func TestEstimator_SecondVelocitySourceRejected(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestEstimator()
	extra := measurement.NewQueue[measurement.VelocityMeasurement](0)
	e.AddVelocityCorrection(extra) // should be ignored; first source already registered
	assert.Len(t, e.corrections, 1)
}

func TestEstimator_ClearResetsToBiasInit(t *testing.T) {
	t.Parallel()

	e, imu, vel := newTestEstimator()
	imu.Push(0.01, measurement.ImuMeasurement{T: 0.01})
	imu.Push(0.02, measurement.ImuMeasurement{T: 0.02})
	imu.Push(0.03, measurement.ImuMeasurement{T: 0.03})
	_, err := e.RunOnce(0.03)
	require.NoError(t, err)
	vel.Push(0.04, measurement.VelocityMeasurement{T: 0.04})
	_, err = e.RunOnce(0.04)
	require.NoError(t, err)
	require.True(t, e.IsEnabled())

	e.Clear()
	assert.Equal(t, BiasInit, e.lifecycle)
	assert.False(t, e.BiasInitialized())
}

func TestEstimator_QueueStarvationStillPublishesFromImu(t *testing.T) {
	t.Parallel()

	e, imu, vel := newTestEstimator()
	for i := 1; i <= 5; i++ {
		imu.Push(float64(i)*0.01, measurement.ImuMeasurement{T: float64(i) * 0.01})
	}
	_, err := e.RunOnce(0.05)
	require.NoError(t, err)
	require.True(t, e.BiasInitialized())

	vel.Push(0.06, measurement.VelocityMeasurement{T: 0.06})
	_, err = e.RunOnce(0.06)
	require.NoError(t, err)
	require.True(t, e.IsEnabled())

	for i := 7; i <= 20; i++ {
		imu.Push(float64(i)*0.01, measurement.ImuMeasurement{T: float64(i) * 0.01, LinearAccel: [3]float64{1, 0, 0}})
	}
	advanced, err := e.RunOnce(0.20)
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.Equal(t, 1, e.OutputQueue().Len())
}
