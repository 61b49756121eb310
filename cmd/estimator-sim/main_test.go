package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	estconfig "github.com/banshee-data/inekf/internal/estimator/config"
	"github.com/banshee-data/inekf/internal/estimator/coordinator"
	"github.com/banshee-data/inekf/internal/estimator/measurement"
	"github.com/banshee-data/inekf/internal/timeutil"
)

var epoch = time.Unix(0, 0)

// waitFor polls cond every millisecond until it returns true or timeout
// elapses, for synchronising a test goroutine with a producer/consumer
// loop running on a mocked tick rather than real wall-clock time.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestRunImuProducer_PushesSampleOnMockTick(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(epoch)
	ticker := clock.NewTicker(10 * time.Millisecond)
	start := clock.Now()
	q := measurement.NewQueue[measurement.ImuMeasurement](4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runImuProducer(ctx, ticker, q, start)
		close(done)
	}()

	clock.Advance(10 * time.Millisecond)
	waitFor(t, time.Second, func() bool { return q.Len() == 1 })

	cancel()
	<-done

	m, ts, ok := q.Pop()
	require.True(t, ok)
	assert.InDelta(t, 0.01, ts, 1e-9)
	assert.Equal(t, [3]float64{0, 0, 9.81}, m.LinearAccel)
}

func TestRunCoordinatorLoop_AdvancesOnMockTick(t *testing.T) {
	t.Parallel()

	cfg := estconfig.DefaultConfig()
	cfg.BiasInitSampleCount = 1
	est := coordinator.New(cfg, 0)

	imu := measurement.NewQueue[measurement.ImuMeasurement](4)
	vel := measurement.NewQueue[measurement.VelocityMeasurement](4)
	est.AddImuPropagation(imu)
	est.AddVelocityCorrection(vel)

	clock := timeutil.NewMockClock(epoch)
	ticker := clock.NewTicker(10 * time.Millisecond)
	start := clock.Now()
	imu.Push(0.01, measurement.ImuMeasurement{T: 0.01, LinearAccel: [3]float64{0, 0, 9.81}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runCoordinatorLoop(ctx, ticker, est, start)
		close(done)
	}()

	clock.Advance(10 * time.Millisecond)
	waitFor(t, time.Second, est.BiasInitialized)

	cancel()
	<-done
}
