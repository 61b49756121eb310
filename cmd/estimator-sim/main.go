// Command estimator-sim drives the estimator core against a synthetic
// IMU/velocity feed, for exercising the full propagate-correct-publish
// pipeline without real sensor hardware. It mirrors the root command's
// goroutine fan-out: one producer per simulated sensor stream, one
// coordinator loop, one publisher drain, all joined on a
// signal.NotifyContext shutdown. Every loop reads time off a
// timeutil.Ticker built from a timeutil.Clock rather than the stdlib time
// package directly, so the whole pipeline can be driven deterministically
// in tests with a timeutil.MockClock instead of real wall-clock ticks.
package main

import (
	"context"
	"flag"
	"math"
	"os/signal"
	"sync"
	"syscall"
	"time"

	estconfig "github.com/banshee-data/inekf/internal/estimator/config"
	"github.com/banshee-data/inekf/internal/estimator/coordinator"
	"github.com/banshee-data/inekf/internal/estimator/measurement"
	"github.com/banshee-data/inekf/internal/estimator/output"
	"github.com/banshee-data/inekf/internal/monitoring"
	"github.com/banshee-data/inekf/internal/timeutil"
)

var (
	duration = flag.Duration("duration", 10*time.Second, "how long to run the simulation")
	imuRate  = flag.Float64("imu-hz", 200, "synthetic IMU sample rate")
	cycleHz  = flag.Float64("cycle-hz", 50, "coordinator cycle rate")
)

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := estconfig.DefaultConfig()
	est := coordinator.New(cfg, 4)

	imuQueue := measurement.NewQueue[measurement.ImuMeasurement](4096)
	velQueue := measurement.NewQueue[measurement.VelocityMeasurement](256)
	est.AddImuPropagation(imuQueue)
	est.AddVelocityCorrection(velQueue)

	clock := timeutil.RealClock{}
	start := clock.Now()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := clock.NewTicker(time.Duration(float64(time.Second) / *imuRate))
		defer ticker.Stop()
		runImuProducer(ctx, ticker, imuQueue, start)
		monitoring.Logf("estimator-sim: imu producer terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := clock.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		runVelocityProducer(ctx, ticker, velQueue, start)
		monitoring.Logf("estimator-sim: velocity producer terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := clock.NewTicker(time.Duration(float64(time.Second) / *cycleHz))
		defer ticker.Stop()
		runCoordinatorLoop(ctx, ticker, est, start)
		monitoring.Logf("estimator-sim: coordinator loop terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := clock.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		runPublisher(ctx, ticker, est)
		monitoring.Logf("estimator-sim: publisher terminated")
	}()

	select {
	case <-ctx.Done():
	case <-clock.After(*duration):
		stop()
	}
	wg.Wait()
}

// runImuProducer emits synthetic IMU samples on every ticker.C() tick: a
// slow yaw rotation atop stationary gravity, so a bias-init phase has
// something realistic to average over before propagation begins advancing
// the pose.
func runImuProducer(ctx context.Context, ticker timeutil.Ticker, q *measurement.Queue[measurement.ImuMeasurement], start time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			t := now.Sub(start).Seconds()
			q.Push(t, measurement.ImuMeasurement{
				T:               t,
				AngularVelocity: [3]float64{0, 0, math.Pi / 8},
				LinearAccel:     [3]float64{0, 0, 9.81},
			})
		}
	}
}

// runVelocityProducer emits a steady trickle of body-velocity fixes on
// every tick, the first of which is enough to satisfy the StateInit
// readiness condition and seed v0.
func runVelocityProducer(ctx context.Context, ticker timeutil.Ticker, q *measurement.Queue[measurement.VelocityMeasurement], start time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			t := now.Sub(start).Seconds()
			q.Push(t, measurement.VelocityMeasurement{
				T:            t,
				BodyVelocity: [3]float64{1, 0, 0},
				Covariance: [3][3]float64{
					{1e-4, 0, 0},
					{0, 1e-4, 0},
					{0, 0, 1e-4},
				},
			})
		}
	}
}

func runCoordinatorLoop(ctx context.Context, ticker timeutil.Ticker, est *coordinator.Estimator, start time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			t := now.Sub(start).Seconds()
			if _, err := est.RunOnce(t); err != nil {
				monitoring.Logf("estimator-sim: cycle error: %v", err)
			}
		}
	}
}

// runPublisher drains the coordinator's output queue and logs each
// published pose, including a final drain after ctx is cancelled so the
// last few cycles before shutdown aren't lost.
func runPublisher(ctx context.Context, ticker timeutil.Ticker, est *coordinator.Estimator) {
	out := est.OutputQueue()

	drain := func() {
		for {
			snap, ok := out.Pop()
			if !ok {
				return
			}
			logSnapshot(snap)
		}
	}

	for {
		select {
		case <-ctx.Done():
			drain()
			return
		case <-ticker.C():
			drain()
		}
	}
}

func logSnapshot(snap output.Snapshot) {
	pose := snap.Pose()
	monitoring.Logf("estimator-sim: t=%.3f pos=%v vel=%v", snap.Time, pose.Position, pose.Velocity)
}
