// Package diagnostics renders the estimator's published-state history for
// offline inspection: a PNG trajectory/covariance-trace plot (gonum/plot,
// grounded on monitor.GridPlotter's ring plots) and an HTML bias-
// convergence dashboard (go-echarts, grounded on the monitor package's
// echarts handlers). It imports the estimator core; the core never
// imports diagnostics.
package diagnostics

import (
	"fmt"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/inekf/internal/estimator/output"
)

// Recorder accumulates a time series of published snapshots for later
// rendering. It is not safe for concurrent use; callers feed it from the
// same goroutine that drains the output.Queue.
type Recorder struct {
	samples []output.Snapshot
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Record appends one published snapshot.
func (r *Recorder) Record(s output.Snapshot) { r.samples = append(r.samples, s) }

// Len reports how many snapshots have been recorded.
func (r *Recorder) Len() int { return len(r.samples) }

// SaveTrajectoryPlot renders a position-over-time PNG (one line per world
// axis) to outputDir, following monitor.GridPlotter.generateRingPlot's
// shape: one plot.Plot per quantity, one plotter.Line per series, saved at
// a fixed page size.
func (r *Recorder) SaveTrajectoryPlot(outputDir string) (string, error) {
	if len(r.samples) == 0 {
		return "", fmt.Errorf("diagnostics: no samples recorded")
	}

	p := plot.New()
	p.Title.Text = "Estimated position"
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = "position (m)"

	labels := [3]string{"x", "y", "z"}
	for axis := 0; axis < 3; axis++ {
		pts := make(plotter.XYs, len(r.samples))
		for i, s := range r.samples {
			pos := s.State.Pos()
			pts[i] = plotter.XY{X: s.Time, Y: pos[axis]}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return "", fmt.Errorf("diagnostics: failed to build %s line: %w", labels[axis], err)
		}
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(labels[axis], line)
	}

	path := filepath.Join(outputDir, "trajectory.png")
	if err := p.Save(12*vg.Inch, 6*vg.Inch, path); err != nil {
		return "", fmt.Errorf("diagnostics: failed to save trajectory plot: %w", err)
	}
	return path, nil
}

// SaveCovarianceTracePlot renders trace(P) over time, a quick monotonicity
// sanity check for the propagation-only phases called out in the
// estimator's testable properties.
func (r *Recorder) SaveCovarianceTracePlot(outputDir string) (string, error) {
	if len(r.samples) == 0 {
		return "", fmt.Errorf("diagnostics: no samples recorded")
	}

	p := plot.New()
	p.Title.Text = "Covariance trace"
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = "trace(P)"

	pts := make(plotter.XYs, len(r.samples))
	for i, s := range r.samples {
		cov := s.State.P()
		n := s.State.Dim()
		trace := 0.0
		for k := 0; k < n; k++ {
			trace += cov.At(k, k)
		}
		pts[i] = plotter.XY{X: s.Time, Y: trace}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return "", fmt.Errorf("diagnostics: failed to build trace line: %w", err)
	}
	line.Width = vg.Points(1)
	p.Add(line)

	path := filepath.Join(outputDir, "covariance_trace.png")
	if err := p.Save(12*vg.Inch, 6*vg.Inch, path); err != nil {
		return "", fmt.Errorf("diagnostics: failed to save covariance trace plot: %w", err)
	}
	return path, nil
}
