package diagnostics

import (
	"bytes"
	"fmt"
	"math"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// Dashboard serves an HTTP handler rendering a live bias-convergence chart
// from a Recorder's current samples, following the monitor package's
// render-to-buffer-then-write-response shape for its debug-only echarts
// endpoints.
type Dashboard struct {
	recorder *Recorder
}

// NewDashboard creates a Dashboard reading from recorder.
func NewDashboard(recorder *Recorder) *Dashboard { return &Dashboard{recorder: recorder} }

// ServeHTTP renders the gyro/accel bias-magnitude-over-time line chart as
// an HTML page. Debugging-only: no auth, no pagination.
func (d *Dashboard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Estimator bias convergence", Theme: "dark", Width: "1100px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Bias magnitude over time", Subtitle: fmt.Sprintf("samples=%d", d.recorder.Len())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "|bias| (rad/s, m/s^2)", NameLocation: "middle", NameGap: 40}),
	)

	xAxis := make([]string, len(d.recorder.samples))
	gyroSeries := make([]opts.LineData, len(d.recorder.samples))
	accelSeries := make([]opts.LineData, len(d.recorder.samples))
	for i, s := range d.recorder.samples {
		xAxis[i] = fmt.Sprintf("%.2f", s.Time)
		gyro, accel := s.State.Bias()
		gyroSeries[i] = opts.LineData{Value: vectorNorm(gyro)}
		accelSeries[i] = opts.LineData{Value: vectorNorm(accel)}
	}

	line.SetXAxis(xAxis).
		AddSeries("gyro bias", gyroSeries).
		AddSeries("accel bias", accelSeries)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func vectorNorm(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}
