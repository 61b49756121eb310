package diagnostics

import (
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/inekf/internal/estimator/output"
	"github.com/banshee-data/inekf/internal/estimator/state"
)

func TestRecorder_SaveTrajectoryPlot(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	for i := 0; i < 5; i++ {
		s := state.New(0, false)
		s.SetPos([3]float64{float64(i), 0, 0})
		r.Record(output.Snapshot{Time: float64(i), State: s})
	}

	dir := t.TempDir()
	path, err := r.SaveTrajectoryPlot(dir)
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestRecorder_SaveTrajectoryPlot_NoSamples(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	_, err := r.SaveTrajectoryPlot(t.TempDir())
	assert.Error(t, err)
}

func TestDashboard_ServeHTTP(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	s := state.New(0, true)
	r.Record(output.Snapshot{Time: 0, State: s})
	d := NewDashboard(r)

	req := httptest.NewRequest("GET", "/dashboard", nil)
	w := httptest.NewRecorder()
	d.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
}
