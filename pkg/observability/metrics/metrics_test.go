package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunLifecycleMetrics(t *testing.T) {
	before := runsCompleted.Load()
	failedBefore := runsFailed.Load()

	RunQueued()
	RunStarted()
	RunFinished(nil, false, 12)
	RunQueued()
	RunStarted()
	RunFinished(errors.New("too few positives"), true, 0)

	assert.Equal(t, before+1, runsCompleted.Load())
	assert.Equal(t, failedBefore+1, runsFailed.Load())

	rec := httptest.NewRecorder()
	WritePrometheus(rec)
	body := rec.Body.String()
	assert.Contains(t, body, "# TYPE ehrprep_runs_completed_total counter")
	assert.Contains(t, body, "ehrprep_patients_prepared_total")
	assert.Equal(t, "text/plain; version=0.0.4", rec.Header().Get("Content-Type"))
}
