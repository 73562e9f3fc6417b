package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	runsQueued        atomic.Int64
	runsRunning       atomic.Int64
	runsCompleted     atomic.Int64
	runsFailed        atomic.Int64
	invariantFailures atomic.Int64
	patientsPrepared  atomic.Int64
)

func RunQueued() { runsQueued.Add(1) }

func RunStarted() {
	runsQueued.Add(-1)
	runsRunning.Add(1)
}

// RunFinished records the end of a run. patients is the number of patients
// across every output split of a successful run.
func RunFinished(err error, invariant bool, patients int) {
	runsRunning.Add(-1)
	if err != nil {
		runsFailed.Add(1)
		if invariant {
			invariantFailures.Add(1)
		}
		return
	}
	runsCompleted.Add(1)
	patientsPrepared.Add(int64(patients))
}

func Handler(w http.ResponseWriter, r *http.Request) {
	WritePrometheus(w)
}

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP ehrprep_runs_queued Preparation runs waiting for a worker.\n")
	fmt.Fprintf(w, "# TYPE ehrprep_runs_queued gauge\n")
	fmt.Fprintf(w, "ehrprep_runs_queued %d\n", runsQueued.Load())

	fmt.Fprintf(w, "# HELP ehrprep_runs_running Preparation runs in progress.\n")
	fmt.Fprintf(w, "# TYPE ehrprep_runs_running gauge\n")
	fmt.Fprintf(w, "ehrprep_runs_running %d\n", runsRunning.Load())

	fmt.Fprintf(w, "# HELP ehrprep_runs_completed_total Preparation runs that wrote their outputs.\n")
	fmt.Fprintf(w, "# TYPE ehrprep_runs_completed_total counter\n")
	fmt.Fprintf(w, "ehrprep_runs_completed_total %d\n", runsCompleted.Load())

	fmt.Fprintf(w, "# HELP ehrprep_runs_failed_total Preparation runs that stopped with an error.\n")
	fmt.Fprintf(w, "# TYPE ehrprep_runs_failed_total counter\n")
	fmt.Fprintf(w, "ehrprep_runs_failed_total %d\n", runsFailed.Load())

	fmt.Fprintf(w, "# HELP ehrprep_runs_invariant_failures_total Failed runs caused by a data invariant, e.g. too few positive patients.\n")
	fmt.Fprintf(w, "# TYPE ehrprep_runs_invariant_failures_total counter\n")
	fmt.Fprintf(w, "ehrprep_runs_invariant_failures_total %d\n", invariantFailures.Load())

	fmt.Fprintf(w, "# HELP ehrprep_patients_prepared_total Patients written by completed runs.\n")
	fmt.Fprintf(w, "# TYPE ehrprep_patients_prepared_total counter\n")
	fmt.Fprintf(w, "ehrprep_patients_prepared_total %d\n", patientsPrepared.Load())
}
