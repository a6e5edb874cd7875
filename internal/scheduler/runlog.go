package scheduler

import (
	"time"

	"github.com/harmonet/harmonet/internal/logging"
)

// runStage is one named stage of a scheduler run with its payload summary
type runStage struct {
	Name    string                 `json:"name"`
	At      time.Time              `json:"at"`
	Summary map[string]interface{} `json:"summary,omitempty"`
}

// RunLog accumulates the ordered decision trail of one scheduler run. It is
// flushed exactly once at the end of the run, success or failure, so a
// single log line reconstructs what the run saw and decided.
type RunLog struct {
	runID     string
	slice     int
	startedAt time.Time
	stages    []runStage
}

func newRunLog(runID string, slice int) *RunLog {
	return &RunLog{
		runID:     runID,
		slice:     slice,
		startedAt: time.Now(),
	}
}

// Record appends a named stage with its summary fields
func (r *RunLog) Record(name string, summary map[string]interface{}) {
	r.stages = append(r.stages, runStage{
		Name:    name,
		At:      time.Now(),
		Summary: summary,
	})
}

// Flush emits the whole run trail in one structured entry
func (r *RunLog) Flush(logger *logging.Logger, runErr error) {
	fields := []interface{}{
		"run_id", r.runID,
		"slice", r.slice,
		"duration", time.Since(r.startedAt).String(),
		"stages", r.stages,
	}
	if runErr != nil {
		fields = append(fields, "error", runErr)
		logger.Error("Scheduler run failed", fields...)
		return
	}
	logger.Info("Scheduler run completed", fields...)
}
