package pipeline

import (
	"log/slog"

	"github.com/ziadkadry99/docpipe/internal/apierror"
)

// Stage is a step of one pipeline run.
type Stage string

const (
	StageReceived    Stage = "received"
	StageExtracting  Stage = "extracting"
	StageVectorizing Stage = "vectorizing"
	StageReducing    Stage = "reducing"
	StageStoring     Stage = "storing"
	StageCompleted   Stage = "completed"
	StageFailed      Stage = "failed"
)

// run tracks the state of a single request. Failed is absorbing.
type run struct {
	logger *slog.Logger
	stage  Stage
}

func newRun(logger *slog.Logger) *run {
	r := &run{logger: logger, stage: StageReceived}
	logger.Debug("pipeline started", "stage", StageReceived)
	return r
}

func (r *run) enter(next Stage) {
	if r.stage == StageFailed {
		return
	}
	r.logger.Debug("pipeline transition", "from", r.stage, "to", next)
	r.stage = next
}

// fail moves the run to failed and returns the classified error.
func (r *run) fail(kind apierror.Kind, message string, err error) error {
	r.logger.Error("pipeline failed", "stage", r.stage, "kind", kind, "error", err)
	r.stage = StageFailed
	return apierror.Wrap(kind, message, err)
}
