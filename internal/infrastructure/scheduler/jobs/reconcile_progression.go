// Package jobs contains the worker's scheduled jobs.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/superheroes-club/luz-engine/internal/application/command"
)

// ReconcileProgressionJob periodically re-derives rank and mission progress.
type ReconcileProgressionJob struct {
	handler *command.ReconcileProgressionHandler
	timeout time.Duration
	logger  *slog.Logger
}

// NewReconcileProgressionJob creates the job. timeout <= 0 means no limit
// beyond the scheduler's own context.
func NewReconcileProgressionJob(handler *command.ReconcileProgressionHandler, timeout time.Duration, logger *slog.Logger) *ReconcileProgressionJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileProgressionJob{handler: handler, timeout: timeout, logger: logger}
}

// Name implements scheduler.Job.
func (j *ReconcileProgressionJob) Name() string { return "reconcile_progression" }

// Description implements scheduler.Job.
func (j *ReconcileProgressionJob) Description() string {
	return "Re-derives rank and mission progress from approved submissions"
}

// Run implements scheduler.Job.
func (j *ReconcileProgressionJob) Run(ctx context.Context) error {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	report, err := j.handler.Handle(ctx)
	if err != nil {
		return err
	}
	if report.RanksCorrected+report.ProgressCorrected > 0 {
		j.logger.Warn("progression drift found",
			"ranks_corrected", report.RanksCorrected,
			"progress_corrected", report.ProgressCorrected,
		)
	}
	return nil
}
