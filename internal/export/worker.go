package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amrlab/amrflow/internal/amr"
	"github.com/amrlab/amrflow/internal/store"
)

// DefaultPollInterval is how often an idle worker checks the queue.
const DefaultPollInterval = 2 * time.Second

// Worker is the single-consumer loop over the export job queue. It claims
// the oldest queued job, marks it running, materializes the export, and
// records the terminal state on the job row. A failed job is never retried.
type Worker struct {
	db       store.Storage
	svc      *Service
	dir      string
	interval time.Duration
	log      *slog.Logger
}

// NewWorker creates a worker writing export files under dir.
func NewWorker(db store.Storage, svc *Service, dir string,
	interval time.Duration, log *slog.Logger) *Worker {

	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Worker{
		db:       db,
		svc:      svc,
		dir:      dir,
		interval: interval,
		log:      log,
	}
}

// Run polls the queue until the context is cancelled. Jobs run strictly one
// at a time.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.InfoContext(ctx, "export worker started",
		"dir", w.dir, "interval", w.interval)

	for {
		// Drain the queue before going back to sleep.
		for {
			processed, err := w.RunOnce(ctx)
			if err != nil {
				return err
			}
			if !processed {
				break
			}
		}

		select {
		case <-ctx.Done():
			w.log.InfoContext(ctx, "export worker stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce claims and executes at most one job. It reports whether a job was
// processed. Only infrastructure errors are returned; a job whose export
// fails is marked failed and consumes the pass.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	// Claiming the job and flipping it to running commit together, so a
	// second worker cannot pick up the same job.
	var job store.ExportJob
	err := w.db.WithTx(ctx, func(ctx context.Context,
		db store.Storage) error {

		next, err := db.NextQueuedExportJob(ctx)
		if err != nil {
			return err
		}

		job, err = db.UpdateExportJobStatus(ctx,
			store.UpdateExportJobStatusParams{
				ID:     next.ID,
				Status: amr.JobRunning,
			})
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("unable to claim export job: %w", err)
	}

	w.log.InfoContext(ctx, "export job claimed",
		"job_id", job.ID, "project_id", job.ProjectID)

	resultPath, runErr := w.runJob(ctx, job)
	if runErr != nil {
		msg := runErr.Error()
		_, err := w.db.UpdateExportJobStatus(ctx,
			store.UpdateExportJobStatusParams{
				ID:           job.ID,
				Status:       amr.JobFailed,
				ErrorMessage: &msg,
			})
		if err != nil {
			return true, fmt.Errorf("unable to mark job failed: %w",
				err)
		}

		w.log.ErrorContext(ctx, "export job failed",
			"job_id", job.ID, "err", runErr)
		return true, nil
	}

	_, err = w.db.UpdateExportJobStatus(ctx,
		store.UpdateExportJobStatusParams{
			ID:         job.ID,
			Status:     amr.JobCompleted,
			ResultPath: &resultPath,
		})
	if err != nil {
		return true, fmt.Errorf("unable to mark job completed: %w", err)
	}

	w.log.InfoContext(ctx, "export job completed",
		"job_id", job.ID, "result_path", resultPath)
	return true, nil
}

func (w *Worker) runJob(ctx context.Context,
	job store.ExportJob) (string, error) {

	req := Request{
		ProjectID:       job.ProjectID,
		Level:           job.Level,
		Format:          job.Format,
		PiiStrategy:     job.PiiStrategy,
		IncludeManifest: job.IncludeManifest,
		IncludeFailed:   job.IncludeFailed,
		IncludeRejected: job.IncludeRejected,
	}

	// The HTTP edge gates job creation to admins and curators; the
	// worker executes on their behalf.
	payload, err := w.svc.Export(ctx, amr.RoleAdmin, req)
	if err != nil {
		return "", err
	}

	return WriteFile(payload, req, w.dir, &job.ID)
}
