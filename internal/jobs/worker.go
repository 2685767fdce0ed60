package jobs

import (
	"context"
	"errors"
	"math"
	"time"

	"schedlog/internal/identity"
	"schedlog/internal/store"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CredentialPurger deletes a credential unless keep, run in the same
// transaction, says it is still in use.
type CredentialPurger interface {
	Purge(ctx context.Context, uid string, keep func(tx *gorm.DB, sessions []identity.IdentitySession) (bool, error)) (bool, error)
}

type Worker struct {
	ID          string
	Repo        *Repo
	Credentials CredentialPurger
	Interval    time.Duration
	Logger      *zap.Logger
}

func (w *Worker) Run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = 800 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.Logger.Warn("worker claim error", zap.Error(err))
			}
		}
	}
}

// RunOnce claims and handles at most one due job. It reports whether a job
// was found.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.Repo.Claim(ctx, w.ID)
	if err != nil || job == nil {
		return false, err
	}
	w.handle(ctx, job)
	return true, nil
}

func (w *Worker) handle(ctx context.Context, job *Job) {
	switch job.Type {
	case TypeCredentialPurge:
		w.handlePurge(ctx, job)
	default:
		_ = w.Repo.MarkFailed(ctx, job.ID, "unknown job type")
	}
}

// handlePurge removes a credential left without an account. The account
// check runs inside the purge transaction so a signin cannot land between
// check and delete. A session issued after the job was enqueued means a
// newer signin owns the credential; if that one fails it enqueues its own
// purge.
func (w *Worker) handlePurge(ctx context.Context, job *Job) {
	var skip string
	purged, err := w.Credentials.Purge(ctx, job.UID, func(tx *gorm.DB, sessions []identity.IdentitySession) (bool, error) {
		_, err := store.New(tx).Account(ctx, job.UID)
		switch {
		case err == nil:
			skip = "credential has an account"
			return true, nil
		case !errors.Is(err, store.ErrNotFound):
			return false, err
		}
		for _, s := range sessions {
			if s.CreatedAt.After(job.CreatedAt) {
				skip = "credential signed in after purge was enqueued"
				return true, nil
			}
		}
		return false, nil
	})
	switch {
	case errors.Is(err, identity.ErrNoCredential):
		// already gone
	case err != nil:
		w.retry(ctx, job, "credential purge error: "+err.Error())
		return
	case !purged:
		w.Logger.Info("skipping purge", zap.String("uid", job.UID), zap.String("reason", skip))
	default:
		w.Logger.Info("purged orphaned credential", zap.String("uid", job.UID), zap.Uint64("job", job.ID))
	}
	_ = w.Repo.MarkDone(ctx, job.ID)
}

func (w *Worker) retry(ctx context.Context, job *Job, errMsg string) {
	attempts := job.Attempts + 1
	if attempts >= job.MaxAttempts {
		w.Logger.Error("job failed permanently", zap.Uint64("job", job.ID), zap.String("error", errMsg))
		_ = w.Repo.MarkFailed(ctx, job.ID, errMsg)
		return
	}

	sec := math.Min(math.Pow(2, float64(attempts)), 600)
	next := time.Now().Add(time.Duration(sec) * time.Second)

	_ = w.Repo.RetryLater(ctx, job.ID, attempts, next, errMsg)
}
