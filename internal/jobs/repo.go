package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultMaxAttempts = 8
	stuckAfter         = 5 * time.Minute
)

type Repo struct {
	DB *gorm.DB
}

type purgePayload struct {
	Reason string `json:"reason"`
}

// EnqueueCredentialPurge schedules deletion of a credential that has no
// account behind it. It satisfies session.Reconciler.
func (r *Repo) EnqueueCredentialPurge(ctx context.Context, uid, reason string) error {
	payload, err := json.Marshal(purgePayload{Reason: reason})
	if err != nil {
		return err
	}
	j := Job{
		UID:         uid,
		Type:        TypeCredentialPurge,
		Payload:     datatypes.JSON(payload),
		RunAt:       time.Now().UTC(),
		Status:      StatusPending,
		MaxAttempts: defaultMaxAttempts,
	}
	return r.DB.WithContext(ctx).Create(&j).Error
}

// Claim one due job atomically. Postgres uses SKIP LOCKED; sqlite
// serialises writers so a plain read-then-update inside the transaction
// cannot double-claim.
func (r *Repo) Claim(ctx context.Context, workerID string) (*Job, error) {
	var job Job
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		// requeue stuck RUNNING jobs
		if err := tx.Model(&Job{}).
			Where("status = ? AND locked_at IS NOT NULL AND locked_at < ?", StatusRunning, now.Add(-stuckAfter)).
			Updates(map[string]any{"status": StatusPending, "locked_by": nil, "locked_at": nil}).Error; err != nil {
			return err
		}

		q := tx.Where("status = ? AND run_at <= ?", StatusPending, now).Order("run_at asc")
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := q.First(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				job = Job{}
				return nil
			}
			return err
		}

		job.Status = StatusRunning
		job.LockedBy = &workerID
		job.LockedAt = &now
		return tx.Model(&Job{}).Where("id = ?", job.ID).Updates(map[string]any{
			"status":    StatusRunning,
			"locked_by": workerID,
			"locked_at": now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	if job.ID == 0 {
		return nil, nil
	}
	return &job, nil
}

func (r *Repo) MarkDone(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Model(&Job{}).Where("id = ?", id).Update("status", StatusDone).Error
}

func (r *Repo) MarkFailed(ctx context.Context, id uint64, errMsg string) error {
	return r.DB.WithContext(ctx).Model(&Job{}).Where("id = ?", id).Updates(map[string]any{
		"status":     StatusFailed,
		"last_error": errMsg,
	}).Error
}

func (r *Repo) RetryLater(ctx context.Context, id uint64, attempts int, runAt time.Time, errMsg string) error {
	return r.DB.WithContext(ctx).Model(&Job{}).Where("id = ?", id).Updates(map[string]any{
		"status":     StatusPending,
		"attempts":   attempts,
		"run_at":     runAt.UTC(),
		"locked_by":  nil,
		"locked_at":  nil,
		"last_error": errMsg,
	}).Error
}
