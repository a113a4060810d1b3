package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fintrack/wa-gateway/internal/common"
	"github.com/fintrack/wa-gateway/internal/model"
)

// CreateJob persists a new delivery job and appends its first log entry.
func (s *SQLiteStorage) CreateJob(ctx context.Context, job *model.DeliveryJob) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateJob(job); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO delivery_jobs (id, user_id, recipient, body, template_id, status, attempts_made)
		VALUES (?, ?, ?, ?, ?, ?, 0)`,
		job.ID, job.UserID, job.Recipient, job.Body, nullable(job.TemplateID), job.Status)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	if err := appendLogTx(ctx, tx, &model.DeliveryLogEntry{
		JobID:  job.ID,
		Status: job.Status,
	}); err != nil {
		return err
	}

	return tx.Commit()
}

// GetJob returns a single delivery job by id.
func (s *SQLiteStorage) GetJob(ctx context.Context, id string) (*model.DeliveryJob, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, recipient, body, template_id, status, attempts_made, error_message, sent_at, created_at, updated_at
		FROM delivery_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// UpdateJobStatus transitions a job to a new status and appends the matching
// log entry in one transaction. Only one worker ever owns a job, so
// last-writer-wins on the job row is acceptable; the log is append-only.
func (s *SQLiteStorage) UpdateJobStatus(ctx context.Context, id string, status model.JobStatus, attempts int, errMsg string, metadata map[string]string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var sentAt any
	if status == model.StatusSent {
		sentAt = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE delivery_jobs
		SET status = ?, attempts_made = ?, error_message = ?, sent_at = COALESCE(?, sent_at), updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		status, attempts, nullable(errMsg), sentAt, id)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s: %w", id, common.ErrNotFound)
	}

	if err := appendLogTx(ctx, tx, &model.DeliveryLogEntry{
		JobID:        id,
		Status:       status,
		ErrorMessage: errMsg,
		RetryCount:   attempts,
		Metadata:     metadata,
	}); err != nil {
		return err
	}

	return tx.Commit()
}

// ListJobsByStatus returns jobs in any of the given statuses, oldest first.
func (s *SQLiteStorage) ListJobsByStatus(ctx context.Context, statuses ...model.JobStatus) ([]model.DeliveryJob, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return nil, fmt.Errorf("%w: statuses", ErrNilParameter)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = st
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, recipient, body, template_id, status, attempts_made, error_message, sent_at, created_at, updated_at
		FROM delivery_jobs
		WHERE status IN (`+placeholders+`)
		ORDER BY created_at ASC, rowid ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []model.DeliveryJob
	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan job: %w", scanErr)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// GetDeliveryLog returns the most recent log entries for a job, newest first.
func (s *SQLiteStorage) GetDeliveryLog(ctx context.Context, jobID string, limit int) ([]model.DeliveryLogEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(jobID, "jobID"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, status, error_message, retry_count, metadata, created_at
		FROM delivery_log
		WHERE job_id = ?
		ORDER BY id DESC
		LIMIT ?`, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.DeliveryLogEntry
	for rows.Next() {
		var (
			e    model.DeliveryLogEntry
			msg  sql.NullString
			meta sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.JobID, &e.Status, &msg, &e.RetryCount, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		e.ErrorMessage = msg.String
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode log metadata: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PruneJobs deletes old terminal jobs and their log entries. Sent jobs are
// kept for sentBefore (and at most maxSent rows), failed jobs for
// failedBefore. Retention is a tuning knob, not a correctness invariant.
func (s *SQLiteStorage) PruneJobs(ctx context.Context, sentBefore time.Time, maxSent int, failedBefore time.Time) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var pruned int64

	for _, q := range []struct {
		query string
		args  []any
	}{
		{
			query: `DELETE FROM delivery_jobs WHERE status = ? AND updated_at < ?`,
			args:  []any{model.StatusSent, sentBefore.UTC()},
		},
		{
			query: `DELETE FROM delivery_jobs WHERE status = ? AND id NOT IN (
				SELECT id FROM delivery_jobs WHERE status = ? ORDER BY updated_at DESC LIMIT ?)`,
			args: []any{model.StatusSent, model.StatusSent, maxSent},
		},
		{
			query: `DELETE FROM delivery_jobs WHERE status = ? AND updated_at < ?`,
			args:  []any{model.StatusFailed, failedBefore.UTC()},
		},
	} {
		res, execErr := tx.ExecContext(ctx, q.query, q.args...)
		if execErr != nil {
			return 0, fmt.Errorf("failed to prune jobs: %w", execErr)
		}
		n, _ := res.RowsAffected()
		pruned += n
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM delivery_log WHERE job_id NOT IN (SELECT id FROM delivery_jobs)`); err != nil {
		return 0, fmt.Errorf("failed to prune delivery log: %w", err)
	}

	return pruned, tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.DeliveryJob, error) {
	var (
		job        model.DeliveryJob
		templateID sql.NullString
		errMsg     sql.NullString
		sentAt     sql.NullTime
	)
	err := row.Scan(&job.ID, &job.UserID, &job.Recipient, &job.Body, &templateID,
		&job.Status, &job.AttemptsMade, &errMsg, &sentAt, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	job.TemplateID = templateID.String
	job.ErrorMessage = errMsg.String
	if sentAt.Valid {
		t := sentAt.Time
		job.SentAt = &t
	}
	return &job, nil
}

func appendLogTx(ctx context.Context, tx *sql.Tx, entry *model.DeliveryLogEntry) error {
	var meta any
	if len(entry.Metadata) > 0 {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode log metadata: %w", err)
		}
		meta = string(encoded)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO delivery_log (job_id, status, error_message, retry_count, metadata)
		VALUES (?, ?, ?, ?, ?)`,
		entry.JobID, entry.Status, nullable(entry.ErrorMessage), entry.RetryCount, meta)
	if err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
