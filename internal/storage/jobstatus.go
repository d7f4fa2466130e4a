package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mleitner/bankmatch/internal/common"
	"github.com/mleitner/bankmatch/internal/model"
)

// JobStatusStore implements the JobStore interface on the application
// database. Expiry is evaluated on read; expired rows are removed lazily.
type JobStatusStore struct {
	db *sql.DB
}

// NewJobStatusStore creates a job status store sharing the storage
// connection.
func (s *SQLiteStorage) NewJobStatusStore() *JobStatusStore {
	return &JobStatusStore{db: s.db}
}

// Set writes a status document under a key with a time-to-live. A zero or
// negative ttl stores the document without expiry.
func (j *JobStatusStore) Set(ctx context.Context, key string, status *model.JobStatus, ttl time.Duration) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(key, "key"); err != nil {
		return err
	}
	if status == nil {
		return fmt.Errorf("%w: status", ErrNilParameter)
	}

	value, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal job status %s: %w", key, err)
	}

	var expiresAt any
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO job_status (key, value, expires_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = CURRENT_TIMESTAMP`,
		key, string(value), expiresAt)
	if err != nil {
		return fmt.Errorf("failed to set job status %s: %w", key, err)
	}
	return nil
}

// Get reads a status document. Expired entries are deleted and reported as
// not found.
func (j *JobStatusStore) Get(ctx context.Context, key string) (*model.JobStatus, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(key, "key"); err != nil {
		return nil, err
	}

	var value string
	var expiresAt sql.NullTime
	err := j.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM job_status WHERE key = ?`, key).
		Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job status %s: %w", key, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job status %s: %w", key, err)
	}

	if expiresAt.Valid && time.Now().After(expiresAt.Time) {
		_, _ = j.db.ExecContext(ctx, `DELETE FROM job_status WHERE key = ?`, key)
		return nil, fmt.Errorf("job status %s: %w", key, common.ErrNotFound)
	}

	var status model.JobStatus
	if err := json.Unmarshal([]byte(value), &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job status %s: %w", key, err)
	}
	return &status, nil
}

// Delete removes a status document. Deleting a missing key is not an error.
func (j *JobStatusStore) Delete(ctx context.Context, key string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(key, "key"); err != nil {
		return err
	}

	if _, err := j.db.ExecContext(ctx, `DELETE FROM job_status WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete job status %s: %w", key, err)
	}
	return nil
}
