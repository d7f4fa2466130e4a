package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mleitner/bankmatch/internal/common"
	"github.com/mleitner/bankmatch/internal/model"
)

// CreateSyncLog opens a new import run record and returns its ID.
func (s *SQLiteStorage) CreateSyncLog(ctx context.Context, log *model.SyncLog) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if log == nil {
		return 0, fmt.Errorf("%w: log", ErrNilParameter)
	}

	startedAt := log.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	status := log.Status
	if status == "" {
		status = model.SyncRunning
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_logs (trigger_type, status, started_at)
		VALUES (?, ?, ?)`,
		log.TriggerType, string(status), startedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to create sync log: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get sync log ID: %w", err)
	}
	log.ID = id
	log.StartedAt = startedAt
	log.Status = status
	return id, nil
}

// FinishSyncLog records the terminal state and counters of an import run.
func (s *SQLiteStorage) FinishSyncLog(ctx context.Context, log *model.SyncLog) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if log == nil {
		return fmt.Errorf("%w: log", ErrNilParameter)
	}
	if log.ID == 0 {
		return fmt.Errorf("%w: log.ID", ErrNilParameter)
	}

	completedAt := log.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE sync_logs SET
			status = ?, error_log = ?, accounts_processed = ?,
			transactions_fetched = ?, errors_count = ?, completed_at = ?
		WHERE id = ?`,
		string(log.Status), log.ErrorLog, log.AccountsProcessed,
		log.TransactionsFetched, log.ErrorsCount, completedAt, log.ID)
	if err != nil {
		return fmt.Errorf("failed to finish sync log %d: %w", log.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check sync log update %d: %w", log.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("sync log %d: %w", log.ID, common.ErrNotFound)
	}
	log.CompletedAt = completedAt
	return nil
}

// RecentSyncLogs returns import runs started at or after the given time,
// newest first.
func (s *SQLiteStorage) RecentSyncLogs(ctx context.Context, since time.Time) ([]model.SyncLog, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger_type, status, error_log,
			accounts_processed, transactions_fetched, errors_count,
			started_at, completed_at
		FROM sync_logs
		WHERE started_at >= ?
		ORDER BY started_at DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var logs []model.SyncLog
	for rows.Next() {
		var log model.SyncLog
		var errorLog sql.NullString
		var completedAt sql.NullTime
		if err := rows.Scan(&log.ID, &log.TriggerType, (*string)(&log.Status),
			&errorLog, &log.AccountsProcessed, &log.TransactionsFetched,
			&log.ErrorsCount, &log.StartedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		log.ErrorLog = errorLog.String
		if completedAt.Valid {
			log.CompletedAt = completedAt.Time
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sync logs: %w", err)
	}
	return logs, nil
}
