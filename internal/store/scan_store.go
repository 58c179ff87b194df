package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hubspot-deals-connector/internal/model"
)

// CreateJob inserts a new scan job in pending state with its immutable
// config snapshot.
func (s *Store) CreateJob(job *model.ScanJob, config model.ScanRequest) error {
	configJSON, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("encoding config snapshot: %w", err)
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	job.Status = model.StatusPending

	_, err = s.db.Exec(
		`INSERT INTO scan_jobs (id, scan_id, tenant_id, status, config, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.ScanID, job.TenantID, job.Status, string(configJSON), now, now)
	if err != nil {
		return fmt.Errorf("inserting scan job: %w", err)
	}
	return nil
}

// ResetJob rewinds a terminal job for a fresh restart: counters zeroed,
// error and timestamps cleared, checkpoint dropped, new config snapshot
// captured. Rows from earlier runs stay until the job is removed.
func (s *Store) ResetJob(scanID string, config model.ScanRequest) error {
	configJSON, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("encoding config snapshot: %w", err)
	}
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`UPDATE scan_jobs
		 SET status = ?, total_items = 0, processed_items = 0, failed_items = 0,
		     config = ?, error_message = NULL, started_at = NULL, completed_at = NULL, updated_at = ?
		 WHERE scan_id = ?`,
		model.StatusPending, string(configJSON), now, scanID)
	if err != nil {
		return fmt.Errorf("resetting scan job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: scan %q", model.ErrNotFound, scanID)
	}
	if _, err := s.db.Exec(`DELETE FROM scan_checkpoints WHERE scan_id = ?`, scanID); err != nil {
		return fmt.Errorf("clearing checkpoint: %w", err)
	}
	return nil
}

// GetJob loads a job by its external scan id.
func (s *Store) GetJob(scanID string) (*model.ScanJob, error) {
	row := s.db.QueryRow(
		`SELECT id, scan_id, tenant_id, status, total_items, processed_items, failed_items,
		        error_message, created_at, started_at, completed_at, updated_at
		 FROM scan_jobs WHERE scan_id = ?`, scanID)
	return scanJobRow(row)
}

// ListJobs returns every job, most recent first.
func (s *Store) ListJobs() ([]model.ScanJob, error) {
	rows, err := s.db.Query(
		`SELECT id, scan_id, tenant_id, status, total_items, processed_items, failed_items,
		        error_message, created_at, started_at, completed_at, updated_at
		 FROM scan_jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing scan jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.ScanJob
	for rows.Next() {
		job, err := scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// UpdateStatus moves a job to a new status, stamping started_at on the
// transition to running and completed_at on any terminal transition.
// errMsg is recorded only for failures.
func (s *Store) UpdateStatus(scanID string, status model.ScanStatus, errMsg string) error {
	now := time.Now().UTC()
	var err error
	switch {
	case status == model.StatusRunning:
		_, err = s.db.Exec(
			`UPDATE scan_jobs SET status = ?, started_at = ?, updated_at = ? WHERE scan_id = ?`,
			status, now, now, scanID)
	case status.Terminal():
		var msg any
		if errMsg != "" {
			msg = errMsg
		}
		_, err = s.db.Exec(
			`UPDATE scan_jobs SET status = ?, error_message = ?, completed_at = ?, updated_at = ? WHERE scan_id = ?`,
			status, msg, now, now, scanID)
	default:
		_, err = s.db.Exec(
			`UPDATE scan_jobs SET status = ?, updated_at = ? WHERE scan_id = ?`,
			status, now, scanID)
	}
	if err != nil {
		return fmt.Errorf("updating status for scan %q: %w", scanID, err)
	}
	return nil
}

// UpdateProgress persists the job's counters.
func (s *Store) UpdateProgress(scanID string, total, processed, failed int64) error {
	_, err := s.db.Exec(
		`UPDATE scan_jobs SET total_items = ?, processed_items = ?, failed_items = ?, updated_at = ?
		 WHERE scan_id = ?`,
		total, processed, failed, time.Now().UTC(), scanID)
	if err != nil {
		return fmt.Errorf("updating progress for scan %q: %w", scanID, err)
	}
	return nil
}

// DeleteJob removes a job; its checkpoint and deal rows go with it via
// foreign-key cascade.
func (s *Store) DeleteJob(scanID string) error {
	res, err := s.db.Exec(`DELETE FROM scan_jobs WHERE scan_id = ?`, scanID)
	if err != nil {
		return fmt.Errorf("deleting scan %q: %w", scanID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: scan %q", model.ErrNotFound, scanID)
	}
	return nil
}

// CountByStatus reports how many jobs sit in each status.
func (s *Store) CountByStatus() (map[model.ScanStatus]int64, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM scan_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.ScanStatus]int64)
	for rows.Next() {
		var status model.ScanStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// SaveCheckpoint upserts the resume point for a scan. The guard on
// last_batch_index makes writes strictly ordered: an attempt to persist a
// checkpoint older than the stored one is silently dropped, so a retried
// or restarted runner can never rewind durable progress.
func (s *Store) SaveCheckpoint(cp *model.Checkpoint) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO scan_checkpoints (scan_id, cursor, last_batch_index, total_so_far, processed_so_far, failed_so_far, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(scan_id) DO UPDATE SET
		   cursor = excluded.cursor,
		   last_batch_index = excluded.last_batch_index,
		   total_so_far = excluded.total_so_far,
		   processed_so_far = excluded.processed_so_far,
		   failed_so_far = excluded.failed_so_far,
		   updated_at = excluded.updated_at
		 WHERE excluded.last_batch_index >= scan_checkpoints.last_batch_index`,
		cp.ScanID, cp.Cursor, cp.LastBatchIndex, cp.TotalSoFar, cp.ProcessedSoFar, cp.FailedSoFar, now)
	if err != nil {
		return fmt.Errorf("saving checkpoint for scan %q: %w", cp.ScanID, err)
	}
	return nil
}

// GetCheckpoint loads the resume point for a scan, if one was ever written.
func (s *Store) GetCheckpoint(scanID string) (*model.Checkpoint, error) {
	var cp model.Checkpoint
	err := s.db.QueryRow(
		`SELECT scan_id, cursor, last_batch_index, total_so_far, processed_so_far, failed_so_far, updated_at
		 FROM scan_checkpoints WHERE scan_id = ?`, scanID).
		Scan(&cp.ScanID, &cp.Cursor, &cp.LastBatchIndex, &cp.TotalSoFar, &cp.ProcessedSoFar, &cp.FailedSoFar, &cp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: checkpoint for scan %q", model.ErrNotFound, scanID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint for scan %q: %w", scanID, err)
	}
	return &cp, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJobRow(row rowScanner) (*model.ScanJob, error) {
	var job model.ScanJob
	var tenantID, errMsg sql.NullString
	var startedAt, completedAt sql.NullTime
	err := row.Scan(&job.ID, &job.ScanID, &tenantID, &job.Status,
		&job.TotalItems, &job.ProcessedItems, &job.FailedItems,
		&errMsg, &job.CreatedAt, &startedAt, &completedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: scan job", model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning job row: %w", err)
	}
	job.TenantID = tenantID.String
	job.ErrorMessage = errMsg.String
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return &job, nil
}
