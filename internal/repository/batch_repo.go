package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mlindner/invoicescan/internal/domain/entity"
	"github.com/mlindner/invoicescan/pkg/database"
	"go.uber.org/zap"
)

// BatchRepository tracks the per-file progress of an upload batch.
type BatchRepository struct {
	db     *database.DB
	logger *zap.Logger
}

func NewBatchRepository(db *database.DB, logger *zap.Logger) *BatchRepository {
	return &BatchRepository{db: db, logger: logger}
}

// CreateEntry registers one file of a batch before processing starts.
func (r *BatchRepository) CreateEntry(ctx context.Context, e *entity.BatchEntry) error {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO batch_queue (batch_id, file_path, preview_path, filename, status, position)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.BatchID, e.FilePath, e.PreviewPath, e.Filename, e.Status, e.Position)
	if err != nil {
		r.logger.Error("failed to create batch entry", zap.Error(err))
		return fmt.Errorf("failed to create batch entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	e.ID = id
	return nil
}

// ListByBatch returns the entries of a batch in upload order.
func (r *BatchRepository) ListByBatch(ctx context.Context, batchID string) ([]*entity.BatchEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, batch_id, file_path, preview_path, filename, status, position, pending_id, processed_at
		FROM batch_queue WHERE batch_id = ? ORDER BY position ASC
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch entries: %w", err)
	}
	defer rows.Close()

	var entries []*entity.BatchEntry
	for rows.Next() {
		var e entity.BatchEntry
		var pendingID sql.NullInt64
		var processedAt sql.NullString
		err := rows.Scan(&e.ID, &e.BatchID, &e.FilePath, &e.PreviewPath,
			&e.Filename, &e.Status, &e.Position, &pendingID, &processedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch entry: %w", err)
		}
		if pendingID.Valid {
			e.PendingID = &pendingID.Int64
		}
		if processedAt.Valid {
			t := parseTimestamp(processedAt.String)
			e.ProcessedAt = &t
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// SetPendingID links a batch entry to the pending record extraction
// produced and advances it to the given status.
func (r *BatchRepository) SetPendingID(ctx context.Context, id int64, pendingID int64, status string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx, `
		UPDATE batch_queue SET pending_id = ?, status = ?, processed_at = ? WHERE id = ?
	`, pendingID, status, now, id)
	if err != nil {
		return fmt.Errorf("failed to update batch entry: %w", err)
	}
	return nil
}

// ClaimNextPending atomically moves the oldest pending entry to the
// processing status and returns it. Returns nil when the queue is empty.
func (r *BatchRepository) ClaimNextPending(ctx context.Context) (*entity.BatchEntry, error) {
	for {
		var e entity.BatchEntry
		err := r.db.QueryRowContext(ctx, `
			SELECT id, batch_id, file_path, preview_path, filename, status, position
			FROM batch_queue WHERE status = ?
			ORDER BY created_at ASC, position ASC LIMIT 1
		`, entity.BatchStatusPending).Scan(
			&e.ID, &e.BatchID, &e.FilePath, &e.PreviewPath, &e.Filename, &e.Status, &e.Position)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to fetch pending batch entry: %w", err)
		}

		result, err := r.db.ExecContext(ctx,
			"UPDATE batch_queue SET status = ? WHERE id = ? AND status = ?",
			entity.BatchStatusProcessing, e.ID, entity.BatchStatusPending)
		if err != nil {
			return nil, fmt.Errorf("failed to claim batch entry: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 1 {
			e.Status = entity.BatchStatusProcessing
			return &e, nil
		}
		// Lost the race for this entry, try the next one.
	}
}

// SetStatus advances a batch entry and stamps its processing time.
func (r *BatchRepository) SetStatus(ctx context.Context, id int64, status string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx,
		"UPDATE batch_queue SET status = ?, processed_at = ? WHERE id = ?", status, now, id)
	if err != nil {
		return fmt.Errorf("failed to update batch entry status: %w", err)
	}
	return nil
}

// MarkProcessedByPending advances the batch entry linked to a pending
// record to the processed status once that record is finalized.
func (r *BatchRepository) MarkProcessedByPending(ctx context.Context, pendingID int64) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx, `
		UPDATE batch_queue SET status = ?, processed_at = ? WHERE pending_id = ?
	`, entity.BatchStatusProcessed, now, pendingID)
	if err != nil {
		return fmt.Errorf("failed to mark batch entry processed: %w", err)
	}
	return nil
}

// BatchProgress summarizes how far a batch has moved through review.
type BatchProgress struct {
	BatchID    string `json:"batch_id"`
	Total      int    `json:"total"`
	Pending    int    `json:"pending"`
	Processing int    `json:"processing"`
	InReview   int    `json:"in_review"`
	Processed  int    `json:"processed"`
	Duplicates int    `json:"duplicates"`
	Failed     int    `json:"failed"`
}

// Progress aggregates the entry statuses of a batch.
func (r *BatchRepository) Progress(ctx context.Context, batchID string) (*BatchProgress, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM batch_queue WHERE batch_id = ? GROUP BY status
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get batch progress: %w", err)
	}
	defer rows.Close()

	progress := &BatchProgress{BatchID: batchID}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan batch progress: %w", err)
		}
		progress.Total += count
		switch status {
		case entity.BatchStatusPending:
			progress.Pending += count
		case entity.BatchStatusProcessing:
			progress.Processing += count
		case entity.BatchStatusPendingValidation:
			progress.InReview += count
		case entity.BatchStatusProcessed:
			progress.Processed += count
		case entity.BatchStatusDuplicate:
			progress.Duplicates += count
		case entity.BatchStatusFailed:
			progress.Failed += count
		}
	}
	return progress, rows.Err()
}
