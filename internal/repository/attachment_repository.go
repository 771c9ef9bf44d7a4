package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/trip-report-tracker/internal/model"
)

// AttachmentRepo reads and deletes attachment metadata.  Inserts go
// through ThreadRepo so they share the thread's transaction.
type AttachmentRepo struct{ db *sql.DB }

func NewAttachmentRepo(db *sql.DB) *AttachmentRepo { return &AttachmentRepo{db: db} }

const attachmentColumns = "id, thread_id, file_name, file_path, file_type, file_size, created_at, updated_at"

func (r *AttachmentRepo) GetByID(ctx context.Context, id uint64) (model.Attachment, error) {
	var a model.Attachment
	err := r.db.QueryRowContext(ctx, "SELECT "+attachmentColumns+" FROM attachments WHERE id=?", id).
		Scan(&a.ID, &a.ThreadID, &a.FileName, &a.FilePath, &a.FileType, &a.FileSize, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Attachment{}, ErrAttachmentNotFound
	}
	return a, err
}

func (r *AttachmentRepo) ListByThread(ctx context.Context, threadID uint64) ([]model.Attachment, error) {
	return queryAttachments(ctx, r.db,
		"SELECT "+attachmentColumns+" FROM attachments WHERE thread_id=? ORDER BY created_at, id", threadID)
}

func (r *AttachmentRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM attachments WHERE id=?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAttachmentNotFound
	}
	return nil
}

func queryAttachments(ctx context.Context, q dbtx, query string, args ...any) ([]model.Attachment, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Attachment{}
	for rows.Next() {
		var a model.Attachment
		if err := rows.Scan(&a.ID, &a.ThreadID, &a.FileName, &a.FilePath, &a.FileType, &a.FileSize,
			&a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
