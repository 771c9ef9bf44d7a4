package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/trip-report-tracker/internal/model"
)

// ThreadRepo persists discussion threads and their attachments.
type ThreadRepo struct{ db *sql.DB }

func NewThreadRepo(db *sql.DB) *ThreadRepo { return &ThreadRepo{db: db} }

const threadColumns = "id, company_cd, equipment_id, trip_report_id, thread_name, created_at, updated_at"

// ReportThreadName is the deterministic name of a lazily created report thread.
func ReportThreadName(reportID uint64) string { return fmt.Sprintf("trip-report-%d", reportID) }

// AttachToReport finds or creates the report's thread and inserts one
// attachment row per file, all in one transaction.  The report row is
// locked so concurrent calls for the same report share a single thread.
func (r *ThreadRepo) AttachToReport(ctx context.Context, reportID uint64, files []model.NewAttachment) (model.Thread, []model.Attachment, error) {
	var threadID uint64
	var ids []uint64
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		if threadID, err = reportThread(ctx, tx, reportID); err != nil {
			return err
		}
		ids, err = insertAttachments(ctx, tx, threadID, files)
		if err != nil {
			return err
		}
		return touchThread(ctx, tx, threadID)
	})
	if err != nil {
		return model.Thread{}, nil, err
	}
	th, err := r.GetByID(ctx, threadID)
	if err != nil {
		return model.Thread{}, nil, err
	}
	atts, err := r.attachmentsByID(ctx, ids)
	return th, atts, err
}

// EnsureForReport returns the report's first thread, creating it under the
// same report lock AttachToReport takes.
func (r *ThreadRepo) EnsureForReport(ctx context.Context, reportID uint64) (model.Thread, error) {
	var threadID uint64
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		threadID, err = reportThread(ctx, tx, reportID)
		return err
	})
	if err != nil {
		return model.Thread{}, err
	}
	return r.GetByID(ctx, threadID)
}

// CreateForReport creates a named thread bound to an existing report.  It
// copies the report's company code and equipment.
func (r *ThreadRepo) CreateForReport(ctx context.Context, reportID uint64, name string) (model.Thread, error) {
	var id uint64
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		company, equipment, err := lockReportRefs(ctx, tx, reportID)
		if err != nil {
			return err
		}
		id, err = insertThread(ctx, tx, company, &equipment, &reportID, name)
		return err
	})
	if err != nil {
		return model.Thread{}, err
	}
	return r.GetByID(ctx, id)
}

// CreateForCompany creates a stand-alone thread for a company code,
// optionally bound to equipment.
func (r *ThreadRepo) CreateForCompany(ctx context.Context, companyCd, name string, equipmentID *uint64) (model.Thread, error) {
	id, err := insertThread(ctx, r.db, companyCd, equipmentID, nil, name)
	if err != nil {
		return model.Thread{}, err
	}
	return r.GetByID(ctx, id)
}

// GetByID returns the thread without attachments or comments.
func (r *ThreadRepo) GetByID(ctx context.Context, id uint64) (model.Thread, error) {
	th, err := scanThread(r.db.QueryRowContext(ctx, "SELECT "+threadColumns+" FROM threads WHERE id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Thread{}, ErrThreadNotFound
	}
	return th, err
}

// ListByReport returns the report's threads, most recently active first.
func (r *ThreadRepo) ListByReport(ctx context.Context, reportID uint64) ([]model.Thread, error) {
	return r.list(ctx, "SELECT "+threadColumns+" FROM threads WHERE trip_report_id=? ORDER BY updated_at DESC, id DESC", reportID)
}

// ListByCompany returns the company's threads, most recently active first.
func (r *ThreadRepo) ListByCompany(ctx context.Context, companyCd string) ([]model.Thread, error) {
	return r.list(ctx, "SELECT "+threadColumns+" FROM threads WHERE company_cd=? ORDER BY updated_at DESC, id DESC", companyCd)
}

// CountByReport counts the threads of a report.
func (r *ThreadRepo) CountByReport(ctx context.Context, reportID uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM threads WHERE trip_report_id=?", reportID).Scan(&n)
	return n, err
}

// AddAttachments links already uploaded objects to a thread.
func (r *ThreadRepo) AddAttachments(ctx context.Context, threadID uint64, files []model.NewAttachment) ([]model.Attachment, error) {
	var ids []uint64
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM threads WHERE id=? FOR UPDATE", threadID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrThreadNotFound
		}
		if err != nil {
			return err
		}
		if ids, err = insertAttachments(ctx, tx, threadID, files); err != nil {
			return err
		}
		return touchThread(ctx, tx, threadID)
	})
	if err != nil {
		return nil, err
	}
	return r.attachmentsByID(ctx, ids)
}

// Delete removes the thread with its comments and attachments and
// returns the storage keys of the removed attachments.
func (r *ThreadRepo) Delete(ctx context.Context, id uint64) ([]string, error) {
	var keys []string
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM threads WHERE id=? FOR UPDATE", id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrThreadNotFound
		}
		if err != nil {
			return err
		}
		if keys, err = stringColumn(ctx, tx, "SELECT file_path FROM attachments WHERE thread_id=?", id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "UPDATE comments SET parent_comment_id = NULL WHERE thread_id=?", id); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM threads WHERE id=?", id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *ThreadRepo) list(ctx context.Context, q string, args ...any) ([]model.Thread, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Thread{}
	for rows.Next() {
		th, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, th)
	}
	return out, rows.Err()
}

func (r *ThreadRepo) attachmentsByID(ctx context.Context, ids []uint64) ([]model.Attachment, error) {
	if len(ids) == 0 {
		return []model.Attachment{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return queryAttachments(ctx, r.db,
		"SELECT "+attachmentColumns+" FROM attachments WHERE id IN ("+placeholders(len(ids))+") ORDER BY id", args...)
}

// reportThread locks the report and finds or creates its first thread.
func reportThread(ctx context.Context, tx *sql.Tx, reportID uint64) (uint64, error) {
	company, equipment, err := lockReportRefs(ctx, tx, reportID)
	if err != nil {
		return 0, err
	}
	var id uint64
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM threads WHERE trip_report_id=? ORDER BY id LIMIT 1", reportID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return insertThread(ctx, tx, company, &equipment, &reportID, ReportThreadName(reportID))
	}
	return id, err
}

func lockReportRefs(ctx context.Context, tx *sql.Tx, reportID uint64) (company string, equipment uint64, err error) {
	err = tx.QueryRowContext(ctx,
		"SELECT company_cd, equipment_id FROM trip_reports WHERE id=? FOR UPDATE", reportID).Scan(&company, &equipment)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, ErrReportNotFound
	}
	return company, equipment, err
}

func insertThread(ctx context.Context, q dbtx, companyCd string, equipmentID, reportID *uint64, name string) (uint64, error) {
	res, err := q.ExecContext(ctx,
		"INSERT INTO threads (company_cd, equipment_id, trip_report_id, thread_name) VALUES (?,?,?,?)",
		companyCd, nullUint64(equipmentID), nullUint64(reportID), strings.TrimSpace(name))
	if err != nil {
		if isMissingParent(err) {
			return 0, ErrInvalidReference
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	return uint64(id), err
}

func insertAttachments(ctx context.Context, tx *sql.Tx, threadID uint64, files []model.NewAttachment) ([]uint64, error) {
	ids := make([]uint64, 0, len(files))
	for _, f := range files {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO attachments (thread_id, file_name, file_path, file_type, file_size) VALUES (?,?,?,?,?)",
			threadID, f.FileName, f.StorageKey, f.FileType, f.FileSize)
		if err != nil {
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		ids = append(ids, uint64(id))
	}
	return ids, nil
}

func touchThread(ctx context.Context, q dbtx, threadID uint64) error {
	_, err := q.ExecContext(ctx, "UPDATE threads SET updated_at = CURRENT_TIMESTAMP WHERE id=?", threadID)
	return err
}

func scanThread(row rowScanner) (model.Thread, error) {
	var (
		th        model.Thread
		equipment sql.NullInt64
		report    sql.NullInt64
	)
	if err := row.Scan(&th.ID, &th.CompanyCd, &equipment, &report, &th.Name, &th.CreatedAt, &th.UpdatedAt); err != nil {
		return model.Thread{}, err
	}
	th.EquipmentID = uint64Ptr(equipment)
	th.TripReportID = uint64Ptr(report)
	return th, nil
}

func nullUint64(v *uint64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
