package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/trip-report-tracker/internal/model"
)

// ReportRepo persists trip reports.  Every edit and decision bumps the
// version column so callers may opt into compare-and-swap writes.
type ReportRepo struct{ db *sql.DB }

func NewReportRepo(db *sql.DB) *ReportRepo { return &ReportRepo{db: db} }

// ReportInput carries the caller-editable fields of a report.
type ReportInput struct {
	CompanyCd     string
	CustomerCd    string
	StaffCd       string
	EquipmentID   uint64
	TripStartDate time.Time
	TripEndDate   time.Time
	Title         string
	Submitter     string
	Companions    *string
	Content       string
}

// Decision is the previous decision state returned by Decide so callers
// can publish what a decision overwrote.
type Decision struct {
	PreviousStatus   string
	PreviousApprover *uint64
	Version          int64
}

const reportSelect = `SELECT r.id, r.company_cd, r.customer_cd, r.staff_cd, r.equipment_id,
       r.trip_start_date, r.trip_end_date, r.title, r.submitter, r.companions, r.content,
       r.approval_status, r.approved_by, r.approved_at, r.version, r.created_at, r.updated_at,
       e.company_cd, e.name, e.total_counter, e.created_at, e.updated_at,
       a.user_name, a.email
  FROM trip_reports r
  JOIN equipment e ON e.id = r.equipment_id
  LEFT JOIN users a ON a.id = r.approved_by`

// Create inserts a pending report with version 1 and returns the stored row.
func (r *ReportRepo) Create(ctx context.Context, in ReportInput) (model.TripReport, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO trip_reports (company_cd, customer_cd, staff_cd, equipment_id, trip_start_date, trip_end_date,
		 title, submitter, companions, content, approval_status, version)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,1)`,
		in.CompanyCd, in.CustomerCd, in.StaffCd, in.EquipmentID, dateOnly(in.TripStartDate), dateOnly(in.TripEndDate),
		in.Title, in.Submitter, nullString(in.Companions), in.Content, model.StatusPending)
	if err != nil {
		if isMissingParent(err) {
			return model.TripReport{}, ErrEquipmentNotFound
		}
		return model.TripReport{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.TripReport{}, err
	}
	return r.GetByID(ctx, uint64(id))
}

// GetByID loads a report with its equipment and approver.
func (r *ReportRepo) GetByID(ctx context.Context, id uint64) (model.TripReport, error) {
	rep, err := scanReport(r.db.QueryRowContext(ctx, reportSelect+" WHERE r.id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.TripReport{}, ErrReportNotFound
	}
	return rep, err
}

// Update rewrites the editable fields of a pending report.  With a non-nil
// expectedVersion the write only succeeds when the stored version matches.
func (r *ReportRepo) Update(ctx context.Context, id uint64, in ReportInput, expectedVersion *int64) (model.TripReport, error) {
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		status, version, err := lockReport(ctx, tx, id)
		if err != nil {
			return err
		}
		if status != model.StatusPending {
			return ErrNotPending
		}
		if expectedVersion != nil && *expectedVersion != version {
			return ErrVersionConflict
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE trip_reports SET company_cd=?, customer_cd=?, staff_cd=?, equipment_id=?, trip_start_date=?,
			 trip_end_date=?, title=?, submitter=?, companions=?, content=?, version=version+1 WHERE id=?`,
			in.CompanyCd, in.CustomerCd, in.StaffCd, in.EquipmentID, dateOnly(in.TripStartDate), dateOnly(in.TripEndDate),
			in.Title, in.Submitter, nullString(in.Companions), in.Content, id)
		if isMissingParent(err) {
			return ErrEquipmentNotFound
		}
		return err
	})
	if err != nil {
		return model.TripReport{}, err
	}
	return r.GetByID(ctx, id)
}

// Decide records an approve or reject decision.  Status, approver and
// timestamp are written by a single statement.  Without expectedVersion
// the last decision wins.
func (r *ReportRepo) Decide(ctx context.Context, id uint64, status string, approverID uint64, at time.Time, expectedVersion *int64) (Decision, error) {
	var prev Decision
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var (
			approver sql.NullInt64
			version  int64
		)
		err := tx.QueryRowContext(ctx,
			"SELECT approval_status, approved_by, version FROM trip_reports WHERE id=? FOR UPDATE", id).
			Scan(&prev.PreviousStatus, &approver, &version)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrReportNotFound
		}
		if err != nil {
			return err
		}
		if expectedVersion != nil && *expectedVersion != version {
			return ErrVersionConflict
		}
		prev.PreviousApprover = uint64Ptr(approver)
		_, err = tx.ExecContext(ctx,
			"UPDATE trip_reports SET approval_status=?, approved_by=?, approved_at=?, version=version+1 WHERE id=?",
			status, approverID, at.UTC(), id)
		if isMissingParent(err) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}
		prev.Version = version + 1
		return nil
	})
	return prev, err
}

// Delete removes the report together with its threads, comments,
// attachments and read statuses.  It returns the storage keys of the
// removed attachments so their blobs can be cleaned up.
func (r *ReportRepo) Delete(ctx context.Context, id uint64) ([]string, error) {
	var keys []string
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, _, err := lockReport(ctx, tx, id); err != nil {
			return err
		}
		var err error
		keys, err = stringColumn(ctx, tx,
			"SELECT a.file_path FROM attachments a JOIN threads t ON t.id = a.thread_id WHERE t.trip_report_id=?", id)
		if err != nil {
			return err
		}
		// Reply links are cleared first so the cascade never trips the
		// restrict rule on comments.parent_comment_id.
		if _, err := tx.ExecContext(ctx,
			"UPDATE comments c JOIN threads t ON t.id = c.thread_id SET c.parent_comment_id = NULL WHERE t.trip_report_id=?",
			id); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM trip_reports WHERE id=?", id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// ListAll returns every report, newest first.
func (r *ReportRepo) ListAll(ctx context.Context) ([]model.TripReport, error) {
	return r.list(ctx, reportSelect+" ORDER BY r.created_at DESC, r.id DESC")
}

// ListPending returns reports awaiting a decision, newest first.
func (r *ReportRepo) ListPending(ctx context.Context) ([]model.TripReport, error) {
	return r.list(ctx, reportSelect+" WHERE r.approval_status=? ORDER BY r.created_at DESC, r.id DESC", model.StatusPending)
}

// ListUnreadFor returns reports the user has not marked read, newest first.
func (r *ReportRepo) ListUnreadFor(ctx context.Context, userID uint64) ([]model.TripReport, error) {
	return r.list(ctx, reportSelect+`
 WHERE NOT EXISTS (SELECT 1 FROM read_statuses rs WHERE rs.trip_report_id = r.id AND rs.user_id = ? AND rs.is_read = 1)
 ORDER BY r.created_at DESC, r.id DESC`, userID)
}

// ListBySubmitter returns the reports of one submitter name, newest first.
func (r *ReportRepo) ListBySubmitter(ctx context.Context, submitter string) ([]model.TripReport, error) {
	return r.list(ctx, reportSelect+" WHERE r.submitter=? ORDER BY r.created_at DESC, r.id DESC", submitter)
}

// ListByCustomer returns the reports filed against a customer code, newest first.
func (r *ReportRepo) ListByCustomer(ctx context.Context, customerCd string) ([]model.TripReport, error) {
	return r.list(ctx, reportSelect+" WHERE r.customer_cd=? ORDER BY r.created_at DESC, r.id DESC", customerCd)
}

func (r *ReportRepo) list(ctx context.Context, q string, args ...any) ([]model.TripReport, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.TripReport{}
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func lockReport(ctx context.Context, tx *sql.Tx, id uint64) (status string, version int64, err error) {
	err = tx.QueryRowContext(ctx,
		"SELECT approval_status, version FROM trip_reports WHERE id=? FOR UPDATE", id).Scan(&status, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, ErrReportNotFound
	}
	return status, version, err
}

func scanReport(row rowScanner) (model.TripReport, error) {
	var (
		rep           model.TripReport
		eq            model.Equipment
		companions    sql.NullString
		approvedBy    sql.NullInt64
		approvedAt    sql.NullTime
		eqCompany     sql.NullString
		eqCounter     sql.NullInt64
		approverName  sql.NullString
		approverEmail sql.NullString
	)
	err := row.Scan(&rep.ID, &rep.CompanyCd, &rep.CustomerCd, &rep.StaffCd, &rep.EquipmentID,
		&rep.TripStartDate, &rep.TripEndDate, &rep.Title, &rep.Submitter, &companions, &rep.Content,
		&rep.ApprovalStatus, &approvedBy, &approvedAt, &rep.Version, &rep.CreatedAt, &rep.UpdatedAt,
		&eqCompany, &eq.Name, &eqCounter, &eq.CreatedAt, &eq.UpdatedAt,
		&approverName, &approverEmail)
	if err != nil {
		return model.TripReport{}, err
	}
	rep.Companions = stringPtr(companions)
	rep.ApprovedBy = uint64Ptr(approvedBy)
	rep.ApprovedAt = timePtr(approvedAt)
	eq.ID = rep.EquipmentID
	eq.CompanyCd = stringPtr(eqCompany)
	eq.TotalCounter = int64Ptr(eqCounter)
	rep.Equipment = &eq
	if rep.ApprovedBy != nil && approverName.Valid {
		rep.Approver = &model.UserSummary{ID: *rep.ApprovedBy, Name: approverName.String, Email: approverEmail.String}
	}
	return rep, nil
}

func stringColumn(ctx context.Context, q dbtx, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// dateOnly truncates to the calendar day in UTC for DATE columns.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
