package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/trip-report-tracker/internal/model"
)

// ReadStatusRepo tracks which users have read which reports.  There is at
// most one row per (user, report); a missing row means unread.
type ReadStatusRepo struct{ db *sql.DB }

func NewReadStatusRepo(db *sql.DB) *ReadStatusRepo { return &ReadStatusRepo{db: db} }

// MarkRead upserts the (user, report) row.  Repeating the call only
// refreshes read_at.
func (r *ReadStatusRepo) MarkRead(ctx context.Context, userID, reportID uint64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO read_statuses (user_id, trip_report_id, is_read, read_at) VALUES (?,?,1,?)
		 ON DUPLICATE KEY UPDATE is_read = 1, read_at = VALUES(read_at)`,
		userID, reportID, at.UTC())
	if isMissingParent(err) {
		return r.missingParent(ctx, reportID)
	}
	return err
}

// missingParent tells a deleted report apart from a deleted user after a
// foreign key failure.
func (r *ReadStatusRepo) missingParent(ctx context.Context, reportID uint64) error {
	var one int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM trip_reports WHERE id=?", reportID).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrReportNotFound
	case err != nil:
		return err
	}
	return ErrInvalidReference
}

// Get returns the stored status; sql.ErrNoRows is reported as an unread
// zero value.
func (r *ReadStatusRepo) Get(ctx context.Context, userID, reportID uint64) (model.ReadStatus, error) {
	var (
		rs     model.ReadStatus
		readAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, trip_report_id, is_read, read_at, created_at, updated_at
		   FROM read_statuses WHERE user_id=? AND trip_report_id=?`, userID, reportID).
		Scan(&rs.ID, &rs.UserID, &rs.TripReportID, &rs.IsRead, &readAt, &rs.CreatedAt, &rs.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ReadStatus{UserID: userID, TripReportID: reportID}, nil
	}
	if err != nil {
		return model.ReadStatus{}, err
	}
	rs.ReadAt = timePtr(readAt)
	return rs, nil
}

// ReadUsers lists the users who marked the report read, by name.
func (r *ReadStatusRepo) ReadUsers(ctx context.Context, reportID uint64) ([]model.UserSummary, error) {
	return userSummaries(ctx, r.db,
		`SELECT u.id, u.user_name, u.email FROM users u
		   JOIN read_statuses rs ON rs.user_id = u.id AND rs.trip_report_id = ? AND rs.is_read = 1
		  ORDER BY u.user_name, u.id`, reportID)
}

// UnreadUsers is the complement of ReadUsers over the full user roster.
func (r *ReadStatusRepo) UnreadUsers(ctx context.Context, reportID uint64) ([]model.UserSummary, error) {
	return userSummaries(ctx, r.db,
		`SELECT u.id, u.user_name, u.email FROM users u
		  WHERE NOT EXISTS (SELECT 1 FROM read_statuses rs
		                     WHERE rs.user_id = u.id AND rs.trip_report_id = ? AND rs.is_read = 1)
		  ORDER BY u.user_name, u.id`, reportID)
}

func userSummaries(ctx context.Context, q dbtx, query string, args ...any) ([]model.UserSummary, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.UserSummary{}
	for rows.Next() {
		var u model.UserSummary
		if err := rows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
