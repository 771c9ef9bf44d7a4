package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/trip-report-tracker/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

var reportCols = []string{
	"id", "company_cd", "customer_cd", "staff_cd", "equipment_id",
	"trip_start_date", "trip_end_date", "title", "submitter", "companions", "content",
	"approval_status", "approved_by", "approved_at", "version", "created_at", "updated_at",
	"e_company_cd", "e_name", "e_total_counter", "e_created_at", "e_updated_at",
	"a_user_name", "a_email",
}

func TestUserRepoGetByEmailNormalizes(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(q("FROM users WHERE email=? LIMIT 1")).
		WithArgs("user@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_name", "email", "password", "staff_serial_no", "created_at", "updated_at"}).
			AddRow(3, "Tanaka", "user@example.com", "hash", nil, now, now))
	mock.ExpectQuery(q("WHERE ru.user_id=?")).
		WithArgs(uint64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"role_name"}).AddRow("Approver").AddRow("User"))

	u, err := NewUserRepo(db).GetByEmail(context.Background(), "  User@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), u.ID)
	assert.Nil(t, u.StaffSerialNo)
	assert.Equal(t, []string{"Approver", "User"}, u.Roles)
}

func TestUserRepoGetByEmailMissing(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(q("FROM users WHERE email=?")).WillReturnError(sql.ErrNoRows)

	_, err := NewUserRepo(db).GetByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepoCreateDuplicateEmail(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO users")).
		WithArgs("Tanaka", "tanaka@example.com", "hash").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectRollback()

	_, err := NewUserRepo(db).Create(context.Background(),
		NewUser{Name: "Tanaka", Email: "Tanaka@Example.com", PasswordHash: "hash"}, []uint64{2})
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestUserRepoCreateAssignsRoles(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO users")).WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectExec(q("INSERT IGNORE INTO role_users")).WithArgs(uint64(2), uint64(11)).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	id, err := NewUserRepo(db).Create(context.Background(),
		NewUser{Name: "Sato", Email: "sato@example.com", PasswordHash: "hash"}, []uint64{2})
	require.NoError(t, err)
	assert.Equal(t, uint64(11), id)
}

func TestUserRepoDeleteApproverIsRestricted(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(q("DELETE FROM role_users WHERE user_id=?")).WithArgs(uint64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("DELETE FROM users WHERE id=?")).WithArgs(uint64(5)).
		WillReturnError(&mysql.MySQLError{Number: 1451, Message: "Cannot delete or update a parent row"})
	mock.ExpectRollback()

	err := NewUserRepo(db).Delete(context.Background(), 5)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestUserRepoUpdatePasswordMissingUser(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(q("UPDATE users SET password=?")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT 1 FROM users WHERE id=?")).WillReturnError(sql.ErrNoRows)

	err := NewUserRepo(db).UpdatePassword(context.Background(), 99, "hash")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestRoleRepoReplaceForUserUnknownRole(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT 1 FROM users WHERE id=? FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(q("SELECT id FROM roles WHERE role_name IN (?,?)")).
		WithArgs("Admin", "Auditor").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectRollback()

	err := NewRoleRepo(db).ReplaceForUser(context.Background(), 4, []string{"Admin", "Auditor", "Admin"})
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestRoleRepoReplaceForUser(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT 1 FROM users WHERE id=? FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(q("SELECT id FROM roles WHERE role_name IN (?)")).
		WithArgs("Approver").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectExec(q("DELETE FROM role_users WHERE user_id=?")).WithArgs(uint64(4)).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(q("INSERT INTO role_users")).WithArgs(uint64(3), uint64(4)).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, NewRoleRepo(db).ReplaceForUser(context.Background(), 4, []string{"Approver"}))
}

func TestReportRepoGetByID(t *testing.T) {
	db, mock := newMock(t)
	start := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC)
	now := time.Now()
	mock.ExpectQuery(q("FROM trip_reports r")).
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows(reportCols).AddRow(
			1, "C01", "CU1", "S01", 2, start, end, "Site visit", "Tanaka", nil, "body",
			"approved", 7, now, 2, now, now,
			"C01", "Press", 1200, now, now,
			"Suzuki", "suzuki@example.com"))

	rep, err := NewReportRepo(db).GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Site visit", rep.Title)
	assert.Equal(t, start, rep.TripStartDate)
	assert.Equal(t, int64(2), rep.Version)
	require.NotNil(t, rep.Equipment)
	assert.Equal(t, "Press", rep.Equipment.Name)
	require.NotNil(t, rep.Approver)
	assert.Equal(t, uint64(7), rep.Approver.ID)
	assert.Equal(t, "Suzuki", rep.Approver.Name)
}

func TestReportRepoGetByIDMissing(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(q("FROM trip_reports r")).WillReturnError(sql.ErrNoRows)

	_, err := NewReportRepo(db).GetByID(context.Background(), 404)
	assert.ErrorIs(t, err, ErrReportNotFound)
}

func TestReportRepoCreateUnknownEquipment(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(q("INSERT INTO trip_reports")).
		WillReturnError(&mysql.MySQLError{Number: 1452, Message: "Cannot add or update a child row"})

	_, err := NewReportRepo(db).Create(context.Background(), ReportInput{EquipmentID: 77})
	assert.ErrorIs(t, err, ErrEquipmentNotFound)
}

func TestReportRepoDecideOverwritesPreviousDecision(t *testing.T) {
	db, mock := newMock(t)
	at := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT approval_status, approved_by, version FROM trip_reports WHERE id=? FOR UPDATE")).
		WithArgs(uint64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"approval_status", "approved_by", "version"}).AddRow("approved", 3, 4))
	mock.ExpectExec(q("UPDATE trip_reports SET approval_status=?, approved_by=?, approved_at=?, version=version+1")).
		WithArgs(model.StatusRejected, uint64(7), at, uint64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	prev, err := NewReportRepo(db).Decide(context.Background(), 9, model.StatusRejected, 7, at, nil)
	require.NoError(t, err)
	assert.Equal(t, "approved", prev.PreviousStatus)
	require.NotNil(t, prev.PreviousApprover)
	assert.Equal(t, uint64(3), *prev.PreviousApprover)
	assert.Equal(t, int64(5), prev.Version)
}

func TestReportRepoDecideVersionConflict(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"approval_status", "approved_by", "version"}).AddRow("pending", nil, 4))
	mock.ExpectRollback()

	stale := int64(3)
	_, err := NewReportRepo(db).Decide(context.Background(), 9, model.StatusApproved, 7, time.Now(), &stale)
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestReportRepoUpdateRejectsDecidedReport(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT approval_status, version FROM trip_reports WHERE id=? FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"approval_status", "version"}).AddRow("approved", 2))
	mock.ExpectRollback()

	_, err := NewReportRepo(db).Update(context.Background(), 9, ReportInput{}, nil)
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestReportRepoDeleteReturnsAttachmentKeys(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT approval_status, version FROM trip_reports WHERE id=? FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"approval_status", "version"}).AddRow("pending", 1))
	mock.ExpectQuery(q("SELECT a.file_path FROM attachments a")).
		WithArgs(uint64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"file_path"}).AddRow("u1/a.pdf").AddRow("u2/b.png"))
	mock.ExpectExec(q("SET c.parent_comment_id = NULL")).WithArgs(uint64(9)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("DELETE FROM trip_reports WHERE id=?")).WithArgs(uint64(9)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	keys, err := NewReportRepo(db).Delete(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1/a.pdf", "u2/b.png"}, keys)
}

func TestReportRepoListUnreadUsesAntiJoin(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(q("WHERE NOT EXISTS (SELECT 1 FROM read_statuses rs")).
		WithArgs(uint64(4)).
		WillReturnRows(sqlmock.NewRows(reportCols))

	reports, err := NewReportRepo(db).ListUnreadFor(context.Background(), 4)
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestReadStatusRepoMarkReadUpserts(t *testing.T) {
	db, mock := newMock(t)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(q("ON DUPLICATE KEY UPDATE is_read = 1, read_at = VALUES(read_at)")).
		WithArgs(uint64(4), uint64(9), at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, NewReadStatusRepo(db).MarkRead(context.Background(), 4, 9, at))
}

func TestReadStatusRepoMarkReadMissingParent(t *testing.T) {
	fkFail := &mysql.MySQLError{Number: 1452, Message: "Cannot add or update a child row"}
	at := time.Now()

	db, mock := newMock(t)
	mock.ExpectExec(q("INSERT INTO read_statuses")).WillReturnError(fkFail)
	mock.ExpectQuery(q("SELECT 1 FROM trip_reports WHERE id=?")).WithArgs(uint64(9)).WillReturnError(sql.ErrNoRows)
	assert.ErrorIs(t, NewReadStatusRepo(db).MarkRead(context.Background(), 4, 9, at), ErrReportNotFound)

	db, mock = newMock(t)
	mock.ExpectExec(q("INSERT INTO read_statuses")).WillReturnError(fkFail)
	mock.ExpectQuery(q("SELECT 1 FROM trip_reports WHERE id=?")).WithArgs(uint64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	assert.ErrorIs(t, NewReadStatusRepo(db).MarkRead(context.Background(), 404, 9, at), ErrInvalidReference)
}

func TestReadStatusRepoGetMissingIsUnread(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(q("FROM read_statuses WHERE user_id=? AND trip_report_id=?")).WillReturnError(sql.ErrNoRows)

	rs, err := NewReadStatusRepo(db).Get(context.Background(), 4, 9)
	require.NoError(t, err)
	assert.False(t, rs.IsRead)
	assert.Nil(t, rs.ReadAt)
}

func TestThreadRepoAttachToReportCreatesThread(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT company_cd, equipment_id FROM trip_reports WHERE id=? FOR UPDATE")).
		WithArgs(uint64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"company_cd", "equipment_id"}).AddRow("C01", 2))
	mock.ExpectQuery(q("SELECT id FROM threads WHERE trip_report_id=?")).WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(q("INSERT INTO threads")).
		WithArgs("C01", sqlmock.AnyArg(), sqlmock.AnyArg(), "trip-report-9").
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectExec(q("INSERT INTO attachments")).
		WithArgs(uint64(5), "a.pdf", "uuid/a.pdf", "application/pdf", int64(10)).
		WillReturnResult(sqlmock.NewResult(21, 1))
	mock.ExpectExec(q("UPDATE threads SET updated_at")).WithArgs(uint64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(q("FROM threads WHERE id=?")).
		WithArgs(uint64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "company_cd", "equipment_id", "trip_report_id", "thread_name", "created_at", "updated_at"}).
			AddRow(5, "C01", 2, 9, "trip-report-9", now, now))
	mock.ExpectQuery(q("FROM attachments WHERE id IN (?)")).
		WithArgs(uint64(21)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "thread_id", "file_name", "file_path", "file_type", "file_size", "created_at", "updated_at"}).
			AddRow(21, 5, "a.pdf", "uuid/a.pdf", "application/pdf", 10, now, now))

	th, atts, err := NewThreadRepo(db).AttachToReport(context.Background(), 9,
		[]model.NewAttachment{{StorageKey: "uuid/a.pdf", FileName: "a.pdf", FileType: "application/pdf", FileSize: 10}})
	require.NoError(t, err)
	assert.Equal(t, "trip-report-9", th.Name)
	require.NotNil(t, th.TripReportID)
	assert.Equal(t, uint64(9), *th.TripReportID)
	require.Len(t, atts, 1)
	assert.Equal(t, "uuid/a.pdf", atts[0].FilePath)
}

func TestThreadRepoEnsureForReportReusesThread(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT company_cd, equipment_id FROM trip_reports WHERE id=? FOR UPDATE")).
		WithArgs(uint64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"company_cd", "equipment_id"}).AddRow("C01", 2))
	mock.ExpectQuery(q("SELECT id FROM threads WHERE trip_report_id=?")).
		WithArgs(uint64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectCommit()
	mock.ExpectQuery(q("FROM threads WHERE id=?")).
		WithArgs(uint64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "company_cd", "equipment_id", "trip_report_id", "thread_name", "created_at", "updated_at"}).
			AddRow(5, "C01", 2, 9, "trip-report-9", now, now))

	th, err := NewThreadRepo(db).EnsureForReport(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), th.ID)
}

func TestThreadRepoCreateForMissingReport(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("FROM trip_reports WHERE id=? FOR UPDATE")).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := NewThreadRepo(db).CreateForReport(context.Background(), 404, "notes")
	assert.ErrorIs(t, err, ErrReportNotFound)
}

func TestCommentRepoDeleteWithRepliesConflicts(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(q("DELETE FROM comments WHERE id=?")).
		WillReturnError(&mysql.MySQLError{Number: 1451, Message: "Cannot delete or update a parent row"})

	err := NewCommentRepo(db).Delete(context.Background(), 1)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestEquipmentRepoSearchEscapesWildcards(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(q("WHERE name LIKE ?")).
		WithArgs(`%50\%%`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "company_cd", "name", "total_counter", "created_at", "updated_at"}))

	out, err := NewEquipmentRepo(db).Search(context.Background(), "50%")
	require.NoError(t, err)
	assert.Empty(t, out)
}
