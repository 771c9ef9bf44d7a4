package service

import (
	"context"
	"sort"
	"time"

	"github.com/iliyamo/trip-report-tracker/internal/external"
	"github.com/iliyamo/trip-report-tracker/internal/model"
	"github.com/iliyamo/trip-report-tracker/internal/queue"
	"github.com/iliyamo/trip-report-tracker/internal/repository"
)

// memDB is an in-memory stand-in for the MySQL schema, shared by the
// store fakes below.  Tests run sequentially, so it carries no lock.
type memDB struct {
	seq       uint64
	users     map[uint64]model.User
	roles     []model.Role
	reports   map[uint64]model.TripReport
	reads     map[[2]uint64]time.Time
	threads   map[uint64]model.Thread
	comments  map[uint64]model.Comment
	atts      map[uint64]model.Attachment
	published []queue.ReportDecidedEvent
	removed   []string
}

func newMemDB() *memDB {
	return &memDB{
		users:    map[uint64]model.User{},
		roles:    []model.Role{{ID: 1, Name: model.RoleAdmin}, {ID: 2, Name: model.RoleUser}, {ID: 3, Name: model.RoleApprover}},
		reports:  map[uint64]model.TripReport{},
		reads:    map[[2]uint64]time.Time{},
		threads:  map[uint64]model.Thread{},
		comments: map[uint64]model.Comment{},
		atts:     map[uint64]model.Attachment{},
	}
}

func (m *memDB) next() uint64 { m.seq++; return m.seq }

type memUsers struct{ *memDB }

func (m memUsers) Create(_ context.Context, in repository.NewUser, roleIDs []uint64) (uint64, error) {
	for _, u := range m.users {
		if u.Email == in.Email {
			return 0, repository.ErrEmailExists
		}
	}
	u := model.User{ID: m.next(), Name: in.Name, Email: in.Email, PasswordHash: in.PasswordHash, Roles: []string{}}
	for _, id := range roleIDs {
		for _, r := range m.roles {
			if r.ID == id {
				u.Roles = append(u.Roles, r.Name)
			}
		}
	}
	m.users[u.ID] = u
	return u.ID, nil
}

func (m memUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repository.ErrUserNotFound
}

func (m memUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return model.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (m memUsers) List(_ context.Context) ([]model.User, error) {
	out := make([]model.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m memUsers) EmailTaken(_ context.Context, email string, excludeID uint64) (bool, error) {
	for _, u := range m.users {
		if u.Email == email && u.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m memUsers) UpdateProfile(_ context.Context, id uint64, name, email string) error {
	u, ok := m.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Name, u.Email = name, email
	m.users[id] = u
	return nil
}

func (m memUsers) UpdatePassword(_ context.Context, id uint64, hash string) error {
	u, ok := m.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordHash = hash
	m.users[id] = u
	return nil
}

func (m memUsers) SetStaffSerialNo(_ context.Context, id uint64, serialNo *string) error {
	u, ok := m.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.StaffSerialNo = serialNo
	m.users[id] = u
	return nil
}

func (m memUsers) Delete(_ context.Context, id uint64) error {
	if _, ok := m.users[id]; !ok {
		return repository.ErrUserNotFound
	}
	for _, r := range m.reports {
		if r.ApprovedBy != nil && *r.ApprovedBy == id {
			return repository.ErrConflict
		}
	}
	delete(m.users, id)
	return nil
}

type memRoles struct{ *memDB }

func (m memRoles) GetByName(_ context.Context, name string) (model.Role, error) {
	for _, r := range m.roles {
		if r.Name == name {
			return r, nil
		}
	}
	return model.Role{}, repository.ErrRoleNotFound
}

func (m memRoles) List(_ context.Context) ([]model.Role, error) { return m.roles, nil }

func (m memRoles) ReplaceForUser(ctx context.Context, userID uint64, names []string) error {
	u, ok := m.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	for _, n := range names {
		if _, err := m.GetByName(ctx, n); err != nil {
			return err
		}
	}
	u.Roles = append([]string{}, names...)
	m.users[userID] = u
	return nil
}

type memSessions struct{ revoked map[string]time.Time }

func (m *memSessions) Revoke(_ context.Context, jti string, exp time.Time) error {
	m.revoked[jti] = exp
	return nil
}

type memReports struct{ *memDB }

func (m memReports) Create(_ context.Context, in repository.ReportInput) (model.TripReport, error) {
	r := model.TripReport{
		ID: m.next(), CompanyCd: in.CompanyCd, CustomerCd: in.CustomerCd, StaffCd: in.StaffCd,
		EquipmentID: in.EquipmentID, TripStartDate: in.TripStartDate, TripEndDate: in.TripEndDate,
		Title: in.Title, Submitter: in.Submitter, Companions: in.Companions, Content: in.Content,
		ApprovalStatus: model.StatusPending, Version: 1,
	}
	m.reports[r.ID] = r
	return r, nil
}

func (m memReports) GetByID(_ context.Context, id uint64) (model.TripReport, error) {
	r, ok := m.reports[id]
	if !ok {
		return model.TripReport{}, repository.ErrReportNotFound
	}
	return r, nil
}

func (m memReports) Update(_ context.Context, id uint64, in repository.ReportInput, expected *int64) (model.TripReport, error) {
	r, ok := m.reports[id]
	switch {
	case !ok:
		return model.TripReport{}, repository.ErrReportNotFound
	case r.ApprovalStatus != model.StatusPending:
		return model.TripReport{}, repository.ErrNotPending
	case expected != nil && *expected != r.Version:
		return model.TripReport{}, repository.ErrVersionConflict
	}
	r.Title, r.Content, r.Submitter = in.Title, in.Content, in.Submitter
	r.TripStartDate, r.TripEndDate = in.TripStartDate, in.TripEndDate
	r.Version++
	m.reports[id] = r
	return r, nil
}

func (m memReports) Decide(_ context.Context, id uint64, status string, approverID uint64, at time.Time, expected *int64) (repository.Decision, error) {
	r, ok := m.reports[id]
	if !ok {
		return repository.Decision{}, repository.ErrReportNotFound
	}
	if expected != nil && *expected != r.Version {
		return repository.Decision{}, repository.ErrVersionConflict
	}
	d := repository.Decision{PreviousStatus: r.ApprovalStatus, PreviousApprover: r.ApprovedBy}
	a, t := approverID, at
	r.ApprovalStatus, r.ApprovedBy, r.ApprovedAt = status, &a, &t
	r.Version++
	d.Version = r.Version
	m.reports[id] = r
	return d, nil
}

func (m memReports) Delete(_ context.Context, id uint64) ([]string, error) {
	if _, ok := m.reports[id]; !ok {
		return nil, repository.ErrReportNotFound
	}
	var keys []string
	for tid, th := range m.threads {
		if th.TripReportID != nil && *th.TripReportID == id {
			k, _ := memThreads{m.memDB}.Delete(context.Background(), tid)
			keys = append(keys, k...)
		}
	}
	for k := range m.reads {
		if k[1] == id {
			delete(m.reads, k)
		}
	}
	delete(m.reports, id)
	return keys, nil
}

func (m memReports) filter(keep func(model.TripReport) bool) []model.TripReport {
	out := []model.TripReport{}
	for _, r := range m.reports {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (m memReports) ListAll(context.Context) ([]model.TripReport, error) {
	return m.filter(func(model.TripReport) bool { return true }), nil
}

func (m memReports) ListPending(context.Context) ([]model.TripReport, error) {
	return m.filter(func(r model.TripReport) bool { return r.ApprovalStatus == model.StatusPending }), nil
}

func (m memReports) ListUnreadFor(_ context.Context, userID uint64) ([]model.TripReport, error) {
	return m.filter(func(r model.TripReport) bool {
		_, read := m.reads[[2]uint64{userID, r.ID}]
		return !read
	}), nil
}

func (m memReports) ListBySubmitter(_ context.Context, submitter string) ([]model.TripReport, error) {
	return m.filter(func(r model.TripReport) bool { return r.Submitter == submitter }), nil
}

func (m memReports) ListByCustomer(_ context.Context, customerCd string) ([]model.TripReport, error) {
	return m.filter(func(r model.TripReport) bool { return r.CustomerCd == customerCd }), nil
}

type memReads struct{ *memDB }

func (m memReads) MarkRead(_ context.Context, userID, reportID uint64, at time.Time) error {
	if _, ok := m.reports[reportID]; !ok {
		return repository.ErrReportNotFound
	}
	m.reads[[2]uint64{userID, reportID}] = at
	return nil
}

func (m memReads) Get(_ context.Context, userID, reportID uint64) (model.ReadStatus, error) {
	rs := model.ReadStatus{UserID: userID, TripReportID: reportID}
	if at, ok := m.reads[[2]uint64{userID, reportID}]; ok {
		rs.IsRead, rs.ReadAt = true, &at
	}
	return rs, nil
}

func (m memReads) split(reportID uint64) (read, unread []model.UserSummary) {
	read, unread = []model.UserSummary{}, []model.UserSummary{}
	users, _ := memUsers{m.memDB}.List(context.Background())
	for _, u := range users {
		s := model.UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
		if _, ok := m.reads[[2]uint64{u.ID, reportID}]; ok {
			read = append(read, s)
		} else {
			unread = append(unread, s)
		}
	}
	return read, unread
}

func (m memReads) ReadUsers(_ context.Context, reportID uint64) ([]model.UserSummary, error) {
	r, _ := m.split(reportID)
	return r, nil
}

func (m memReads) UnreadUsers(_ context.Context, reportID uint64) ([]model.UserSummary, error) {
	_, u := m.split(reportID)
	return u, nil
}

type memThreads struct{ *memDB }

func (m memThreads) insertAtts(threadID uint64, files []model.NewAttachment) []model.Attachment {
	out := make([]model.Attachment, 0, len(files))
	for _, f := range files {
		a := model.Attachment{ID: m.next(), ThreadID: threadID, FileName: f.FileName, FilePath: f.StorageKey, FileType: f.FileType, FileSize: f.FileSize}
		m.atts[a.ID] = a
		out = append(out, a)
	}
	return out
}

func (m memThreads) AttachToReport(ctx context.Context, reportID uint64, files []model.NewAttachment) (model.Thread, []model.Attachment, error) {
	if _, ok := m.reports[reportID]; !ok {
		return model.Thread{}, nil, repository.ErrReportNotFound
	}
	for _, th := range m.threads {
		if th.TripReportID != nil && *th.TripReportID == reportID {
			return th, m.insertAtts(th.ID, files), nil
		}
	}
	th, err := m.CreateForReport(ctx, reportID, repository.ReportThreadName(reportID))
	if err != nil {
		return model.Thread{}, nil, err
	}
	return th, m.insertAtts(th.ID, files), nil
}

func (m memThreads) EnsureForReport(ctx context.Context, reportID uint64) (model.Thread, error) {
	th, _, err := m.AttachToReport(ctx, reportID, nil)
	return th, err
}

func (m memThreads) CreateForReport(_ context.Context, reportID uint64, name string) (model.Thread, error) {
	r, ok := m.reports[reportID]
	if !ok {
		return model.Thread{}, repository.ErrReportNotFound
	}
	rid := reportID
	th := model.Thread{ID: m.next(), CompanyCd: r.CompanyCd, TripReportID: &rid, Name: name}
	m.threads[th.ID] = th
	return th, nil
}

func (m memThreads) CreateForCompany(_ context.Context, companyCd, name string, equipmentID *uint64) (model.Thread, error) {
	th := model.Thread{ID: m.next(), CompanyCd: companyCd, EquipmentID: equipmentID, Name: name}
	m.threads[th.ID] = th
	return th, nil
}

func (m memThreads) GetByID(_ context.Context, id uint64) (model.Thread, error) {
	th, ok := m.threads[id]
	if !ok {
		return model.Thread{}, repository.ErrThreadNotFound
	}
	return th, nil
}

func (m memThreads) ListByReport(_ context.Context, reportID uint64) ([]model.Thread, error) {
	out := []model.Thread{}
	for _, th := range m.threads {
		if th.TripReportID != nil && *th.TripReportID == reportID {
			out = append(out, th)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memThreads) ListByCompany(_ context.Context, companyCd string) ([]model.Thread, error) {
	out := []model.Thread{}
	for _, th := range m.threads {
		if th.CompanyCd == companyCd {
			out = append(out, th)
		}
	}
	return out, nil
}

func (m memThreads) AddAttachments(_ context.Context, threadID uint64, files []model.NewAttachment) ([]model.Attachment, error) {
	if _, ok := m.threads[threadID]; !ok {
		return nil, repository.ErrThreadNotFound
	}
	return m.insertAtts(threadID, files), nil
}

func (m memThreads) Delete(_ context.Context, id uint64) ([]string, error) {
	if _, ok := m.threads[id]; !ok {
		return nil, repository.ErrThreadNotFound
	}
	var keys []string
	for aid, a := range m.atts {
		if a.ThreadID == id {
			keys = append(keys, a.FilePath)
			delete(m.atts, aid)
		}
	}
	for cid, c := range m.comments {
		if c.ThreadID == id {
			delete(m.comments, cid)
		}
	}
	delete(m.threads, id)
	return keys, nil
}

type memComments struct{ *memDB }

func (m memComments) Create(_ context.Context, threadID, userID uint64, parentID *uint64, content string) (model.Comment, error) {
	c := model.Comment{ID: m.next(), ThreadID: threadID, UserID: userID, ParentCommentID: parentID, Content: content}
	m.comments[c.ID] = c
	return c, nil
}

func (m memComments) GetByID(_ context.Context, id uint64) (model.Comment, error) {
	c, ok := m.comments[id]
	if !ok {
		return model.Comment{}, repository.ErrCommentNotFound
	}
	return c, nil
}

func (m memComments) ListByThread(_ context.Context, threadID uint64) ([]*model.Comment, error) {
	out := []*model.Comment{}
	for _, c := range m.comments {
		if c.ThreadID == threadID {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memComments) Delete(_ context.Context, id uint64) error {
	if _, ok := m.comments[id]; !ok {
		return repository.ErrCommentNotFound
	}
	for _, c := range m.comments {
		if c.ParentCommentID != nil && *c.ParentCommentID == id {
			return repository.ErrConflict
		}
	}
	delete(m.comments, id)
	return nil
}

type memAttachments struct{ *memDB }

func (m memAttachments) GetByID(_ context.Context, id uint64) (model.Attachment, error) {
	a, ok := m.atts[id]
	if !ok {
		return model.Attachment{}, repository.ErrAttachmentNotFound
	}
	return a, nil
}

func (m memAttachments) ListByThread(_ context.Context, threadID uint64) ([]model.Attachment, error) {
	out := []model.Attachment{}
	for _, a := range m.atts {
		if a.ThreadID == threadID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memAttachments) Delete(_ context.Context, id uint64) error {
	if _, ok := m.atts[id]; !ok {
		return repository.ErrAttachmentNotFound
	}
	delete(m.atts, id)
	return nil
}

type memBlobs struct{ *memDB }

func (m memBlobs) Delete(_ context.Context, key string) error {
	m.removed = append(m.removed, key)
	return nil
}

type memEvents struct{ *memDB }

func (m memEvents) PublishDecision(_ context.Context, ev queue.ReportDecidedEvent) error {
	m.memDB.published = append(m.memDB.published, ev)
	return nil
}

type memStaff map[string]model.Staff

func (m memStaff) StaffBySerial(_ context.Context, serialNo string) (model.Staff, error) {
	for _, s := range m {
		if s.SerialNo == serialNo {
			return s, nil
		}
	}
	return model.Staff{}, external.ErrNotFound
}

func (m memStaff) StaffByCode(_ context.Context, staffCd string) (model.Staff, error) {
	s, ok := m[staffCd]
	if !ok {
		return model.Staff{}, external.ErrNotFound
	}
	return s, nil
}

func strPtr(s string) *string { return &s }
