package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/trip-report-tracker/internal/model"
	"github.com/iliyamo/trip-report-tracker/internal/queue"
	"github.com/iliyamo/trip-report-tracker/internal/repository"
)

// ReportStore persists trip reports.
type ReportStore interface {
	Create(ctx context.Context, in repository.ReportInput) (model.TripReport, error)
	GetByID(ctx context.Context, id uint64) (model.TripReport, error)
	Update(ctx context.Context, id uint64, in repository.ReportInput, expectedVersion *int64) (model.TripReport, error)
	Decide(ctx context.Context, id uint64, status string, approverID uint64, at time.Time, expectedVersion *int64) (repository.Decision, error)
	Delete(ctx context.Context, id uint64) ([]string, error)
	ListAll(ctx context.Context) ([]model.TripReport, error)
	ListPending(ctx context.Context) ([]model.TripReport, error)
	ListUnreadFor(ctx context.Context, userID uint64) ([]model.TripReport, error)
	ListBySubmitter(ctx context.Context, submitter string) ([]model.TripReport, error)
	ListByCustomer(ctx context.Context, customerCd string) ([]model.TripReport, error)
}

// ReadStatusStore tracks per-user read acknowledgements.
type ReadStatusStore interface {
	MarkRead(ctx context.Context, userID, reportID uint64, at time.Time) error
	Get(ctx context.Context, userID, reportID uint64) (model.ReadStatus, error)
	ReadUsers(ctx context.Context, reportID uint64) ([]model.UserSummary, error)
	UnreadUsers(ctx context.Context, reportID uint64) ([]model.UserSummary, error)
}

// ThreadStore persists threads and links attachments to them.
type ThreadStore interface {
	AttachToReport(ctx context.Context, reportID uint64, files []model.NewAttachment) (model.Thread, []model.Attachment, error)
	EnsureForReport(ctx context.Context, reportID uint64) (model.Thread, error)
	CreateForReport(ctx context.Context, reportID uint64, name string) (model.Thread, error)
	CreateForCompany(ctx context.Context, companyCd, name string, equipmentID *uint64) (model.Thread, error)
	GetByID(ctx context.Context, id uint64) (model.Thread, error)
	ListByReport(ctx context.Context, reportID uint64) ([]model.Thread, error)
	ListByCompany(ctx context.Context, companyCd string) ([]model.Thread, error)
	AddAttachments(ctx context.Context, threadID uint64, files []model.NewAttachment) ([]model.Attachment, error)
	Delete(ctx context.Context, id uint64) ([]string, error)
}

// CommentStore persists comments.
type CommentStore interface {
	Create(ctx context.Context, threadID, userID uint64, parentID *uint64, content string) (model.Comment, error)
	GetByID(ctx context.Context, id uint64) (model.Comment, error)
	ListByThread(ctx context.Context, threadID uint64) ([]*model.Comment, error)
	Delete(ctx context.Context, id uint64) error
}

// AttachmentStore reads and deletes attachment metadata.
type AttachmentStore interface {
	GetByID(ctx context.Context, id uint64) (model.Attachment, error)
	ListByThread(ctx context.Context, threadID uint64) ([]model.Attachment, error)
	Delete(ctx context.Context, id uint64) error
}

// BlobRemover deletes stored attachment bytes.
type BlobRemover interface {
	Delete(ctx context.Context, key string) error
}

// DecisionPublisher emits decision audit events.
type DecisionPublisher interface {
	PublishDecision(ctx context.Context, ev queue.ReportDecidedEvent) error
}

// ReportInput is a create or update request.  ApprovalStatus is accepted
// for compatibility and ignored: new reports always start pending.
type ReportInput struct {
	CompanyCd      string
	CustomerCd     string
	StaffCd        string
	EquipmentID    uint64
	TripStartDate  time.Time
	TripEndDate    time.Time
	Title          string
	Submitter      string
	Companions     *string
	Content        string
	ApprovalStatus string
}

// ReportService owns the report lifecycle: creation, edits while pending,
// approve/reject decisions, read tracking and the report's discussion.
type ReportService struct {
	reports     ReportStore
	reads       ReadStatusStore
	threads     ThreadStore
	comments    CommentStore
	attachments AttachmentStore
	blobs       BlobRemover
	events      DecisionPublisher
	now         func() time.Time
	log         zerolog.Logger
}

// ReportDeps groups ReportService collaborators.  Blobs and Events may be nil.
type ReportDeps struct {
	Reports     ReportStore
	Reads       ReadStatusStore
	Threads     ThreadStore
	Comments    CommentStore
	Attachments AttachmentStore
	Blobs       BlobRemover
	Events      DecisionPublisher
	Now         func() time.Time
}

func NewReportService(d ReportDeps, log zerolog.Logger) *ReportService {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &ReportService{
		reports:     d.Reports,
		reads:       d.Reads,
		threads:     d.Threads,
		comments:    d.Comments,
		attachments: d.Attachments,
		blobs:       d.Blobs,
		events:      d.Events,
		now:         now,
		log:         log.With().Str("component", "reports").Logger(),
	}
}

// Create validates and inserts a report in the pending state.
func (s *ReportService) Create(ctx context.Context, in ReportInput) (model.TripReport, error) {
	ri, err := validateReport(in)
	if err != nil {
		return model.TripReport{}, err
	}
	rep, err := s.reports.Create(ctx, ri)
	if err != nil {
		return model.TripReport{}, err
	}
	s.log.Info().Uint64("report_id", rep.ID).Str("submitter", rep.Submitter).Msg("report created")
	return rep, nil
}

// Update rewrites a pending report.  expectedVersion, when set, turns the
// write into a compare-and-swap.
func (s *ReportService) Update(ctx context.Context, id uint64, in ReportInput, expectedVersion *int64) (model.TripReport, error) {
	ri, err := validateReport(in)
	if err != nil {
		return model.TripReport{}, err
	}
	return s.reports.Update(ctx, id, ri, expectedVersion)
}

// Delete removes the report and everything hanging off it, then removes
// the attachment blobs best-effort.
func (s *ReportService) Delete(ctx context.Context, id uint64) error {
	keys, err := s.reports.Delete(ctx, id)
	if err != nil {
		return err
	}
	removeBlobs(ctx, s.blobs, keys, s.log)
	s.log.Info().Uint64("report_id", id).Int("attachments", len(keys)).Msg("report deleted")
	return nil
}

// Approve records an approval by approverID.
func (s *ReportService) Approve(ctx context.Context, id, approverID uint64, expectedVersion *int64) (model.TripReport, error) {
	return s.decide(ctx, id, model.StatusApproved, approverID, expectedVersion)
}

// Reject records a rejection by approverID.
func (s *ReportService) Reject(ctx context.Context, id, approverID uint64, expectedVersion *int64) (model.TripReport, error) {
	return s.decide(ctx, id, model.StatusRejected, approverID, expectedVersion)
}

// Decide dispatches on a status string from the API.
func (s *ReportService) Decide(ctx context.Context, id, approverID uint64, status string, expectedVersion *int64) (model.TripReport, error) {
	switch status {
	case model.StatusApproved, model.StatusRejected:
		return s.decide(ctx, id, status, approverID, expectedVersion)
	}
	return model.TripReport{}, ErrInvalidStatus
}

func (s *ReportService) decide(ctx context.Context, id uint64, status string, approverID uint64, expectedVersion *int64) (model.TripReport, error) {
	at := s.now().UTC()
	prev, err := s.reports.Decide(ctx, id, status, approverID, at, expectedVersion)
	if err != nil {
		return model.TripReport{}, err
	}
	rep, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return model.TripReport{}, err
	}

	ev := queue.NewReportDecidedEvent(id, rep.Title, status, approverID, prev.PreviousStatus, prev.PreviousApprover, prev.Version, at)
	logEv := s.log.Info()
	if ev.Overwrote() {
		logEv = s.log.Warn()
	}
	logEv.Uint64("report_id", id).Str("status", status).Uint64("approver_id", approverID).
		Str("previous_status", prev.PreviousStatus).Msg("report decided")
	if s.events != nil {
		if err := s.events.PublishDecision(ctx, ev); err != nil {
			s.log.Warn().Err(err).Uint64("report_id", id).Msg("decision event not published")
		}
	}
	return rep, nil
}

// MarkRead records that userID has read the report.  Repeating the call
// only moves read_at forward.
func (s *ReportService) MarkRead(ctx context.Context, userID, reportID uint64) error {
	return s.reads.MarkRead(ctx, userID, reportID, s.now().UTC())
}

// ReadStatus returns the user's read state for a report.
func (s *ReportService) ReadStatus(ctx context.Context, userID, reportID uint64) (model.ReadStatus, error) {
	return s.reads.Get(ctx, userID, reportID)
}

func (s *ReportService) ListAll(ctx context.Context) ([]model.TripReport, error) {
	return s.reports.ListAll(ctx)
}

func (s *ReportService) ListPending(ctx context.Context) ([]model.TripReport, error) {
	return s.reports.ListPending(ctx)
}

func (s *ReportService) ListUnread(ctx context.Context, userID uint64) ([]model.TripReport, error) {
	return s.reports.ListUnreadFor(ctx, userID)
}

func (s *ReportService) ListBySubmitter(ctx context.Context, submitter string) ([]model.TripReport, error) {
	return s.reports.ListBySubmitter(ctx, strings.TrimSpace(submitter))
}

func (s *ReportService) ListByCustomer(ctx context.Context, customerCd string) ([]model.TripReport, error) {
	return s.reports.ListByCustomer(ctx, strings.TrimSpace(customerCd))
}

// Get loads the report with equipment, approver, threads, their
// attachments and comment trees.
func (s *ReportService) Get(ctx context.Context, id uint64) (model.TripReport, error) {
	rep, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return model.TripReport{}, err
	}
	threads, err := s.threads.ListByReport(ctx, id)
	if err != nil {
		return model.TripReport{}, err
	}
	for i := range threads {
		if err := loadThreadChildren(ctx, s.attachments, s.comments, &threads[i]); err != nil {
			return model.TripReport{}, err
		}
	}
	rep.Threads = threads
	return rep, nil
}

// AttachFiles links already uploaded objects to the report's thread,
// creating the thread on first use.  Empty input is a no-op and never
// creates a thread.
func (s *ReportService) AttachFiles(ctx context.Context, reportID uint64, files []model.NewAttachment) (*model.Thread, []model.Attachment, error) {
	if len(files) == 0 {
		return nil, nil, nil
	}
	if err := validateAttachments(files); err != nil {
		return nil, nil, err
	}
	th, atts, err := s.threads.AttachToReport(ctx, reportID, files)
	if err != nil {
		return nil, nil, err
	}
	return &th, atts, nil
}

// AddComment posts to the report's discussion.  A top-level comment goes
// to the report's first thread, created on demand; a reply goes to its
// parent's thread, which must belong to the same report.
func (s *ReportService) AddComment(ctx context.Context, reportID, userID uint64, content string, parentID *uint64) (model.Thread, model.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return model.Thread{}, model.Comment{}, invalid("content", "is required")
	}
	var (
		th  model.Thread
		err error
	)
	if parentID != nil {
		parent, err := s.comments.GetByID(ctx, *parentID)
		if errors.Is(err, repository.ErrCommentNotFound) {
			return model.Thread{}, model.Comment{}, invalid("parent_comment_id", "does not exist")
		}
		if err != nil {
			return model.Thread{}, model.Comment{}, err
		}
		if th, err = s.threads.GetByID(ctx, parent.ThreadID); err != nil {
			return model.Thread{}, model.Comment{}, err
		}
		if th.TripReportID == nil || *th.TripReportID != reportID {
			return model.Thread{}, model.Comment{}, ErrParentThreadMismatch
		}
	} else if th, err = s.threads.EnsureForReport(ctx, reportID); err != nil {
		return model.Thread{}, model.Comment{}, err
	}
	c, err := s.comments.Create(ctx, th.ID, userID, parentID, content)
	if err != nil {
		return model.Thread{}, model.Comment{}, err
	}
	return th, c, nil
}

// ReadUsers lists users who marked the report read.
func (s *ReportService) ReadUsers(ctx context.Context, reportID uint64) ([]model.UserSummary, error) {
	if _, err := s.reports.GetByID(ctx, reportID); err != nil {
		return nil, err
	}
	return s.reads.ReadUsers(ctx, reportID)
}

// UnreadUsers lists every other user.
func (s *ReportService) UnreadUsers(ctx context.Context, reportID uint64) ([]model.UserSummary, error) {
	if _, err := s.reports.GetByID(ctx, reportID); err != nil {
		return nil, err
	}
	return s.reads.UnreadUsers(ctx, reportID)
}

func validateReport(in ReportInput) (repository.ReportInput, error) {
	out := repository.ReportInput{
		CompanyCd:     strings.TrimSpace(in.CompanyCd),
		CustomerCd:    strings.TrimSpace(in.CustomerCd),
		StaffCd:       strings.TrimSpace(in.StaffCd),
		EquipmentID:   in.EquipmentID,
		TripStartDate: in.TripStartDate,
		TripEndDate:   in.TripEndDate,
		Title:         strings.TrimSpace(in.Title),
		Submitter:     strings.TrimSpace(in.Submitter),
		Content:       strings.TrimSpace(in.Content),
	}
	if in.Companions != nil {
		if c := strings.TrimSpace(*in.Companions); c != "" {
			out.Companions = &c
		}
	}
	switch {
	case out.Title == "":
		return out, invalid("title", "is required")
	case out.Submitter == "":
		return out, invalid("submitter", "is required")
	case out.TripStartDate.IsZero():
		return out, invalid("trip_start_date", "is required")
	case out.TripEndDate.IsZero():
		return out, invalid("trip_end_date", "is required")
	case out.EquipmentID == 0:
		return out, invalid("equipment_id", "is required")
	case out.Content == "":
		return out, invalid("content", "is required")
	}
	if out.TripEndDate.Before(out.TripStartDate) {
		return out, ErrInvalidDateRange
	}
	return out, nil
}

func validateAttachments(files []model.NewAttachment) error {
	for _, f := range files {
		if strings.TrimSpace(f.StorageKey) == "" {
			return invalid("storage_key", "is required")
		}
		if strings.TrimSpace(f.FileName) == "" {
			return invalid("file_name", "is required")
		}
		if f.FileSize < 0 {
			return invalid("file_size", "must not be negative")
		}
	}
	return nil
}

func loadThreadChildren(ctx context.Context, atts AttachmentStore, comments CommentStore, th *model.Thread) error {
	a, err := atts.ListByThread(ctx, th.ID)
	if err != nil {
		return err
	}
	flat, err := comments.ListByThread(ctx, th.ID)
	if err != nil {
		return err
	}
	th.Attachments = a
	th.Comments = BuildCommentTree(flat)
	return nil
}

func removeBlobs(ctx context.Context, blobs BlobRemover, keys []string, log zerolog.Logger) {
	if blobs == nil {
		return
	}
	for _, k := range keys {
		if err := blobs.Delete(ctx, k); err != nil {
			log.Warn().Err(err).Str("key", k).Msg("attachment blob not removed")
		}
	}
}
