package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/iliyamo/trip-report-tracker/internal/model"
	"github.com/iliyamo/trip-report-tracker/internal/repository"
)

// ThreadService manages discussion threads outside the report attachment
// flow: explicit creation, comments, attachments and deletion.
type ThreadService struct {
	threads     ThreadStore
	comments    CommentStore
	attachments AttachmentStore
	blobs       BlobRemover
	log         zerolog.Logger
}

func NewThreadService(threads ThreadStore, comments CommentStore, attachments AttachmentStore, blobs BlobRemover, log zerolog.Logger) *ThreadService {
	return &ThreadService{
		threads:     threads,
		comments:    comments,
		attachments: attachments,
		blobs:       blobs,
		log:         log.With().Str("component", "threads").Logger(),
	}
}

// CreateForReport creates a named thread on an existing report.  An empty
// name falls back to the report's default thread name.
func (s *ThreadService) CreateForReport(ctx context.Context, reportID uint64, name string) (model.Thread, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = repository.ReportThreadName(reportID)
	}
	return s.threads.CreateForReport(ctx, reportID, name)
}

// CreateForCompany creates a stand-alone thread for a company code.
func (s *ThreadService) CreateForCompany(ctx context.Context, companyCd, name string, equipmentID *uint64) (model.Thread, error) {
	companyCd = strings.TrimSpace(companyCd)
	name = strings.TrimSpace(name)
	if companyCd == "" {
		return model.Thread{}, invalid("company_cd", "is required")
	}
	if name == "" {
		return model.Thread{}, invalid("name", "is required")
	}
	th, err := s.threads.CreateForCompany(ctx, companyCd, name, equipmentID)
	if errors.Is(err, repository.ErrInvalidReference) {
		return model.Thread{}, repository.ErrEquipmentNotFound
	}
	return th, err
}

// Get returns the thread with attachments and its comment tree.
func (s *ThreadService) Get(ctx context.Context, id uint64) (model.Thread, error) {
	th, err := s.threads.GetByID(ctx, id)
	if err != nil {
		return model.Thread{}, err
	}
	if err := loadThreadChildren(ctx, s.attachments, s.comments, &th); err != nil {
		return model.Thread{}, err
	}
	return th, nil
}

func (s *ThreadService) ListByCompany(ctx context.Context, companyCd string) ([]model.Thread, error) {
	return s.threads.ListByCompany(ctx, strings.TrimSpace(companyCd))
}

func (s *ThreadService) ListByReport(ctx context.Context, reportID uint64) ([]model.Thread, error) {
	return s.threads.ListByReport(ctx, reportID)
}

// Delete removes the thread, its comments and attachments, then the
// attachment blobs best-effort.
func (s *ThreadService) Delete(ctx context.Context, id uint64) error {
	keys, err := s.threads.Delete(ctx, id)
	if err != nil {
		return err
	}
	removeBlobs(ctx, s.blobs, keys, s.log)
	return nil
}

// AddComment appends a comment.  A parent, when given, must exist and
// belong to the same thread.
func (s *ThreadService) AddComment(ctx context.Context, threadID, userID uint64, content string, parentID *uint64) (model.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return model.Comment{}, invalid("content", "is required")
	}
	if _, err := s.threads.GetByID(ctx, threadID); err != nil {
		return model.Comment{}, err
	}
	if parentID != nil {
		parent, err := s.comments.GetByID(ctx, *parentID)
		if errors.Is(err, repository.ErrCommentNotFound) {
			return model.Comment{}, invalid("parent_comment_id", "does not exist")
		}
		if err != nil {
			return model.Comment{}, err
		}
		if parent.ThreadID != threadID {
			return model.Comment{}, ErrParentThreadMismatch
		}
	}
	return s.comments.Create(ctx, threadID, userID, parentID, content)
}

// Comments returns the thread's comments as a tree.
func (s *ThreadService) Comments(ctx context.Context, threadID uint64) ([]*model.Comment, error) {
	if _, err := s.threads.GetByID(ctx, threadID); err != nil {
		return nil, err
	}
	flat, err := s.comments.ListByThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return BuildCommentTree(flat), nil
}

// DeleteComment removes a comment without replies.
func (s *ThreadService) DeleteComment(ctx context.Context, id uint64) error {
	return s.comments.Delete(ctx, id)
}

// AddAttachments links uploaded objects to a thread.
func (s *ThreadService) AddAttachments(ctx context.Context, threadID uint64, files []model.NewAttachment) ([]model.Attachment, error) {
	if len(files) == 0 {
		return []model.Attachment{}, nil
	}
	if err := validateAttachments(files); err != nil {
		return nil, err
	}
	return s.threads.AddAttachments(ctx, threadID, files)
}

// Attachment returns one attachment's metadata.
func (s *ThreadService) Attachment(ctx context.Context, id uint64) (model.Attachment, error) {
	return s.attachments.GetByID(ctx, id)
}

// DeleteAttachment removes the row and then the blob.  A blob that cannot
// be removed is logged; the row stays deleted.
func (s *ThreadService) DeleteAttachment(ctx context.Context, id uint64) error {
	a, err := s.attachments.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.attachments.Delete(ctx, id); err != nil {
		return err
	}
	removeBlobs(ctx, s.blobs, []string{a.FilePath}, s.log)
	return nil
}

// BuildCommentTree links a flat, thread-scoped comment list into trees
// through an id-indexed map.  Input order is kept among siblings.  A
// comment whose parent is not in the list becomes a root.
func BuildCommentTree(flat []*model.Comment) []*model.Comment {
	byID := make(map[uint64]*model.Comment, len(flat))
	for _, c := range flat {
		c.Replies = nil
		byID[c.ID] = c
	}
	roots := []*model.Comment{}
	for _, c := range flat {
		if c.ParentCommentID != nil {
			if p, ok := byID[*c.ParentCommentID]; ok && p != c {
				p.Replies = append(p.Replies, c)
				continue
			}
		}
		roots = append(roots, c)
	}
	return roots
}
