package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/trip-report-tracker/internal/model"
)

// CommentRepo persists comments.  Replies reference their parent through
// parent_comment_id; a parent cannot be deleted while replies exist.
type CommentRepo struct{ db *sql.DB }

func NewCommentRepo(db *sql.DB) *CommentRepo { return &CommentRepo{db: db} }

const commentSelect = `SELECT c.id, c.thread_id, c.parent_comment_id, c.user_id, c.content, c.created_at, c.updated_at,
       u.user_name, u.email
  FROM comments c
  JOIN users u ON u.id = c.user_id`

// Create inserts the comment and bumps the thread's updated_at so threads
// sort by discussion recency.
func (r *CommentRepo) Create(ctx context.Context, threadID, userID uint64, parentID *uint64, content string) (model.Comment, error) {
	var id uint64
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO comments (thread_id, parent_comment_id, user_id, content) VALUES (?,?,?,?)",
			threadID, nullUint64(parentID), userID, content)
		if err != nil {
			if isMissingParent(err) {
				return ErrInvalidReference
			}
			return err
		}
		lid, err := res.LastInsertId()
		if err != nil {
			return err
		}
		id = uint64(lid)
		return touchThread(ctx, tx, threadID)
	})
	if err != nil {
		return model.Comment{}, err
	}
	return r.GetByID(ctx, id)
}

// GetByID returns the comment with its author.
func (r *CommentRepo) GetByID(ctx context.Context, id uint64) (model.Comment, error) {
	c, err := scanComment(r.db.QueryRowContext(ctx, commentSelect+" WHERE c.id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Comment{}, ErrCommentNotFound
	}
	return c, err
}

// ListByThread returns the thread's comments flat, oldest first.
func (r *CommentRepo) ListByThread(ctx context.Context, threadID uint64) ([]*model.Comment, error) {
	rows, err := r.db.QueryContext(ctx, commentSelect+" WHERE c.thread_id=? ORDER BY c.created_at, c.id", threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*model.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// Delete fails with ErrConflict while the comment has replies.
func (r *CommentRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM comments WHERE id=?", id)
	if err != nil {
		if isRowReferenced(err) {
			return ErrConflict
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrCommentNotFound
	}
	return nil
}

func scanComment(row rowScanner) (model.Comment, error) {
	var (
		c      model.Comment
		parent sql.NullInt64
		author model.UserSummary
	)
	if err := row.Scan(&c.ID, &c.ThreadID, &parent, &c.UserID, &c.Content, &c.CreatedAt, &c.UpdatedAt,
		&author.Name, &author.Email); err != nil {
		return model.Comment{}, err
	}
	c.ParentCommentID = uint64Ptr(parent)
	author.ID = c.UserID
	c.Author = &author
	return c, nil
}
