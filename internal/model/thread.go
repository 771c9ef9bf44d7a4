package model

import "time"

// Thread is a discussion container.  It may belong to a trip report, to
// an equipment, or stand alone against a company code.
type Thread struct {
	ID           uint64       `json:"id"`
	CompanyCd    string       `json:"company_cd"`
	EquipmentID  *uint64      `json:"equipment_id"`
	TripReportID *uint64      `json:"trip_report_id"`
	Name         string       `json:"name"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	Attachments  []Attachment `json:"attachments,omitempty"`
	Comments     []*Comment   `json:"comments,omitempty"`
}

// Comment belongs to one thread and one author.  ParentCommentID, when
// set, points at a comment of the same thread.  Replies is populated
// only when a tree is assembled for display.
type Comment struct {
	ID              uint64       `json:"id"`
	ThreadID        uint64       `json:"thread_id"`
	ParentCommentID *uint64      `json:"parent_comment_id"`
	UserID          uint64       `json:"user_id"`
	Content         string       `json:"content"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	Author          *UserSummary `json:"author,omitempty"`
	Replies         []*Comment   `json:"replies,omitempty"`
}

// Attachment is file metadata; the bytes live in the object store under
// FilePath.
type Attachment struct {
	ID        uint64    `json:"id"`
	ThreadID  uint64    `json:"thread_id"`
	FileName  string    `json:"file_name"`
	FilePath  string    `json:"file_path"`
	FileType  string    `json:"file_type"`
	FileSize  int64     `json:"file_size"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewAttachment describes an already uploaded object to be linked to a
// thread.
type NewAttachment struct {
	StorageKey string
	FileName   string
	FileType   string
	FileSize   int64
}
