package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/trip-report-tracker/internal/model"
)

// ThreadAPI is the discussion surface used by the thread, report and
// attachment handlers.
type ThreadAPI interface {
	CreateForReport(ctx context.Context, reportID uint64, name string) (model.Thread, error)
	CreateForCompany(ctx context.Context, companyCd, name string, equipmentID *uint64) (model.Thread, error)
	Get(ctx context.Context, id uint64) (model.Thread, error)
	ListByCompany(ctx context.Context, companyCd string) ([]model.Thread, error)
	ListByReport(ctx context.Context, reportID uint64) ([]model.Thread, error)
	Delete(ctx context.Context, id uint64) error
	AddComment(ctx context.Context, threadID, userID uint64, content string, parentID *uint64) (model.Comment, error)
	Comments(ctx context.Context, threadID uint64) ([]*model.Comment, error)
	DeleteComment(ctx context.Context, id uint64) error
	AddAttachments(ctx context.Context, threadID uint64, files []model.NewAttachment) ([]model.Attachment, error)
	Attachment(ctx context.Context, id uint64) (model.Attachment, error)
	DeleteAttachment(ctx context.Context, id uint64) error
}

type commentBody struct {
	Content         string  `json:"content"`
	ParentCommentID *uint64 `json:"parent_comment_id"`
}

type ThreadHandler struct {
	Threads   ThreadAPI
	Blobs     BlobStore
	MaxUpload int64
}

func NewThreadHandler(threads ThreadAPI, blobs BlobStore, maxUpload int64) *ThreadHandler {
	return &ThreadHandler{Threads: threads, Blobs: blobs, MaxUpload: maxUpload}
}

// ListByCompany handles GET /v1/threads?company_cd=...
func (h *ThreadHandler) ListByCompany(c echo.Context) error {
	cd := c.QueryParam("company_cd")
	if cd == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "company_cd is required"})
	}
	out, err := h.Threads.ListByCompany(c.Request().Context(), cd)
	if err != nil {
		return fail(c, err)
	}
	if out == nil {
		out = []model.Thread{}
	}
	return c.JSON(http.StatusOK, out)
}

// Create handles POST /v1/threads for a stand-alone company thread.
func (h *ThreadHandler) Create(c echo.Context) error {
	var body struct {
		CompanyCd   string  `json:"company_cd"`
		Name        string  `json:"name"`
		EquipmentID *uint64 `json:"equipment_id"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	th, err := h.Threads.CreateForCompany(c.Request().Context(), body.CompanyCd, body.Name, body.EquipmentID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, th)
}

// Get handles GET /v1/threads/:id.
func (h *ThreadHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	th, err := h.Threads.Get(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, th)
}

// Delete handles DELETE /v1/threads/:id; comments, attachments and blobs go with it.
func (h *ThreadHandler) Delete(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	if err := h.Threads.Delete(c.Request().Context(), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Comments handles GET /v1/threads/:id/comments and returns the reply tree.
func (h *ThreadHandler) Comments(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	out, err := h.Threads.Comments(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	if out == nil {
		out = []*model.Comment{}
	}
	return c.JSON(http.StatusOK, out)
}

// AddComment handles POST /v1/threads/:id/comments.
func (h *ThreadHandler) AddComment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body commentBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	cm, err := h.Threads.AddComment(c.Request().Context(), id, uid, body.Content, body.ParentCommentID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, cm)
}

// DeleteComment handles DELETE /v1/comments/:id.
func (h *ThreadHandler) DeleteComment(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	if err := h.Threads.DeleteComment(c.Request().Context(), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// AddAttachments handles POST /v1/threads/:id/attachments (multipart).
func (h *ThreadHandler) AddAttachments(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	ctx := c.Request().Context()
	// 404 before any bytes are stored
	if _, err := h.Threads.Get(ctx, id); err != nil {
		return fail(c, err)
	}
	files, err := uploadForm(c, h.Blobs, h.MaxUpload)
	if err != nil {
		return uploadFailed(c, err)
	}
	atts, err := h.Threads.AddAttachments(ctx, id, files)
	if err != nil {
		discardUploads(ctx, h.Blobs, files)
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, atts)
}
