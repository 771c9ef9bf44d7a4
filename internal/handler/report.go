package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/trip-report-tracker/internal/model"
	"github.com/iliyamo/trip-report-tracker/internal/service"
)

// ReportAPI is the report lifecycle used by ReportHandler.
type ReportAPI interface {
	Create(ctx context.Context, in service.ReportInput) (model.TripReport, error)
	Update(ctx context.Context, id uint64, in service.ReportInput, expectedVersion *int64) (model.TripReport, error)
	Delete(ctx context.Context, id uint64) error
	Decide(ctx context.Context, id, approverID uint64, status string, expectedVersion *int64) (model.TripReport, error)
	MarkRead(ctx context.Context, userID, reportID uint64) error
	ReadStatus(ctx context.Context, userID, reportID uint64) (model.ReadStatus, error)
	ListAll(ctx context.Context) ([]model.TripReport, error)
	ListPending(ctx context.Context) ([]model.TripReport, error)
	ListUnread(ctx context.Context, userID uint64) ([]model.TripReport, error)
	ListBySubmitter(ctx context.Context, submitter string) ([]model.TripReport, error)
	ListByCustomer(ctx context.Context, customerCd string) ([]model.TripReport, error)
	Get(ctx context.Context, id uint64) (model.TripReport, error)
	AttachFiles(ctx context.Context, reportID uint64, files []model.NewAttachment) (*model.Thread, []model.Attachment, error)
	AddComment(ctx context.Context, reportID, userID uint64, content string, parentID *uint64) (model.Thread, model.Comment, error)
	ReadUsers(ctx context.Context, reportID uint64) ([]model.UserSummary, error)
	UnreadUsers(ctx context.Context, reportID uint64) ([]model.UserSummary, error)
}

// ReportHandler serves /v1/reports.
type ReportHandler struct {
	Reports   ReportAPI
	Threads   ThreadAPI
	Blobs     BlobStore
	MaxUpload int64
}

func NewReportHandler(reports ReportAPI, threads ThreadAPI, blobs BlobStore, maxUpload int64) *ReportHandler {
	return &ReportHandler{Reports: reports, Threads: threads, Blobs: blobs, MaxUpload: maxUpload}
}

type reportBody struct {
	CompanyCd       string  `json:"company_cd"`
	CustomerCd      string  `json:"customer_cd"`
	StaffCd         string  `json:"staff_cd"`
	EquipmentID     uint64  `json:"equipment_id"`
	TripStartDate   string  `json:"trip_start_date"`
	TripEndDate     string  `json:"trip_end_date"`
	Title           string  `json:"title"`
	Submitter       string  `json:"submitter"`
	Companions      *string `json:"companions"`
	Content         string  `json:"content"`
	ApprovalStatus  string  `json:"approval_status"`
	ExpectedVersion *int64  `json:"expected_version"`
}

func (b reportBody) input() (service.ReportInput, error) {
	start, err := parseDate(b.TripStartDate)
	if err != nil {
		return service.ReportInput{}, err
	}
	end, err := parseDate(b.TripEndDate)
	if err != nil {
		return service.ReportInput{}, err
	}
	return service.ReportInput{
		CompanyCd:      b.CompanyCd,
		CustomerCd:     b.CustomerCd,
		StaffCd:        b.StaffCd,
		EquipmentID:    b.EquipmentID,
		TripStartDate:  start,
		TripEndDate:    end,
		Title:          b.Title,
		Submitter:      b.Submitter,
		Companions:     b.Companions,
		Content:        b.Content,
		ApprovalStatus: b.ApprovalStatus,
	}, nil
}

// List handles GET /v1/reports.  Filters: status=pending, unread=true,
// submitter=<name>, customer_cd=<code>.
func (h *ReportHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	var (
		out []model.TripReport
		err error
	)
	switch {
	case c.QueryParam("status") == model.StatusPending:
		out, err = h.Reports.ListPending(ctx)
	case c.QueryParam("unread") == "true":
		uid, uerr := getUserID(c)
		if uerr != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}
		out, err = h.Reports.ListUnread(ctx, uid)
	case strings.TrimSpace(c.QueryParam("submitter")) != "":
		out, err = h.Reports.ListBySubmitter(ctx, c.QueryParam("submitter"))
	case strings.TrimSpace(c.QueryParam("customer_cd")) != "":
		out, err = h.Reports.ListByCustomer(ctx, c.QueryParam("customer_cd"))
	default:
		out, err = h.Reports.ListAll(ctx)
	}
	if err != nil {
		return fail(c, err)
	}
	if out == nil {
		out = []model.TripReport{}
	}
	return c.JSON(http.StatusOK, out)
}

// Get handles GET /v1/reports/:id with equipment, approver and threads.
func (h *ReportHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	r, err := h.Reports.Get(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

// Create handles POST /v1/reports.
func (h *ReportHandler) Create(c echo.Context) error {
	var body reportBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	in, err := body.input()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid date"})
	}
	r, err := h.Reports.Create(c.Request().Context(), in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, r)
}

// Update handles PUT /v1/reports/:id.  expected_version enables the
// optimistic check; without it the write wins.
func (h *ReportHandler) Update(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	var body reportBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	in, err := body.input()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid date"})
	}
	r, err := h.Reports.Update(c.Request().Context(), id, in, body.ExpectedVersion)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

// Delete handles DELETE /v1/reports/:id.
func (h *ReportHandler) Delete(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	if err := h.Reports.Delete(c.Request().Context(), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Approve handles POST /v1/reports/:id/approve.
func (h *ReportHandler) Approve(c echo.Context) error { return h.decide(c, model.StatusApproved) }

// Reject handles POST /v1/reports/:id/reject.
func (h *ReportHandler) Reject(c echo.Context) error { return h.decide(c, model.StatusRejected) }

// Decide handles PUT /v1/reports/:id/status with {"status": ...}.
func (h *ReportHandler) Decide(c echo.Context) error { return h.decide(c, "") }

func (h *ReportHandler) decide(c echo.Context, status string) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		Status          string `json:"status"`
		ExpectedVersion *int64 `json:"expected_version"`
	}
	// the body is optional for approve/reject
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&body); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
		}
	}
	if status == "" {
		status = body.Status
	}
	r, err := h.Reports.Decide(c.Request().Context(), id, uid, status, body.ExpectedVersion)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

// MarkRead handles POST /v1/reports/:id/read.  Repeating it is harmless.
func (h *ReportHandler) MarkRead(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if err := h.Reports.MarkRead(c.Request().Context(), uid, id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ReadStatus handles GET /v1/reports/:id/read for the current user.
func (h *ReportHandler) ReadStatus(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	st, err := h.Reports.ReadStatus(c.Request().Context(), uid, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// ReadUsers handles GET /v1/reports/:id/readers.
func (h *ReportHandler) ReadUsers(c echo.Context) error {
	return h.users(c, h.Reports.ReadUsers)
}

// UnreadUsers handles GET /v1/reports/:id/non-readers.
func (h *ReportHandler) UnreadUsers(c echo.Context) error {
	return h.users(c, h.Reports.UnreadUsers)
}

func (h *ReportHandler) users(c echo.Context, list func(context.Context, uint64) ([]model.UserSummary, error)) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	out, err := list(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	if out == nil {
		out = []model.UserSummary{}
	}
	return c.JSON(http.StatusOK, out)
}

// UploadAttachments handles POST /v1/reports/:id/attachments (multipart,
// field "files").  Files land in the report's first thread, created when
// missing.
func (h *ReportHandler) UploadAttachments(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	files, err := uploadForm(c, h.Blobs, h.MaxUpload)
	if err != nil {
		return uploadFailed(c, err)
	}
	ctx := c.Request().Context()
	th, atts, err := h.Reports.AttachFiles(ctx, id, files)
	if err != nil {
		discardUploads(ctx, h.Blobs, files)
		return fail(c, err)
	}
	if atts == nil {
		atts = []model.Attachment{}
	}
	return c.JSON(http.StatusCreated, echo.Map{"thread": th, "attachments": atts})
}

// AddComment handles POST /v1/reports/:id/comments.  The first comment
// on a report opens its thread.
func (h *ReportHandler) AddComment(c echo.Context) error {
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
	th, cm, err := h.Reports.AddComment(c.Request().Context(), id, uid, body.Content, body.ParentCommentID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"thread": th, "comment": cm})
}

// ListThreads handles GET /v1/reports/:id/threads.
func (h *ReportHandler) ListThreads(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	out, err := h.Threads.ListByReport(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	if out == nil {
		out = []model.Thread{}
	}
	return c.JSON(http.StatusOK, out)
}

// CreateThread handles POST /v1/reports/:id/threads.
func (h *ReportHandler) CreateThread(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx := c.Request().Context()
	r, err := h.Reports.Get(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	out, err := h.Threads.CreateForReport(ctx, r.ID, body.Name)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}
