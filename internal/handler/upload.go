package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/trip-report-tracker/internal/model"
	"github.com/iliyamo/trip-report-tracker/internal/storage"
)

// BlobStore is the attachment object store.
type BlobStore interface {
	Put(ctx context.Context, r io.Reader, size int64, fileName, contentType string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, time.Time, error)
}

var errTooLarge = errors.New("file too large")

// uploadForm stores every file of the multipart fields "files" and "file"
// and returns their attachment descriptors.  When any file fails, the
// ones already stored are removed again.
func uploadForm(c echo.Context, blobs BlobStore, maxBytes int64) ([]model.NewAttachment, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("%w: multipart form", errBadForm)
	}
	headers := append(append([]*multipart.FileHeader{}, form.File["files"]...), form.File["file"]...)

	// validate everything before storing anything
	types := make([]string, len(headers))
	for i, fh := range headers {
		ct, err := storage.ContentType(fh.Filename)
		if err != nil {
			return nil, err
		}
		if maxBytes > 0 && fh.Size > maxBytes {
			return nil, fmt.Errorf("%w: %s", errTooLarge, fh.Filename)
		}
		types[i] = ct
	}

	ctx := c.Request().Context()
	out := make([]model.NewAttachment, 0, len(headers))
	for i, fh := range headers {
		key, err := putOne(ctx, blobs, fh, types[i])
		if err != nil {
			discardUploads(ctx, blobs, out)
			return nil, err
		}
		out = append(out, model.NewAttachment{StorageKey: key, FileName: fh.Filename, FileType: types[i], FileSize: fh.Size})
	}
	return out, nil
}

func putOne(ctx context.Context, blobs BlobStore, fh *multipart.FileHeader, contentType string) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	return blobs.Put(ctx, f, fh.Size, fh.Filename, contentType)
}

// discardUploads removes objects whose database rows were never written.
func discardUploads(ctx context.Context, blobs BlobStore, files []model.NewAttachment) {
	for _, f := range files {
		_ = blobs.Delete(ctx, f.StorageKey)
	}
}

var errBadForm = errors.New("invalid upload")

func uploadFailed(c echo.Context, err error) error {
	switch {
	case errors.Is(err, errTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": err.Error()})
	case errors.Is(err, errBadForm):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	return fail(c, err)
}

// AttachmentHandler serves attachment download, signed URLs and deletion.
type AttachmentHandler struct {
	Threads ThreadAPI
	Blobs   BlobStore
}

func NewAttachmentHandler(threads ThreadAPI, blobs BlobStore) *AttachmentHandler {
	return &AttachmentHandler{Threads: threads, Blobs: blobs}
}

// Get handles GET /v1/attachments/:id (metadata).
func (h *AttachmentHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	a, err := h.Threads.Attachment(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

// Download handles GET /v1/attachments/:id/download and streams the bytes.
func (h *AttachmentHandler) Download(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	ctx := c.Request().Context()
	a, err := h.Threads.Attachment(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	rc, info, err := h.Blobs.Get(ctx, a.FilePath)
	if err != nil {
		return fail(c, err)
	}
	defer rc.Close()

	ct := info.ContentType
	if ct == "" {
		ct = a.FileType
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", a.FileName))
	return c.Stream(http.StatusOK, ct, rc)
}

// SignedURL handles GET /v1/attachments/:id/url.
func (h *AttachmentHandler) SignedURL(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	ctx := c.Request().Context()
	a, err := h.Threads.Attachment(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	u, exp, err := h.Blobs.SignedURL(ctx, a.FilePath, 0)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"url": u, "expires": exp})
}

// Delete handles DELETE /v1/attachments/:id.
func (h *AttachmentHandler) Delete(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	if err := h.Threads.DeleteAttachment(c.Request().Context(), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
