package handler // HTTP handlers of the trip report API

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/trip-report-tracker/internal/external"
	"github.com/iliyamo/trip-report-tracker/internal/middleware"
	"github.com/iliyamo/trip-report-tracker/internal/repository"
	"github.com/iliyamo/trip-report-tracker/internal/service"
	"github.com/iliyamo/trip-report-tracker/internal/storage"
)

// getUserID returns the authenticated user id from the session.
func getUserID(c echo.Context) (uint64, error) {
	if id, ok := middleware.UserID(c); ok {
		return id, nil
	}
	return 0, errors.New("invalid user_id in context")
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid " + name)
	}
	return id, nil
}

// badID answers 400 for a malformed path parameter.
func badID(c echo.Context, name string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid " + name})
}

// parseDate accepts "2006-01-02" or a full RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

// statusFor maps domain errors onto HTTP statuses.  The message is safe to
// show to clients; unexpected errors get a generic one.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrUnknownRole),
		errors.Is(err, service.ErrParentThreadMismatch),
		errors.Is(err, repository.ErrInvalidReference),
		errors.Is(err, storage.ErrFileType):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrRoleNotFound),
		errors.Is(err, repository.ErrReportNotFound),
		errors.Is(err, repository.ErrThreadNotFound),
		errors.Is(err, repository.ErrCommentNotFound),
		errors.Is(err, repository.ErrAttachmentNotFound),
		errors.Is(err, repository.ErrEquipmentNotFound),
		errors.Is(err, external.ErrNotFound),
		errors.Is(err, storage.ErrObjectNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, repository.ErrEmailExists):
		return http.StatusConflict, "email already exists"
	case errors.Is(err, repository.ErrVersionConflict):
		return http.StatusConflict, "report was modified by someone else"
	case errors.Is(err, repository.ErrNotPending):
		return http.StatusConflict, "report is no longer pending"
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, "resource is still referenced"
	case errors.Is(err, external.ErrUnavailable):
		return http.StatusServiceUnavailable, "master data unavailable"
	case errors.Is(err, storage.ErrUnavailable):
		return http.StatusServiceUnavailable, "attachment storage unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request timed out"
	}
	return http.StatusInternalServerError, "internal error"
}

// fail writes the mapped error response and records err for the request log.
func fail(c echo.Context, err error) error {
	middleware.RecordError(c, err)
	status, msg := statusFor(err)
	return c.JSON(status, echo.Map{"error": msg})
}
