package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/trip-report-tracker/internal/handler"
	"github.com/iliyamo/trip-report-tracker/internal/model"
)

// fakeSession trusts the X-Test-Roles header; no header means no session.
func fakeSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		roles := c.Request().Header.Get("X-Test-Roles")
		if roles == "" {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
		}
		c.Set("user_id", uint64(1))
		c.Set("roles", strings.Split(roles, ","))
		return next(c)
	}
}

type reportsStub struct{ handler.ReportAPI }

func (reportsStub) Decide(_ context.Context, id, _ uint64, status string, _ *int64) (model.TripReport, error) {
	return model.TripReport{ID: id, ApprovalStatus: status}, nil
}

type adminStub struct{ handler.UserAdmin }

func (adminStub) ListUsers(context.Context) ([]model.User, error) { return nil, nil }

func newServer() *echo.Echo {
	e := echo.New()
	Register(e, Deps{
		Auth:        handler.NewAuthHandler(nil, false),
		Admin:       handler.NewAdminHandler(adminStub{}),
		Reports:     handler.NewReportHandler(reportsStub{}, nil, nil, 0),
		Threads:     handler.NewThreadHandler(nil, nil, 0),
		Attachments: handler.NewAttachmentHandler(nil, nil),
		Equipment:   handler.NewEquipmentHandler(nil),
		Master:      handler.NewMasterHandler(nil),
		UserStaff:   handler.NewUserStaffHandler(nil),
		Session:     fakeSession,
	})
	return e
}

func call(e *echo.Echo, method, path, roles string) int {
	req := httptest.NewRequest(method, path, nil)
	if roles != "" {
		req.Header.Set("X-Test-Roles", roles)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec.Code
}

func TestHealthIsPublic(t *testing.T) {
	assert.Equal(t, http.StatusOK, call(newServer(), http.MethodGet, "/healthz", ""))
}

func TestDecisionRoles(t *testing.T) {
	e := newServer()
	cases := []struct {
		roles string
		want  int
	}{
		{"", http.StatusUnauthorized},
		{model.RoleUser, http.StatusForbidden},
		{model.RoleApprover, http.StatusOK},
		{model.RoleAdmin, http.StatusOK},
		{model.RoleUser + "," + model.RoleApprover, http.StatusOK},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, call(e, http.MethodPost, "/v1/reports/3/approve", tc.roles), tc.roles)
		assert.Equal(t, tc.want, call(e, http.MethodPost, "/v1/reports/3/reject", tc.roles), tc.roles)
	}
}

func TestAdminRoutesNeedAdmin(t *testing.T) {
	e := newServer()
	assert.Equal(t, http.StatusForbidden, call(e, http.MethodGet, "/v1/admin/users", model.RoleApprover))
	assert.Equal(t, http.StatusOK, call(e, http.MethodGet, "/v1/admin/users", model.RoleAdmin))
}

func TestMasterDataNeedsSession(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, call(newServer(), http.MethodGet, "/api/kpro/customers", ""))
}

func TestIsTransfer(t *testing.T) {
	e := echo.New()
	cases := []struct {
		method, path string
		want         bool
	}{
		{http.MethodGet, "/v1/attachments/:id/download", true},
		{http.MethodPost, "/v1/reports/:id/attachments", true},
		{http.MethodPost, "/v1/threads/:id/attachments", true},
		{http.MethodGet, "/v1/reports/:id", false},
		{http.MethodGet, "/v1/attachments/:id", false},
	}
	for _, tc := range cases {
		c := e.NewContext(httptest.NewRequest(tc.method, "/", nil), httptest.NewRecorder())
		c.SetPath(tc.path)
		assert.Equal(t, tc.want, isTransfer(c), tc.path)
	}
}
