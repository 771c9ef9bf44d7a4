package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/trip-report-tracker/internal/service"
)

// StaffLinker links local users to legacy staff records.
type StaffLinker interface {
	LinkStaffBySerial(ctx context.Context, userID uint64, serialNo string) (service.UserWithStaff, error)
	LinkStaffByCode(ctx context.Context, userID uint64, staffCd string) (service.UserWithStaff, error)
	UnlinkStaff(ctx context.Context, userID uint64) error
	GetWithStaff(ctx context.Context, userID uint64) (service.UserWithStaff, error)
	ListWithStaff(ctx context.Context) ([]service.UserWithStaff, error)
}

// UserStaffHandler serves /api/users.
type UserStaffHandler struct{ Users StaffLinker }

func NewUserStaffHandler(u StaffLinker) *UserStaffHandler { return &UserStaffHandler{Users: u} }

func (h *UserStaffHandler) List(c echo.Context) error {
	out, err := h.Users.ListWithStaff(c.Request().Context())
	return respondList(c, out, err)
}

func (h *UserStaffHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	u, err := h.Users.GetWithStaff(c.Request().Context(), id)
	return respond(c, u, err)
}

// Link handles POST /api/users/:id/staff with serial_no or staff_cd.
func (h *UserStaffHandler) Link(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	var body struct {
		SerialNo string `json:"serial_no"`
		StaffCd  string `json:"staff_cd"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx := c.Request().Context()
	var u service.UserWithStaff
	if body.StaffCd != "" {
		u, err = h.Users.LinkStaffByCode(ctx, id, body.StaffCd)
	} else {
		u, err = h.Users.LinkStaffBySerial(ctx, id, body.SerialNo)
	}
	return respond(c, u, err)
}

func (h *UserStaffHandler) Unlink(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	if err := h.Users.UnlinkStaff(c.Request().Context(), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
