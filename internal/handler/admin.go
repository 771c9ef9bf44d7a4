package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/trip-report-tracker/internal/model"
)

// UserAdmin is the admin side of the identity service.
type UserAdmin interface {
	ListUsers(ctx context.Context) ([]model.User, error)
	ListRoles(ctx context.Context) ([]model.Role, error)
	CurrentUser(ctx context.Context, userID uint64) (model.User, error)
	Register(ctx context.Context, name, email, password, role string) (model.User, error)
	UpdateProfile(ctx context.Context, userID uint64, name, email string) (model.User, error)
	SetPassword(ctx context.Context, userID uint64, password string) error
	ReplaceRoles(ctx context.Context, userID uint64, roles []string) (model.User, error)
	DeleteUser(ctx context.Context, userID uint64) error
}

// AdminHandler serves /v1/admin: user and role management.
type AdminHandler struct {
	Users UserAdmin
}

func NewAdminHandler(users UserAdmin) *AdminHandler { return &AdminHandler{Users: users} }

// ListUsers handles GET /v1/admin/users.
func (h *AdminHandler) ListUsers(c echo.Context) error {
	users, err := h.Users.ListUsers(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, users)
}

// ListRoles handles GET /v1/admin/roles.
func (h *AdminHandler) ListRoles(c echo.Context) error {
	roles, err := h.Users.ListRoles(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, roles)
}

// GetUser handles GET /v1/admin/users/:id.
func (h *AdminHandler) GetUser(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	u, err := h.Users.CurrentUser(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// CreateUser handles POST /v1/admin/users.  Any existing role may be given.
func (h *AdminHandler) CreateUser(c echo.Context) error {
	var body struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	u, err := h.Users.Register(c.Request().Context(), body.Name, body.Email, body.Password, body.Role)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, u)
}

// UpdateUser handles PUT /v1/admin/users/:id (name and email).
func (h *AdminHandler) UpdateUser(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	var body struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	u, err := h.Users.UpdateProfile(c.Request().Context(), id, body.Name, body.Email)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// SetPassword handles PUT /v1/admin/users/:id/password without the old password.
func (h *AdminHandler) SetPassword(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	var body struct {
		Password string `json:"password"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := h.Users.SetPassword(c.Request().Context(), id, body.Password); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ReplaceRoles handles PUT /v1/admin/users/:id/roles.
func (h *AdminHandler) ReplaceRoles(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	var body struct {
		Roles []string `json:"roles"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	u, err := h.Users.ReplaceRoles(c.Request().Context(), id, body.Roles)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// DeleteUser handles DELETE /v1/admin/users/:id.  Users still referenced
// by reports or comments answer 409.
func (h *AdminHandler) DeleteUser(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badID(c, "id")
	}
	if err := h.Users.DeleteUser(c.Request().Context(), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
