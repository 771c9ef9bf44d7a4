package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/trip-report-tracker/internal/bootstrap"
	"github.com/iliyamo/trip-report-tracker/internal/middleware"
	"github.com/iliyamo/trip-report-tracker/internal/model"
	"github.com/iliyamo/trip-report-tracker/internal/utils"
)

// Authenticator is the identity service behind the auth endpoints.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (model.User, error)
	EstablishSession(u model.User) (utils.SessionToken, error)
	TerminateSession(ctx context.Context, jti string, exp time.Time) error
	Register(ctx context.Context, name, email, password, role string) (model.User, error)
	ChangePassword(ctx context.Context, userID uint64, oldPassword, newPassword string) error
	IsDefaultPassword(ctx context.Context, userID uint64) (bool, error)
	CurrentUser(ctx context.Context, userID uint64) (model.User, error)
}

// AuthHandler serves login, logout, registration and the current user.
type AuthHandler struct {
	Auth         Authenticator
	CookieSecure bool
}

func NewAuthHandler(auth Authenticator, cookieSecure bool) *AuthHandler {
	return &AuthHandler{Auth: auth, CookieSecure: cookieSecure}
}

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResp struct {
	User               model.User `json:"user"`
	Expires            time.Time  `json:"expires"`
	MustChangePassword bool       `json:"must_change_password"`
}

// Login: verify credentials and set the session cookie.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx := c.Request().Context()
	u, err := h.Auth.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return fail(c, err)
	}
	return h.startSession(c, u, http.StatusOK)
}

// Register: create a User-role account and sign it in.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	u, err := h.Auth.Register(c.Request().Context(), req.Name, req.Email, req.Password, model.RoleUser)
	if err != nil {
		return fail(c, err)
	}
	return h.startSession(c, u, http.StatusCreated)
}

func (h *AuthHandler) startSession(c echo.Context, u model.User, status int) error {
	tok, err := h.Auth.EstablishSession(u)
	if err != nil {
		return fail(c, err)
	}
	middleware.SetSessionCookie(c, tok, h.CookieSecure)
	// the default password only ever applies to the bootstrap admin
	mustChange := utils.VerifyPassword(u.PasswordHash, bootstrap.AdminPassword)
	return c.JSON(status, sessionResp{User: u, Expires: tok.Exp, MustChangePassword: mustChange})
}

// Logout: revoke the session id and clear the cookie.
func (h *AuthHandler) Logout(c echo.Context) error {
	id, ok := middleware.CurrentIdentity(c)
	if ok && id.SessionID != "" {
		if err := h.Auth.TerminateSession(c.Request().Context(), id.SessionID, id.Expires); err != nil {
			middleware.RecordError(c, err)
		}
	}
	middleware.ClearSessionCookie(c, h.CookieSecure)
	return c.NoContent(http.StatusNoContent)
}

// Me returns the signed-in user.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx := c.Request().Context()
	u, err := h.Auth.CurrentUser(ctx, uid)
	if err != nil {
		return fail(c, err)
	}
	def, err := h.Auth.IsDefaultPassword(ctx, uid)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user": u, "must_change_password": def})
}

// ChangePassword requires the current password.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := h.Auth.ChangePassword(c.Request().Context(), uid, body.OldPassword, body.NewPassword); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
