package middleware // session authentication for the API

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/trip-report-tracker/internal/utils"
)

// SessionCookie is the name of the HTTP-only cookie carrying the session JWT.
const SessionCookie = "kdx_session"

// Context keys set by Session.
const (
	ctxUserID     = "user_id"
	ctxRoles      = "roles"
	ctxName       = "name"
	ctxEmail      = "email"
	ctxSessionID  = "session_id"
	ctxSessionExp = "session_exp"
)

// RevocationChecker tells whether a session id was terminated.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// SessionOptions configures Session.
type SessionOptions struct {
	Secret  string
	TTL     time.Duration
	Secure  bool
	Revoked RevocationChecker // may be nil
	Now     func() time.Time
	Log     zerolog.Logger
}

// Session authenticates the request from the session cookie, falling back
// to an "Authorization: Bearer" header for API clients.  A valid session
// is re-issued with a fresh expiry on every request so idle time, not
// total time, ends it.  Identity claims are stored in the echo context.
func Session(opts SessionOptions) echo.MiddlewareFunc {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TTL <= 0 {
		opts.TTL = 8 * time.Hour
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := sessionToken(c)
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}
			claims, err := utils.ParseSessionToken(opts.Secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid session"})
			}
			uid, err := claims.UserID()
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid session"})
			}
			if opts.Revoked != nil {
				revoked, err := opts.Revoked.IsRevoked(c.Request().Context(), claims.ID)
				if err != nil {
					// revocation list unreachable: the signature still holds
					opts.Log.Warn().Err(err).Msg("session revocation check failed")
				} else if revoked {
					ClearSessionCookie(c, opts.Secure)
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session ended"})
				}
			}

			tok, err := utils.NewSessionToken(opts.Secret, utils.SessionSubject{
				UserID: uid, Name: claims.Name, Email: claims.Email, Roles: claims.Roles,
			}, opts.TTL, claims.ID, opts.Now())
			if err != nil {
				return err
			}
			SetSessionCookie(c, tok, opts.Secure)

			c.Set(ctxUserID, uid)
			c.Set(ctxRoles, claims.Roles)
			c.Set(ctxName, claims.Name)
			c.Set(ctxEmail, claims.Email)
			c.Set(ctxSessionID, tok.ID)
			c.Set(ctxSessionExp, tok.Exp)
			return next(c)
		}
	}
}

func sessionToken(c echo.Context) string {
	if ck, err := c.Cookie(SessionCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// SetSessionCookie writes tok as the session cookie.
func SetSessionCookie(c echo.Context, tok utils.SessionToken, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    tok.Token,
		Path:     "/",
		Expires:  tok.Exp,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie on the client.
func ClearSessionCookie(c echo.Context, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
