package middleware

// identity.go exposes the session identity stored in the echo context by
// Session.  Handlers and the rate limiter read it through these helpers.

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID    uint64
	Name      string
	Email     string
	Roles     []string
	SessionID string
	Expires   time.Time
}

// CurrentIdentity returns the caller, or false on unauthenticated routes.
func CurrentIdentity(c echo.Context) (Identity, bool) {
	uid, ok := UserID(c)
	if !ok {
		return Identity{}, false
	}
	id := Identity{UserID: uid, Roles: Roles(c)}
	id.Name, _ = c.Get(ctxName).(string)
	id.Email, _ = c.Get(ctxEmail).(string)
	id.SessionID, _ = c.Get(ctxSessionID).(string)
	id.Expires, _ = c.Get(ctxSessionExp).(time.Time)
	return id, true
}

// UserID returns the authenticated user id.
func UserID(c echo.Context) (uint64, bool) {
	switch v := c.Get(ctxUserID).(type) {
	case uint64:
		return v, v != 0
	case int64:
		return uint64(v), v > 0
	case int:
		return uint64(v), v > 0
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		return n, err == nil && n != 0
	}
	return 0, false
}

// Roles returns the role names of the session.
func Roles(c echo.Context) []string {
	r, _ := c.Get(ctxRoles).([]string)
	return r
}

// userKey identifies the caller in rate limit keys; "anon" when unknown.
func userKey(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
