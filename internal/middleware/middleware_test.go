package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/trip-report-tracker/internal/config"
	"github.com/iliyamo/trip-report-tracker/internal/utils"
)

const secret = "mw-secret"

type revokedSet map[string]bool

func (r revokedSet) IsRevoked(_ context.Context, jti string) (bool, error) { return r[jti], nil }

type brokenRevocations struct{}

func (brokenRevocations) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func issue(t *testing.T, roles ...string) utils.SessionToken {
	t.Helper()
	tok, err := utils.NewSessionToken(secret, utils.SessionSubject{
		UserID: 42, Name: "Mori", Email: "mori@example.com", Roles: roles,
	}, time.Hour, "", time.Now())
	require.NoError(t, err)
	return tok
}

func serve(h echo.HandlerFunc, req *http.Request, mws ...echo.MiddlewareFunc) *httptest.ResponseRecorder {
	e := echo.New()
	e.GET("/t", h, mws...)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func echoIdentity(c echo.Context) error {
	id, ok := CurrentIdentity(c)
	if !ok {
		return c.NoContent(http.StatusTeapot)
	}
	return c.JSON(http.StatusOK, echo.Map{"user_id": id.UserID, "roles": id.Roles, "sid": id.SessionID})
}

func TestSessionFromCookieSlidesExpiry(t *testing.T) {
	tok := issue(t, "User")
	req := httptest.NewRequest(http.MethodGet, "/t", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: tok.Token})

	rec := serve(echoIdentity, req, Session(SessionOptions{Secret: secret, TTL: 8 * time.Hour, Log: zerolog.Nop()}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_id":42`)
	assert.Contains(t, rec.Body.String(), tok.ID)

	var fresh *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == SessionCookie {
			fresh = ck
		}
	}
	require.NotNil(t, fresh)
	assert.True(t, fresh.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, fresh.SameSite)
	assert.WithinDuration(t, time.Now().Add(8*time.Hour), fresh.Expires, time.Minute)

	claims, err := utils.ParseSessionToken(secret, fresh.Value)
	require.NoError(t, err)
	assert.Equal(t, tok.ID, claims.ID)
}

func TestSessionBearerFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/t", nil)
	req.Header.Set("Authorization", "Bearer "+issue(t).Token)
	rec := serve(echoIdentity, req, Session(SessionOptions{Secret: secret}))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionRejects(t *testing.T) {
	tok := issue(t)
	cases := []struct {
		name    string
		cookie  string
		revoked RevocationChecker
	}{
		{"missing", "", nil},
		{"garbage", "not-a-jwt", nil},
		{"revoked", tok.Token, revokedSet{tok.ID: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/t", nil)
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookie, Value: tc.cookie})
			}
			rec := serve(echoIdentity, req, Session(SessionOptions{Secret: secret, Revoked: tc.revoked}))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestSessionToleratesRevocationOutage(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/t", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: issue(t).Token})
	rec := serve(echoIdentity, req, Session(SessionOptions{Secret: secret, Revoked: brokenRevocations{}, Log: zerolog.Nop()}))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRole(t *testing.T) {
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }
	cases := []struct {
		name  string
		roles []string
		want  int
	}{
		{"approver allowed", []string{"User", "Approver"}, http.StatusNoContent},
		{"admin allowed", []string{"Admin"}, http.StatusNoContent},
		{"plain user forbidden", []string{"User"}, http.StatusForbidden},
		{"no roles forbidden", nil, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/t", nil)
			req.AddCookie(&http.Cookie{Name: SessionCookie, Value: issue(t, tc.roles...).Token})
			rec := serve(ok, req, Session(SessionOptions{Secret: secret}), RequireRole("Admin", "Approver"))
			assert.Equal(t, tc.want, rec.Code)
		})
	}

	rec := serve(ok, httptest.NewRequest(http.MethodGet, "/t", nil), RequireRole("Admin"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateKeyStrategies(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.9")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/auth/login")

	cfg := config.RateLimitConfig{Prefix: "kdx:rl:login", KeyStrategy: "ip_route"}
	assert.Equal(t, "kdx:rl:login:ip:10.0.0.9:route:POST /v1/auth/login", rateKey(cfg, c))

	cfg.KeyStrategy = "ip_user_route"
	c.Set(ctxUserID, uint64(7))
	assert.Equal(t, "kdx:rl:login:ip:10.0.0.9:user:7:route:POST /v1/auth/login", rateKey(cfg, c))

	cfg.KeyStrategy = "user"
	c.Set(ctxUserID, nil)
	assert.Equal(t, "kdx:rl:login:user:anon", rateKey(cfg, c))
}

func TestParseBucket(t *testing.T) {
	res, err := parseBucket([]int64{0, 0, 1500})
	require.NoError(t, err)
	assert.False(t, res.allowed)
	assert.Equal(t, 1500*time.Millisecond, res.retry)

	_, err = parseBucket([]int64{1})
	assert.Error(t, err)
}

func TestLimiterAndCachePassThroughWithoutRedis(t *testing.T) {
	h := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/t", nil),
		NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil, zerolog.Nop()),
		NewRedisCache(config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}}, nil, zerolog.Nop()),
	)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}

func TestCacheEntryDropsCorruptPayload(t *testing.T) {
	_, _, _, ok := decodeEntry([]byte{0, 0})
	assert.False(t, ok)
	_, _, _, ok = decodeEntry([]byte{0, 0, 0, 200, 0, 0, 1, 0})
	assert.False(t, ok)

	entry, err := encodeEntry(http.StatusOK, http.Header{"Content-Type": {"application/json"}}, []byte(`{"a":1}`))
	require.NoError(t, err)
	status, hdr, body, ok := decodeEntry(entry)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", hdr.Get("Content-Type"))
	assert.Equal(t, `{"a":1}`, string(body))
}

func TestCacheKeyIncludesPathParams(t *testing.T) {
	e := echo.New()
	cfg := config.CacheConfig{Prefix: "kdx:master", KeyStrategy: "route_query"}
	key := func(id string) string {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/kpro/companies/"+id, nil), httptest.NewRecorder())
		c.SetPath("/api/kpro/companies/:code")
		c.SetParamNames("code")
		c.SetParamValues(id)
		return cacheKey(cfg, c)
	}
	assert.NotEqual(t, key("A"), key("B"))
	assert.True(t, strings.HasPrefix(key("A"), "kdx:master:"))
}

func TestMetricsCountsByRoute(t *testing.T) {
	m := NewMetrics()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/items/:id", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	for _, id := range []string{"1", "2"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/items/:id", "204")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "trip_report_http_requests_total")
}
