package utils // package utils provides helpers for session tokens and password hashing

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionClaims is the claim set carried by the session cookie.  The
// subject holds the user id in decimal form; Roles is the full role set
// at the moment the session was issued.
type SessionClaims struct {
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// UserID parses the subject back into a numeric user id.
func (c *SessionClaims) UserID() (uint64, error) {
	return strconv.ParseUint(c.Subject, 10, 64)
}

// SessionToken represents a signed session JWT along with its id and
// expiry.  The id (jti) is what gets recorded when a session is revoked.
type SessionToken struct {
	Token string    // the serialized JWT string
	ID    string    // jti claim
	Exp   time.Time // the UTC expiration time
}

// SessionSubject is the identity a session is issued for.
type SessionSubject struct {
	UserID uint64
	Name   string
	Email  string
	Roles  []string
}

// ErrInvalidSession is returned for tokens that fail signature, algorithm
// or expiry checks.
var ErrInvalidSession = errors.New("invalid session")

// NewSessionToken builds and signs an HS256 session JWT.  When jti is
// empty a fresh random id is generated; a sliding re-issue passes the
// existing id so a later revocation still matches.
func NewSessionToken(secret string, sub SessionSubject, ttl time.Duration, jti string, now time.Time) (SessionToken, error) {
	if jti == "" {
		jti = uuid.NewString()
	}
	now = now.UTC()
	exp := now.Add(ttl)
	roles := sub.Roles
	if roles == nil {
		roles = []string{}
	}
	claims := SessionClaims{
		Name:  sub.Name,
		Email: sub.Email,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(sub.UserID, 10),
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return SessionToken{}, err
	}
	return SessionToken{Token: signed, ID: jti, Exp: exp}, nil
}

// ParseSessionToken verifies the signature and expiry of raw and returns
// its claims.  Only HMAC signed tokens are accepted.
func ParseSessionToken(secret, raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSession
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalidSession
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, ErrInvalidSession
	}
	return claims, nil
}
