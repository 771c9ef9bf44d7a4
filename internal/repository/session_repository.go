package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionRepo records revoked session ids in Redis until the session
// would have expired anyway.  With a nil client revocation is a no-op and
// every session id is reported as live.
type SessionRepo struct {
	rdb    *redis.Client
	prefix string
}

func NewSessionRepo(rdb *redis.Client, prefix string) *SessionRepo {
	if prefix == "" {
		prefix = "kdx:session:revoked"
	}
	return &SessionRepo{rdb: rdb, prefix: prefix}
}

// Enabled reports whether revocations are persisted.
func (r *SessionRepo) Enabled() bool { return r != nil && r.rdb != nil }

// Revoke marks jti revoked until exp.  Already expired sessions are ignored.
func (r *SessionRepo) Revoke(ctx context.Context, jti string, exp time.Time) error {
	if !r.Enabled() || jti == "" {
		return nil
	}
	ttl := time.Until(exp)
	if ttl <= 0 {
		return nil
	}
	return r.rdb.Set(ctx, r.key(jti), "1", ttl).Err()
}

// IsRevoked reports whether jti was revoked.
func (r *SessionRepo) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if !r.Enabled() {
		return false, nil
	}
	err := r.rdb.Get(ctx, r.key(jti)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *SessionRepo) key(jti string) string { return r.prefix + ":" + jti }
