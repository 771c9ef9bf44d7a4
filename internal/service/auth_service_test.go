package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/trip-report-tracker/internal/bootstrap"
	"github.com/iliyamo/trip-report-tracker/internal/model"
	"github.com/iliyamo/trip-report-tracker/internal/repository"
	"github.com/iliyamo/trip-report-tracker/internal/utils"
)

func newAuthService(db *memDB, strict bool) (*AuthService, *memSessions) {
	sessions := &memSessions{revoked: map[string]time.Time{}}
	s := NewAuthService(memUsers{db}, memRoles{db}, sessions, AuthOptions{
		Secret:      "test-secret",
		TTL:         8 * time.Hour,
		BcryptCost:  bcrypt.MinCost,
		StrictRoles: strict,
	}, zerolog.Nop())
	return s, sessions
}

func TestAuthenticateIsCaseInsensitiveAndUniform(t *testing.T) {
	db := newMemDB()
	s, _ := newAuthService(db, false)
	ctx := context.Background()
	_, err := s.Register(ctx, "User", "user@example.com", "secret", "")
	require.NoError(t, err)

	u, err := s.Authenticate(ctx, "User@Example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", u.Email)

	_, wrongPassword := s.Authenticate(ctx, "user@example.com", "nope")
	_, noSuchUser := s.Authenticate(ctx, "ghost@example.com", "secret")
	_, emptyPassword := s.Authenticate(ctx, "user@example.com", "")
	_, emptyEmail := s.Authenticate(ctx, "  ", "secret")
	for _, err := range []error{wrongPassword, noSuchUser, emptyPassword, emptyEmail} {
		assert.Equal(t, ErrInvalidCredentials, err)
	}
}

func TestUnknownEmailStillRunsBcrypt(t *testing.T) {
	s, _ := newAuthService(newMemDB(), false)
	require.Empty(t, s.dummyHash)

	_, err := s.Authenticate(context.Background(), "ghost@example.com", "secret")
	assert.Equal(t, ErrInvalidCredentials, err)

	cost, err := bcrypt.Cost([]byte(s.dummyHash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
	assert.False(t, utils.VerifyPassword(s.dummyHash, "secret"))
}

func TestRegisterAssignsUserRoleByDefault(t *testing.T) {
	s, _ := newAuthService(newMemDB(), false)
	u, err := s.Register(context.Background(), "Sato", " Sato@Example.COM ", "pw", "")
	require.NoError(t, err)
	assert.Equal(t, "sato@example.com", u.Email)
	assert.Equal(t, []string{model.RoleUser}, u.Roles)
	assert.NotEqual(t, "pw", u.PasswordHash)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	s, _ := newAuthService(newMemDB(), false)
	ctx := context.Background()
	_, err := s.Register(ctx, "A", "a@example.com", "pw", "")
	require.NoError(t, err)
	_, err = s.Register(ctx, "B", "A@example.com", "pw", "")
	assert.ErrorIs(t, err, repository.ErrEmailExists)
}

func TestRegisterUnknownRole(t *testing.T) {
	t.Run("lenient skips the role", func(t *testing.T) {
		db := newMemDB()
		s, _ := newAuthService(db, false)
		u, err := s.Register(context.Background(), "A", "a@example.com", "pw", "Auditor")
		require.NoError(t, err)
		assert.Empty(t, u.Roles)
		assert.Len(t, db.users, 1)
	})
	t.Run("strict rejects before writing", func(t *testing.T) {
		db := newMemDB()
		s, _ := newAuthService(db, true)
		_, err := s.Register(context.Background(), "A", "a@example.com", "pw", "Auditor")
		assert.ErrorIs(t, err, ErrUnknownRole)
		assert.Empty(t, db.users)
	})
}

func TestChangePasswordRequiresOldPassword(t *testing.T) {
	s, _ := newAuthService(newMemDB(), false)
	ctx := context.Background()
	u, err := s.Register(ctx, "A", "a@example.com", "old", "")
	require.NoError(t, err)

	assert.ErrorIs(t, s.ChangePassword(ctx, u.ID, "wrong", "new"), ErrInvalidCredentials)
	require.NoError(t, s.ChangePassword(ctx, u.ID, "old", "new"))
	_, err = s.Authenticate(ctx, "a@example.com", "new")
	assert.NoError(t, err)
}

func TestIsDefaultPassword(t *testing.T) {
	s, _ := newAuthService(newMemDB(), false)
	ctx := context.Background()
	u, err := s.Register(ctx, "Admin", "admin@example.com", bootstrap.AdminPassword, model.RoleAdmin)
	require.NoError(t, err)

	def, err := s.IsDefaultPassword(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, def)

	require.NoError(t, s.SetPassword(ctx, u.ID, "changed"))
	def, err = s.IsDefaultPassword(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, def)
}

func TestUpdateProfileRechecksEmailExcludingSelf(t *testing.T) {
	s, _ := newAuthService(newMemDB(), false)
	ctx := context.Background()
	a, err := s.Register(ctx, "A", "a@example.com", "pw", "")
	require.NoError(t, err)
	_, err = s.Register(ctx, "B", "b@example.com", "pw", "")
	require.NoError(t, err)

	got, err := s.UpdateProfile(ctx, a.ID, "A2", "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "A2", got.Name)

	_, err = s.UpdateProfile(ctx, a.ID, "A2", "b@example.com")
	assert.ErrorIs(t, err, repository.ErrEmailExists)
}

func TestReplaceRoles(t *testing.T) {
	s, _ := newAuthService(newMemDB(), false)
	ctx := context.Background()
	u, err := s.Register(ctx, "A", "a@example.com", "pw", "")
	require.NoError(t, err)

	got, err := s.ReplaceRoles(ctx, u.ID, []string{model.RoleApprover, model.RoleAdmin})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{model.RoleApprover, model.RoleAdmin}, got.Roles)

	_, err = s.ReplaceRoles(ctx, u.ID, []string{"Ghost"})
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestDeleteUserReferencedAsApproverIsRestricted(t *testing.T) {
	db := newMemDB()
	s, _ := newAuthService(db, false)
	ctx := context.Background()
	u, err := s.Register(ctx, "Approver", "ap@example.com", "pw", model.RoleApprover)
	require.NoError(t, err)
	reports := newReportService(db)
	rep, err := reports.Create(ctx, siteVisit())
	require.NoError(t, err)
	_, err = reports.Approve(ctx, rep.ID, u.ID, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteUser(ctx, u.ID), repository.ErrConflict)
	assert.Contains(t, db.users, u.ID)
}

func TestSessionRoundTripAndRevocation(t *testing.T) {
	s, sessions := newAuthService(newMemDB(), false)
	ctx := context.Background()
	u, err := s.Register(ctx, "A", "a@example.com", "pw", model.RoleApprover)
	require.NoError(t, err)

	tok, err := s.EstablishSession(u)
	require.NoError(t, err)
	claims, err := utils.ParseSessionToken("test-secret", tok.Token)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, u.ID, id)
	assert.Equal(t, []string{model.RoleApprover}, claims.Roles)
	assert.WithinDuration(t, time.Now().Add(8*time.Hour), tok.Exp, time.Minute)

	require.NoError(t, s.TerminateSession(ctx, tok.ID, tok.Exp))
	assert.Contains(t, sessions.revoked, tok.ID)
}
