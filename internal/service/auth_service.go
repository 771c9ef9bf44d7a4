package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iliyamo/trip-report-tracker/internal/bootstrap"
	"github.com/iliyamo/trip-report-tracker/internal/model"
	"github.com/iliyamo/trip-report-tracker/internal/repository"
	"github.com/iliyamo/trip-report-tracker/internal/utils"
)

// UserStore is the persistence the identity services need.
type UserStore interface {
	Create(ctx context.Context, in repository.NewUser, roleIDs []uint64) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	List(ctx context.Context) ([]model.User, error)
	EmailTaken(ctx context.Context, email string, excludeID uint64) (bool, error)
	UpdateProfile(ctx context.Context, id uint64, name, email string) error
	UpdatePassword(ctx context.Context, id uint64, hash string) error
	SetStaffSerialNo(ctx context.Context, id uint64, serialNo *string) error
	Delete(ctx context.Context, id uint64) error
}

// RoleStore resolves and assigns roles.
type RoleStore interface {
	GetByName(ctx context.Context, name string) (model.Role, error)
	List(ctx context.Context) ([]model.Role, error)
	ReplaceForUser(ctx context.Context, userID uint64, names []string) error
}

// SessionStore records revoked session ids.
type SessionStore interface {
	Revoke(ctx context.Context, jti string, exp time.Time) error
}

// AuthOptions tunes AuthService.
type AuthOptions struct {
	Secret      string
	TTL         time.Duration
	BcryptCost  int
	StrictRoles bool
	Now         func() time.Time
}

// AuthService authenticates users, issues sessions and runs the admin
// user-management operations.
type AuthService struct {
	users    UserStore
	roles    RoleStore
	sessions SessionStore
	opts     AuthOptions
	log      zerolog.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService wires the service.  A nil Now defaults to time.Now.
func NewAuthService(users UserStore, roles RoleStore, sessions SessionStore, opts AuthOptions, log zerolog.Logger) *AuthService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TTL <= 0 {
		opts.TTL = 8 * time.Hour
	}
	return &AuthService{users: users, roles: roles, sessions: sessions, opts: opts,
		log: log.With().Str("component", "auth").Logger()}
}

// Authenticate returns the user whose normalized email matches and whose
// stored hash verifies password.  Every failure is ErrInvalidCredentials.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (model.User, error) {
	email = repository.NormalizeEmail(email)
	if email == "" || password == "" {
		return model.User{}, ErrInvalidCredentials
	}
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		// spend the same bcrypt time as a wrong password
		utils.VerifyPassword(s.unknownUserHash(), password)
		return model.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return model.User{}, err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return model.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// unknownUserHash is a hash at the configured cost that no password the
// caller supplies is checked against for real.
func (s *AuthService) unknownUserHash() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = utils.HashPassword(uuid.NewString(), s.opts.BcryptCost)
	})
	return s.dummyHash
}

// EstablishSession signs a fresh session token for u.
func (s *AuthService) EstablishSession(u model.User) (utils.SessionToken, error) {
	return utils.NewSessionToken(s.opts.Secret, utils.SessionSubject{
		UserID: u.ID, Name: u.Name, Email: u.Email, Roles: u.Roles,
	}, s.opts.TTL, "", s.opts.Now())
}

// TerminateSession revokes the session id until its natural expiry.
func (s *AuthService) TerminateSession(ctx context.Context, jti string, exp time.Time) error {
	if s.sessions == nil {
		return nil
	}
	return s.sessions.Revoke(ctx, jti, exp)
}

// Register creates an account with the named role.  An unknown role is
// skipped unless strict role assignment is on, in which case nothing is
// written and ErrUnknownRole is returned.
func (s *AuthService) Register(ctx context.Context, name, email, password, role string) (model.User, error) {
	name = strings.TrimSpace(name)
	email = repository.NormalizeEmail(email)
	switch {
	case name == "":
		return model.User{}, invalid("name", "is required")
	case email == "" || !strings.Contains(email, "@"):
		return model.User{}, invalid("email", "is invalid")
	case password == "":
		return model.User{}, invalid("password", "is required")
	}
	if role == "" {
		role = model.RoleUser
	}

	taken, err := s.users.EmailTaken(ctx, email, 0)
	if err != nil {
		return model.User{}, err
	}
	if taken {
		return model.User{}, repository.ErrEmailExists
	}

	var roleIDs []uint64
	r, err := s.roles.GetByName(ctx, role)
	switch {
	case err == nil:
		roleIDs = []uint64{r.ID}
	case errors.Is(err, repository.ErrRoleNotFound):
		if s.opts.StrictRoles {
			return model.User{}, ErrUnknownRole
		}
		s.log.Warn().Str("role", role).Str("email", email).Msg("unknown role at registration; user created without it")
	default:
		return model.User{}, err
	}

	hash, err := utils.HashPassword(password, s.opts.BcryptCost)
	if err != nil {
		return model.User{}, err
	}
	id, err := s.users.Create(ctx, repository.NewUser{Name: name, Email: email, PasswordHash: hash}, roleIDs)
	if err != nil {
		return model.User{}, err
	}
	return s.users.GetByID(ctx, id)
}

// ChangePassword requires the current password to verify.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint64, oldPassword, newPassword string) error {
	if newPassword == "" {
		return invalid("new_password", "is required")
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !utils.VerifyPassword(u.PasswordHash, oldPassword) {
		return ErrInvalidCredentials
	}
	return s.setPassword(ctx, userID, newPassword)
}

// IsDefaultPassword reports whether the user still uses the bootstrap password.
func (s *AuthService) IsDefaultPassword(ctx context.Context, userID uint64) (bool, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return utils.VerifyPassword(u.PasswordHash, bootstrap.AdminPassword), nil
}

// CurrentUser loads the user behind a session.
func (s *AuthService) CurrentUser(ctx context.Context, userID uint64) (model.User, error) {
	return s.users.GetByID(ctx, userID)
}

// ListUsers returns all users with roles, ordered by name.
func (s *AuthService) ListUsers(ctx context.Context) ([]model.User, error) { return s.users.List(ctx) }

// ListRoles returns all roles.
func (s *AuthService) ListRoles(ctx context.Context) ([]model.Role, error) { return s.roles.List(ctx) }

// UpdateProfile changes name and email, re-checking email uniqueness
// against every other user.
func (s *AuthService) UpdateProfile(ctx context.Context, userID uint64, name, email string) (model.User, error) {
	name = strings.TrimSpace(name)
	email = repository.NormalizeEmail(email)
	if name == "" {
		return model.User{}, invalid("name", "is required")
	}
	if email == "" || !strings.Contains(email, "@") {
		return model.User{}, invalid("email", "is invalid")
	}
	taken, err := s.users.EmailTaken(ctx, email, userID)
	if err != nil {
		return model.User{}, err
	}
	if taken {
		return model.User{}, repository.ErrEmailExists
	}
	if err := s.users.UpdateProfile(ctx, userID, name, email); err != nil {
		return model.User{}, err
	}
	return s.users.GetByID(ctx, userID)
}

// SetPassword force-sets a password without the old-password check.
func (s *AuthService) SetPassword(ctx context.Context, userID uint64, password string) error {
	if password == "" {
		return invalid("password", "is required")
	}
	return s.setPassword(ctx, userID, password)
}

// ReplaceRoles swaps the user's whole role set.
func (s *AuthService) ReplaceRoles(ctx context.Context, userID uint64, roles []string) (model.User, error) {
	err := s.roles.ReplaceForUser(ctx, userID, roles)
	if errors.Is(err, repository.ErrRoleNotFound) {
		return model.User{}, ErrUnknownRole
	}
	if err != nil {
		return model.User{}, err
	}
	return s.users.GetByID(ctx, userID)
}

// DeleteUser removes the user and its role assignments.
func (s *AuthService) DeleteUser(ctx context.Context, userID uint64) error {
	return s.users.Delete(ctx, userID)
}

func (s *AuthService) setPassword(ctx context.Context, userID uint64, password string) error {
	hash, err := utils.HashPassword(password, s.opts.BcryptCost)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userID, hash)
}
