// Package bootstrap prepares the primary database at process start: it
// applies migrations under a bounded retry and makes sure the default
// administrator exists.  Every step is idempotent.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/trip-report-tracker/internal/database"
	"github.com/iliyamo/trip-report-tracker/internal/model"
	"github.com/iliyamo/trip-report-tracker/internal/repository"
	"github.com/iliyamo/trip-report-tracker/internal/utils"
)

// Default administrator credential.  The password is the well-known
// recovery value and is logged whenever it is (re)applied.
const (
	AdminEmail    = "admin@example.com"
	AdminName     = "Administrator"
	AdminPassword = "123456"
)

// Migrator applies schema migrations.
type Migrator interface {
	Up(ctx context.Context) error
}

// Users is the user persistence bootstrap needs.
type Users interface {
	GetByEmail(ctx context.Context, email string) (model.User, error)
	Create(ctx context.Context, in repository.NewUser, roleIDs []uint64) (uint64, error)
	UpdatePassword(ctx context.Context, id uint64, hash string) error
}

// Roles is the role persistence bootstrap needs.
type Roles interface {
	Ensure(ctx context.Context, name string) (model.Role, error)
	Assign(ctx context.Context, userID, roleID uint64) error
}

// Options tunes Initialize.  Zero values take the defaults.
type Options struct {
	Attempts   int
	Delay      time.Duration
	BcryptCost int
	// ResetAdminPassword forces the admin password back to the default.
	ResetAdminPassword bool
	// Retryable decides which migration errors are worth another attempt.
	Retryable func(error) bool
	// Sleep waits between attempts; it returns early when ctx ends.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (o *Options) defaults() {
	if o.Attempts <= 0 {
		o.Attempts = 5
	}
	if o.Delay <= 0 {
		o.Delay = 3 * time.Second
	}
	if o.Retryable == nil {
		o.Retryable = database.IsTransient
	}
	if o.Sleep == nil {
		o.Sleep = sleep
	}
}

// Initialize migrates the schema and ensures the default administrator.
func Initialize(ctx context.Context, m Migrator, users Users, roles Roles, opts Options, log zerolog.Logger) error {
	opts.defaults()
	if err := Migrate(ctx, m, opts, log); err != nil {
		return err
	}
	return EnsureDefaultAdmin(ctx, users, roles, opts.ResetAdminPassword, opts.BcryptCost, log)
}

// Migrate runs m.Up, retrying transient failures with a fixed delay.
func Migrate(ctx context.Context, m Migrator, opts Options, log zerolog.Logger) error {
	opts.defaults()
	var err error
	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		if err = m.Up(ctx); err == nil {
			log.Info().Int("attempt", attempt).Msg("database migrated")
			return nil
		}
		if !opts.Retryable(err) || attempt == opts.Attempts {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", opts.Delay).Msg("migration failed; retrying")
		if serr := opts.Sleep(ctx, opts.Delay); serr != nil {
			return serr
		}
	}
	return fmt.Errorf("migrate: %w", err)
}

// EnsureDefaultAdmin creates the Admin role and the default admin account
// when missing.  With reset the existing admin password is forced back to
// the default.
func EnsureDefaultAdmin(ctx context.Context, users Users, roles Roles, reset bool, cost int, log zerolog.Logger) error {
	role, err := roles.Ensure(ctx, model.RoleAdmin)
	if err != nil {
		return fmt.Errorf("ensure admin role: %w", err)
	}
	u, err := users.GetByEmail(ctx, AdminEmail)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		hash, err := utils.HashPassword(AdminPassword, cost)
		if err != nil {
			return err
		}
		id, err := users.Create(ctx, repository.NewUser{Name: AdminName, Email: AdminEmail, PasswordHash: hash}, []uint64{role.ID})
		if err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
		log.Warn().Uint64("user_id", id).Str("email", AdminEmail).Str("password", AdminPassword).
			Msg("default administrator created; change the password")
		return nil
	case err != nil:
		return fmt.Errorf("load admin: %w", err)
	}

	if !u.HasRole(model.RoleAdmin) {
		if err := roles.Assign(ctx, u.ID, role.ID); err != nil {
			return fmt.Errorf("assign admin role: %w", err)
		}
	}
	if !reset {
		return nil
	}
	hash, err := utils.HashPassword(AdminPassword, cost)
	if err != nil {
		return err
	}
	if err := users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return fmt.Errorf("reset admin password: %w", err)
	}
	log.Warn().Uint64("user_id", u.ID).Str("email", AdminEmail).Str("password", AdminPassword).
		Msg("administrator password reset to default")
	return nil
}

// VerifyAdminPassword reports whether password matches the stored admin hash.
func VerifyAdminPassword(ctx context.Context, users Users, password string) (bool, error) {
	u, err := users.GetByEmail(ctx, AdminEmail)
	if err != nil {
		return false, err
	}
	return utils.VerifyPassword(u.PasswordHash, password), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
