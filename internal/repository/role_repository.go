package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/trip-report-tracker/internal/model"
)

// RoleRepo manages roles and the role_users join.
type RoleRepo struct{ db *sql.DB }

func NewRoleRepo(db *sql.DB) *RoleRepo { return &RoleRepo{db: db} }

// GetByName returns ErrRoleNotFound for unknown names.
func (r *RoleRepo) GetByName(ctx context.Context, name string) (model.Role, error) {
	var ro model.Role
	err := r.db.QueryRowContext(ctx,
		"SELECT id, role_name, created_at, updated_at FROM roles WHERE role_name=? LIMIT 1", name).
		Scan(&ro.ID, &ro.Name, &ro.CreatedAt, &ro.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Role{}, ErrRoleNotFound
	}
	return ro, err
}

// List returns all roles ordered by name.
func (r *RoleRepo) List(ctx context.Context) ([]model.Role, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, role_name, created_at, updated_at FROM roles ORDER BY role_name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []model.Role
	for rows.Next() {
		var ro model.Role
		if err := rows.Scan(&ro.ID, &ro.Name, &ro.CreatedAt, &ro.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, ro)
	}
	return roles, rows.Err()
}

// Ensure creates the role when missing and returns it.
func (r *RoleRepo) Ensure(ctx context.Context, name string) (model.Role, error) {
	if _, err := r.db.ExecContext(ctx, "INSERT IGNORE INTO roles (role_name) VALUES (?)", name); err != nil {
		return model.Role{}, err
	}
	return r.GetByName(ctx, name)
}

// Assign adds a role to a user; assigning twice is a no-op.
func (r *RoleRepo) Assign(ctx context.Context, userID, roleID uint64) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT IGNORE INTO role_users (role_id, user_id) VALUES (?,?)", roleID, userID)
	if isMissingParent(err) {
		return ErrInvalidReference
	}
	return err
}

// ReplaceForUser deletes every assignment of the user and inserts the
// named roles.  Unknown names abort the whole replacement.
func (r *RoleRepo) ReplaceForUser(ctx context.Context, userID uint64, names []string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM users WHERE id=? FOR UPDATE", userID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}

		ids, err := roleIDs(ctx, tx, names)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM role_users WHERE user_id=?", userID); err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO role_users (role_id, user_id) VALUES (?,?)", id, userID); err != nil {
				return err
			}
		}
		return nil
	})
}

// NamesForUser returns the user's role names ordered alphabetically.
func (r *RoleRepo) NamesForUser(ctx context.Context, userID uint64) ([]string, error) {
	return roleNamesFor(ctx, r.db, userID)
}

func roleIDs(ctx context.Context, q dbtx, names []string) ([]uint64, error) {
	uniq := make([]string, 0, len(names))
	seen := map[string]bool{}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		uniq = append(uniq, n)
	}
	if len(uniq) == 0 {
		return nil, nil
	}
	args := make([]any, len(uniq))
	for i, n := range uniq {
		args[i] = n
	}
	rows, err := q.QueryContext(ctx,
		"SELECT id FROM roles WHERE role_name IN ("+placeholders(len(uniq))+")", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) != len(uniq) {
		return nil, ErrRoleNotFound
	}
	return ids, nil
}
