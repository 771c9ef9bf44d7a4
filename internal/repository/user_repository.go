package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/trip-report-tracker/internal/model"
)

// UserRepo reads and writes the users table and loads role names through
// role_users.
type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

// NewUser is the input to Create.  PasswordHash must already be a bcrypt
// digest.
type NewUser struct {
	Name         string
	Email        string
	PasswordHash string
}

const userColumns = "id,user_name,email,password,staff_serial_no,created_at,updated_at"

// NormalizeEmail trims and lower-cases an address the way it is stored.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts a user and assigns roleIDs in one transaction.
func (r *UserRepo) Create(ctx context.Context, in NewUser, roleIDs []uint64) (uint64, error) {
	var id uint64
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO users (user_name, email, password) VALUES (?,?,?)",
			strings.TrimSpace(in.Name), NormalizeEmail(in.Email), in.PasswordHash)
		if err != nil {
			if isDuplicate(err) {
				return ErrEmailExists
			}
			return err
		}
		lid, err := res.LastInsertId()
		if err != nil {
			return err
		}
		id = uint64(lid)
		for _, roleID := range roleIDs {
			if _, err := tx.ExecContext(ctx,
				"INSERT IGNORE INTO role_users (role_id, user_id) VALUES (?,?)", roleID, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetByEmail fetches a user by normalized email, roles included.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", NormalizeEmail(email)))
	if err != nil {
		return model.User{}, err
	}
	if u.Roles, err = roleNamesFor(ctx, r.db, u.ID); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// GetByID fetches a user by id, roles included.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
	if err != nil {
		return model.User{}, err
	}
	if u.Roles, err = roleNamesFor(ctx, r.db, u.ID); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// List returns every user ordered by name with their roles.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY user_name, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	byUser, err := r.roleIndex(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].Roles = byUser[users[i].ID]
		if users[i].Roles == nil {
			users[i].Roles = []string{}
		}
	}
	return users, nil
}

func (r *UserRepo) roleIndex(ctx context.Context) (map[uint64][]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT ru.user_id, ro.role_name FROM role_users ru JOIN roles ro ON ro.id = ru.role_id ORDER BY ro.role_name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	idx := map[uint64][]string{}
	for rows.Next() {
		var uid uint64
		var name string
		if err := rows.Scan(&uid, &name); err != nil {
			return nil, err
		}
		idx[uid] = append(idx[uid], name)
	}
	return idx, rows.Err()
}

// EmailTaken reports whether another user (id != excludeID) owns email.
func (r *UserRepo) EmailTaken(ctx context.Context, email string, excludeID uint64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE email=? AND id<>?", NormalizeEmail(email), excludeID).Scan(&n)
	return n > 0, err
}

// UpdateProfile changes name and email.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, name, email string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET user_name=?, email=? WHERE id=?", strings.TrimSpace(name), NormalizeEmail(email), id)
	if err != nil {
		if isDuplicate(err) {
			return ErrEmailExists
		}
		return err
	}
	return r.checkAffected(ctx, res, id)
}

// UpdatePassword stores a new bcrypt hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, hash string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE users SET password=? WHERE id=?", hash, id)
	if err != nil {
		return err
	}
	return r.checkAffected(ctx, res, id)
}

// SetStaffSerialNo links (or, with nil, unlinks) an external staff record.
func (r *UserRepo) SetStaffSerialNo(ctx context.Context, id uint64, serialNo *string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE users SET staff_serial_no=? WHERE id=?", nullString(serialNo), id)
	if err != nil {
		return err
	}
	return r.checkAffected(ctx, res, id)
}

// Delete removes the user's role assignments and then the user.  A user
// still referenced by reports or comments cannot be deleted.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM role_users WHERE user_id=?", id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
		if err != nil {
			if isRowReferenced(err) {
				return ErrConflict
			}
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrUserNotFound
		}
		return nil
	})
}

// checkAffected turns a zero-row update into ErrUserNotFound when the row
// is really missing.  MySQL reports 0 affected rows for no-op updates too.
func (r *UserRepo) checkAffected(ctx context.Context, res sql.Result, id uint64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var one int
	err = r.db.QueryRowContext(ctx, "SELECT 1 FROM users WHERE id=?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		u     model.User
		staff sql.NullString
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &staff, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrUserNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	u.StaffSerialNo = stringPtr(staff)
	return u, nil
}

func roleNamesFor(ctx context.Context, q dbtx, userID uint64) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT ro.role_name FROM role_users ru JOIN roles ro ON ro.id = ru.role_id WHERE ru.user_id=? ORDER BY ro.role_name",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
