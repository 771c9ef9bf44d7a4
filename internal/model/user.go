package model

import "time"

// User represents an application account as stored in the `users`
// table.  Email is unique and compared case-insensitively at login.
// PasswordHash is a bcrypt digest and is never serialized.
//
// Fields:
//  ID            – primary key identifier of the user.
//  Name          – display name.
//  Email         – unique email address, stored lower-cased.
//  PasswordHash  – bcrypt hashed password.
//  StaffSerialNo – optional link to an external staff record.
//  Roles         – names of the roles assigned through role_users.
//  CreatedAt     – timestamp of creation.
//  UpdatedAt     – timestamp of last update.
type User struct {
	ID            uint64    `json:"id"`              // users.id
	Name          string    `json:"name"`            // users.user_name
	Email         string    `json:"email"`           // users.email
	PasswordHash  string    `json:"-"`               // users.password
	StaffSerialNo *string   `json:"staff_serial_no"` // users.staff_serial_no (nullable)
	Roles         []string  `json:"roles"`           // role_users -> roles.role_name
	CreatedAt     time.Time `json:"created_at"`      // users.created_at
	UpdatedAt     time.Time `json:"updated_at"`      // users.updated_at
}

// HasRole reports whether the user carries the named role.
func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// UserSummary is the reduced user shape embedded in reports and comments.
type UserSummary struct {
	ID    uint64 `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Role represents a row in the `roles` table.
type Role struct {
	ID        uint64    `json:"id"`         // roles.id
	Name      string    `json:"name"`       // roles.role_name
	CreatedAt time.Time `json:"created_at"` // roles.created_at
	UpdatedAt time.Time `json:"updated_at"` // roles.updated_at
}

// RoleAssignment is the explicit join between roles and users.  It carries
// its own timestamps so assignment history survives role renames.
type RoleAssignment struct {
	ID        uint64    // role_users.id
	RoleID    uint64    // role_users.role_id
	UserID    uint64    // role_users.user_id
	CreatedAt time.Time // role_users.created_at
	UpdatedAt time.Time // role_users.updated_at
}

// Well-known role names seeded by the initial migration.
const (
	RoleAdmin    = "Admin"
	RoleUser     = "User"
	RoleApprover = "Approver"
)
