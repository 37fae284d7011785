// Package model defines domain entities for the application.
package model

import (
	"strconv"
	"time"
)

// Role is the workspace role a user registers with.
type Role string

const (
	RoleStudent    Role = "student"
	RoleMentor     Role = "mentor"
	RoleInstructor Role = "instructor"
	RoleHOD        Role = "hod"
	RoleAdmin      Role = "admin"
)

// ValidRoles lists every assignable role.
var ValidRoles = []Role{RoleStudent, RoleMentor, RoleInstructor, RoleHOD, RoleAdmin}

// IsValid checks if the role is known.
func (r Role) IsValid() bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// User is a registered platform user. Code is the minted human-readable
// identifier and never changes after registration.
type User struct {
	ID           string    `json:"id"`
	Code         string    `json:"code"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// CachedUser is the public projection of a user stored in Redis.
// Uses string types for Redis hash compatibility.
type CachedUser struct {
	ID        string `redis:"id"`
	Email     string `redis:"email"`
	Name      string `redis:"name"`
	Role      string `redis:"role"`
	CreatedAt string `redis:"created_at"` // Unix timestamp
}

// ToUser converts CachedUser to the User domain model.
func (c *CachedUser) ToUser(code string) *User {
	user := &User{
		ID:    c.ID,
		Code:  code,
		Email: c.Email,
		Name:  c.Name,
		Role:  Role(c.Role),
	}

	if c.CreatedAt != "" {
		if ts, err := strconv.ParseInt(c.CreatedAt, 10, 64); err == nil {
			user.CreatedAt = time.Unix(ts, 0).UTC()
		}
	}

	return user
}

// ToCachedUser converts User to its cached projection. The password hash
// is never cached.
func (u *User) ToCachedUser() *CachedUser {
	return &CachedUser{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      string(u.Role),
		CreatedAt: strconv.FormatInt(u.CreatedAt.Unix(), 10),
	}
}
