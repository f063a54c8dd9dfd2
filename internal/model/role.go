package model

import "fmt"

// Role is the access-role tag attached to a profile and a session.
// It is a closed enumeration; ParseRole rejects anything else.
type Role string

const (
	RoleAdmin   Role = "admin"
	RolePro     Role = "pro"
	RoleFree    Role = "free"
	RoleStudent Role = "student"
)

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RolePro, RoleFree, RoleStudent:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// ParseRole converts a stored or transmitted role name back into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("model: unknown role %q", s)
	}
	return r, nil
}
