package rbac

import "calling-assistant/internal/auth"

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
	RoleAgent = auth.RoleAgent // integration channel, opt-in only
)

func IsAdmin(role string) bool { return role == RoleAdmin }
