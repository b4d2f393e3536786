package model

import "github.com/google/uuid"

type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

// Identity is the caller as asserted by the identity provider's access token.
// The ledger never stores credentials or profile data.
type Identity struct {
	UserID uuid.UUID `json:"user_id"`
	Role   UserRole  `json:"role"`
}

func (i Identity) IsAdmin() bool {
	return i.Role == UserRoleAdmin
}
