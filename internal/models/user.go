package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             uuid.UUID `json:"id" db:"id"`
	Username       string    `json:"username" db:"username"`
	Email          string    `json:"email" db:"email"`
	HashedPassword string    `json:"-" db:"password_hash"`
	Role           Role      `json:"role" db:"role"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

// Principal is the authenticated caller of a manager operation.
type Principal struct {
	UserID   uuid.UUID
	Username string
	Role     Role
}

// Name is what gets recorded as changedBy in status history.
func (p Principal) Name() string {
	if p.Username != "" {
		return p.Username
	}
	return p.UserID.String()
}
