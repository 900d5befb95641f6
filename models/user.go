package models

import (
	"time"

	"github.com/google/uuid"
)

// Role tags carried by the external identity issuer.
const (
	RoleProvider = "provider"
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// User is the local cache of an externally-verified identity. Account
// lifecycle (signup, passwords, email) is owned by the identity issuer;
// this subsystem only reads rows and flips the Online flag.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Fullname  string    `json:"fullname"`
	Email     string    `gorm:"unique;not null" json:"email"`
	Role      string    `gorm:"not null;default:customer" json:"role"`
	Online    bool      `json:"online"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ParticipantSummary is the slice of a user embedded in conversation
// payloads.
type ParticipantSummary struct {
	ID       uuid.UUID `json:"id"`
	Fullname string    `json:"fullname"`
	Email    string    `json:"email"`
	Role     string    `json:"role"`
}

func (u *User) Summary() ParticipantSummary {
	return ParticipantSummary{
		ID:       u.ID,
		Fullname: u.Fullname,
		Email:    u.Email,
		Role:     u.Role,
	}
}
