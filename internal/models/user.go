package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the identity record behind a username. AuthRef links the record to
// the credential issued by the authentication collaborator.
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Email     *string   `json:"email,omitempty" db:"email"`
	AuthRef   *string   `json:"-" db:"auth_ref"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// UserPatch lists the fields ResolveOrCreate may touch on an existing user.
// Nil pointers leave the stored value alone.
type UserPatch struct {
	UpdatedAt time.Time
	AuthRef   *string
	Email     *string
}

// Profile is the public projection of a User.
type Profile struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email,omitempty"`
}

func (u *User) Profile() Profile {
	p := Profile{ID: u.ID, Username: u.Username}
	if u.Email != nil {
		p.Email = *u.Email
	}
	return p
}

// Credential is owned by the authentication collaborator; the messaging
// engine never reads it.
type Credential struct {
	AuthRef      string    `json:"authRef" db:"auth_ref"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}
