package model

import "time"

// Credential is the local credential authority's record of an identity.
// PasswordHash is a bcrypt hash and is never serialized.
type Credential struct {
	ID           string    `json:"id"           db:"id"`
	Email        string    `json:"email"        db:"email"`
	PasswordHash string    `json:"-"            db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt"    db:"created_at"`
}
