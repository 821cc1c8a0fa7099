// Package user defines the User identity entity.
//
// CodeScope stores user identifiers supplied by the identity provider but
// does not validate credentials; authentication is an external collaborator.
package user

import "time"

// User is an opaque identity referenced by updated_by / created_by columns.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateRequest holds the fields needed to register a user.
type CreateRequest struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}
