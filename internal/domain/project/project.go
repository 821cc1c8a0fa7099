// Package project defines the Project root aggregate and its membership.
package project

import (
	"fmt"
	"strings"
	"time"

	"github.com/codescope/codescope/internal/domain"
)

// Role of a member within a project team.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleArchitect Role = "architect"
	RoleDeveloper Role = "developer"
)

// Project is the root aggregate. Deleting a project cascades to every
// code file, version, snapshot, review task, result and issue beneath it.
type Project struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Description         string    `json:"description,omitempty"`
	ProgrammingLanguage string    `json:"programming_language,omitempty"`
	LocalPath           string    `json:"local_path,omitempty"`
	OwnerID             string    `json:"owner_id"`
	CreatedAt           time.Time `json:"created_at"`
}

// Member links a user to a project with a role. Keyed by
// (project_id, user_id); a user holds one role per project.
type Member struct {
	ProjectID string    `json:"project_id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	JoinedAt  time.Time `json:"joined_at"`
}

// CreateRequest holds the fields needed to create a project.
type CreateRequest struct {
	Name                string `json:"name"`
	Description         string `json:"description,omitempty"`
	ProgrammingLanguage string `json:"programming_language,omitempty"`
	LocalPath           string `json:"local_path,omitempty"`
}

// Validate checks a CreateRequest before it reaches storage.
func (r CreateRequest) Validate() error {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return fmt.Errorf("name is required: %w", domain.ErrValidation)
	}
	if len(name) > 200 {
		return fmt.Errorf("name exceeds 200 characters: %w", domain.ErrValidation)
	}
	if len(r.Description) > 2000 {
		return fmt.Errorf("description exceeds 2000 characters: %w", domain.ErrValidation)
	}
	return nil
}

// ValidRole reports whether r is a known member role.
func ValidRole(r Role) bool {
	switch r {
	case RoleOwner, RoleArchitect, RoleDeveloper:
		return true
	}
	return false
}
