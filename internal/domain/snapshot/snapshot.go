// Package snapshot defines project version snapshots: named, immutable
// sets of code file versions representing the project at a point in time.
package snapshot

import (
	"fmt"
	"strings"
	"time"

	"github.com/codescope/codescope/internal/domain"
	"github.com/codescope/codescope/internal/domain/codefile"
)

// Snapshot is immutable once the client finishes streaming uploads into it.
// There is no stored "complete" flag; the upload boundary is a client-side
// convention.
type Snapshot struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateRequest holds the fields needed to open a snapshot.
type CreateRequest struct {
	ProjectID   string `json:"project_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Validate checks a CreateRequest before it reaches storage.
func (r CreateRequest) Validate() error {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return fmt.Errorf("name is required: %w", domain.ErrValidation)
	}
	if len(name) > 64 {
		return fmt.Errorf("name exceeds 64 characters: %w", domain.ErrValidation)
	}
	return nil
}

// AttachResult reports whether an upload matched existing content (dedup
// hit, no new version row) or created a fresh version. The association row
// is created in both cases.
type AttachResult struct {
	Version *codefile.Version `json:"version"`
	Created bool              `json:"created"`
}

// FileEntry is one row of a snapshot detail view: the file joined with the
// exact version the snapshot holds.
type FileEntry struct {
	CodeFileID        string    `json:"code_file_id"`
	FilePath          string    `json:"file_path"`
	FileSize          string    `json:"file_size"`
	VersionID         string    `json:"code_file_version_id"`
	ChangeDescription string    `json:"change_description,omitempty"`
	UpdatedBy         string    `json:"updated_by"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Detail is the full read-only view of a snapshot.
type Detail struct {
	Snapshot Snapshot    `json:"snapshot"`
	Files    []FileEntry `json:"file_list_info"`
}
