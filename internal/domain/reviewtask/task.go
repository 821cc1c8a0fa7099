// Package reviewtask defines review tasks and their version bindings.
//
// A task references an arbitrary subset of code file versions across files
// through tagged association rows. Bindings are mutable only while the task
// is pending or running; completed and failed are terminal and freeze the
// association set.
package reviewtask

import (
	"fmt"
	"strings"
	"time"

	"github.com/codescope/codescope/internal/domain"
)

// Status represents the review task state machine:
// pending -> running -> {completed, failed}.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s freezes the task's version bindings.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether from -> to is a legal status move.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusRunning || to == StatusFailed
	case StatusRunning:
		return to == StatusCompleted || to == StatusFailed
	}
	return false
}

// Scope is the breadth of a review: it decides whether findings are
// recorded as single-file or cross-file issues.
type Scope string

const (
	ScopeProject   Scope = "project"
	ScopeDirectory Scope = "directory"
	ScopeFile      Scope = "file"
)

// ValidScope reports whether s is a known review scope.
func ValidScope(s Scope) bool {
	return s == ScopeProject || s == ScopeDirectory || s == ScopeFile
}

// TaskType categorizes what the review looks for.
type TaskType string

const (
	TypeFull        TaskType = "full"
	TypeQuality     TaskType = "quality"
	TypePerformance TaskType = "performance"
	TypeSecurity    TaskType = "security"
)

// ValidTaskType reports whether t is a known task type.
func ValidTaskType(t TaskType) bool {
	switch t {
	case TypeFull, TypeQuality, TypePerformance, TypeSecurity:
		return true
	}
	return false
}

// VersionTag marks a bound version as the review baseline or the content
// under review, supporting diff-style reviews against a prior state.
type VersionTag string

const (
	TagBase    VersionTag = "base_version"
	TagCurrent VersionTag = "current_version"
)

// ValidTag reports whether t is a known version tag.
func ValidTag(t VersionTag) bool {
	return t == TagBase || t == TagCurrent
}

// Task is a user-launched review over a set of bound versions.
type Task struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	Scope        Scope     `json:"review_scope"`
	Name         string    `json:"task_name"`
	Type         TaskType  `json:"task_type"`
	Status       Status    `json:"task_status"`
	Requirements string    `json:"requirements_description,omitempty"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}

// VersionBinding is one tagged task <-> version association row.
type VersionBinding struct {
	TaskID    string     `json:"review_task_id"`
	VersionID string     `json:"version_id"`
	Tag       VersionTag `json:"version_type"`
}

// CreateRequest holds the fields needed to launch a review task.
type CreateRequest struct {
	ProjectID    string   `json:"project_id"`
	Scope        Scope    `json:"review_scope"`
	Name         string   `json:"task_name"`
	Type         TaskType `json:"task_type"`
	Requirements string   `json:"requirements_description,omitempty"`
}

// Validate checks a CreateRequest before it reaches storage.
func (r CreateRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("task_name is required: %w", domain.ErrValidation)
	}
	if len(r.Name) > 64 {
		return fmt.Errorf("task_name exceeds 64 characters: %w", domain.ErrValidation)
	}
	if !ValidScope(r.Scope) {
		return fmt.Errorf("unknown review_scope %q: %w", r.Scope, domain.ErrValidation)
	}
	if !ValidTaskType(r.Type) {
		return fmt.Errorf("unknown task_type %q: %w", r.Type, domain.ErrValidation)
	}
	return nil
}
