// Package reviewresult defines review results and their issue records.
//
// A result is one-to-one with a review task and carries aggregate counts;
// detail lives in single-file issues (file scope, or per-file findings
// within a wider scope) and cross-file issues (findings spanning files,
// with affected-version links). The affected-file set of a result is fixed
// when the result is recorded; it is never recomputed from the task's live
// associations.
package reviewresult

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/codescope/codescope/internal/domain"
	"github.com/codescope/codescope/internal/domain/reviewtask"
)

// Severity buckets findings for the aggregate counts.
type Severity string

const (
	SeverityCritical   Severity = "critical"
	SeverityMajor      Severity = "major"
	SeverityMedium     Severity = "medium"
	SeveritySuggestion Severity = "suggestion"
)

// ValidSeverity reports whether s is a known severity.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityCritical, SeverityMajor, SeverityMedium, SeveritySuggestion:
		return true
	}
	return false
}

// Category classifies what kind of problem an issue describes.
type Category string

const (
	CategoryBadSmell        Category = "bad_smell"
	CategoryFunctionBug     Category = "function_bug"
	CategorySecurity        Category = "security_issue"
	CategoryPerformance     Category = "performance_issue"
	CategoryMaintainability Category = "maintainability_issue"
)

// ValidCategory reports whether c is a known issue category.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryBadSmell, CategoryFunctionBug, CategorySecurity,
		CategoryPerformance, CategoryMaintainability:
		return true
	}
	return false
}

// IssueStatus tracks the closure loop of a finding:
// open -> in_progress -> {closed, wont_resolve}.
type IssueStatus string

const (
	IssueOpen        IssueStatus = "open"
	IssueInProgress  IssueStatus = "in_progress"
	IssueClosed      IssueStatus = "closed"
	IssueWontResolve IssueStatus = "wont_resolve"
)

// Terminal reports whether s ends the closure loop and stamps resolved_at.
func (s IssueStatus) Terminal() bool {
	return s == IssueClosed || s == IssueWontResolve
}

// CanTransition reports whether from -> to is a legal issue status move.
// Anything else is a caller logic error, never retried.
func CanTransition(from, to IssueStatus) bool {
	switch from {
	case IssueOpen:
		return to == IssueInProgress
	case IssueInProgress:
		return to == IssueClosed || to == IssueWontResolve
	}
	return false
}

// Result is the one-to-one aggregate record for a completed review task.
// CountsBySeverity and CountsByCategory are denormalized tallies of the
// issue rows recorded beneath it. VersionID is set only for file scope.
type Result struct {
	ID               string           `json:"id"`
	TaskID           string           `json:"review_task_id"`
	Scope            reviewtask.Scope `json:"review_task_scope"`
	VersionID        string           `json:"code_file_version_id,omitempty"`
	CountsBySeverity map[string]int   `json:"counts_by_severity"`
	CountsByCategory map[string]int   `json:"counts_by_category"`
	Metadata         json.RawMessage  `json:"result_metadata,omitempty"`
	Elapsed          time.Duration    `json:"elapsed"`
	CreatedAt        time.Time        `json:"created_at"`
}

// RecordRequest holds the fields needed to record a task's result.
type RecordRequest struct {
	TaskID           string           `json:"review_task_id"`
	Scope            reviewtask.Scope `json:"review_task_scope"`
	VersionID        string           `json:"code_file_version_id,omitempty"`
	CountsBySeverity map[string]int   `json:"counts_by_severity"`
	CountsByCategory map[string]int   `json:"counts_by_category"`
	Metadata         json.RawMessage  `json:"result_metadata,omitempty"`
	Elapsed          time.Duration    `json:"elapsed"`
}

// Validate checks a RecordRequest before it reaches storage.
func (r RecordRequest) Validate() error {
	if r.TaskID == "" {
		return fmt.Errorf("review_task_id is required: %w", domain.ErrValidation)
	}
	if !reviewtask.ValidScope(r.Scope) {
		return fmt.Errorf("unknown review_task_scope %q: %w", r.Scope, domain.ErrValidation)
	}
	if r.Scope == reviewtask.ScopeFile && r.VersionID == "" {
		return fmt.Errorf("file-scoped results require code_file_version_id: %w", domain.ErrValidation)
	}
	if r.Scope != reviewtask.ScopeFile && r.VersionID != "" {
		return fmt.Errorf("code_file_version_id is only valid for file scope: %w", domain.ErrValidation)
	}
	return nil
}

// SingleFileIssue is a finding confined to one file version.
type SingleFileIssue struct {
	ID              string      `json:"id"`
	ResultID        string      `json:"review_result_id"`
	VersionID       string      `json:"code_file_version_id"`
	Category        Category    `json:"issue_type"`
	Severity        Severity    `json:"severity"`
	LineBegin       int         `json:"line_begin"`
	LineEnd         int         `json:"line_end"`
	CodeSnippet     string      `json:"code_snippet,omitempty"`
	Description     string      `json:"problem_description"`
	Suggestion      string      `json:"solution_suggestion,omitempty"`
	ConfidenceScore float64     `json:"confidence_score"`
	Status          IssueStatus `json:"process_situation"`
	ResolvedAt      *time.Time  `json:"resolved_at,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// CrossFileIssue is a finding spanning multiple file versions; the affected
// versions hang off it as AffectedVersion links.
type CrossFileIssue struct {
	ID              string            `json:"id"`
	ResultID        string            `json:"review_result_id"`
	Category        Category          `json:"issue_type"`
	Severity        Severity          `json:"severity"`
	Description     string            `json:"problem_description"`
	Suggestion      string            `json:"solution_suggestion,omitempty"`
	ConfidenceScore float64           `json:"confidence_score"`
	Status          IssueStatus       `json:"process_situation"`
	ResolvedAt      *time.Time        `json:"resolved_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	Affected        []AffectedVersion `json:"affected_versions,omitempty"`
}

// AffectedVersion links a cross-file issue to one involved file version.
// Context is free-form JSON the core never interprets.
type AffectedVersion struct {
	ID        string          `json:"id"`
	IssueID   string          `json:"cross_file_issue_id"`
	VersionID string          `json:"code_file_version_id"`
	Context   json.RawMessage `json:"context_metadata,omitempty"`
}

// IssueFields carries the common payload for adding an issue of either kind.
type IssueFields struct {
	Category        Category `json:"issue_type"`
	Severity        Severity `json:"severity"`
	LineBegin       int      `json:"line_begin,omitempty"`
	LineEnd         int      `json:"line_end,omitempty"`
	CodeSnippet     string   `json:"code_snippet,omitempty"`
	Description     string   `json:"problem_description"`
	Suggestion      string   `json:"solution_suggestion,omitempty"`
	ConfidenceScore float64  `json:"confidence_score"`
}

// Validate checks issue fields before they reach storage.
func (f IssueFields) Validate() error {
	if !ValidCategory(f.Category) {
		return fmt.Errorf("unknown issue_type %q: %w", f.Category, domain.ErrValidation)
	}
	if !ValidSeverity(f.Severity) {
		return fmt.Errorf("unknown severity %q: %w", f.Severity, domain.ErrValidation)
	}
	if strings.TrimSpace(f.Description) == "" {
		return fmt.Errorf("problem_description is required: %w", domain.ErrValidation)
	}
	if f.ConfidenceScore < 0 || f.ConfidenceScore > 1 {
		return fmt.Errorf("confidence_score must be within [0, 1]: %w", domain.ErrValidation)
	}
	return nil
}
