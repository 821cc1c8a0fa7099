package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codescope/codescope/internal/domain"
	"github.com/codescope/codescope/internal/domain/reviewresult"
	"github.com/codescope/codescope/internal/domain/reviewtask"
	"github.com/codescope/codescope/internal/port/database"
	"github.com/codescope/codescope/internal/port/membership"
)

// ResultService exposes recorded review findings and their closure loop.
type ResultService struct {
	store   database.Store
	members membership.Checker
	log     *slog.Logger
}

// NewResultService creates a new ResultService.
func NewResultService(store database.Store, members membership.Checker, log *slog.Logger) *ResultService {
	return &ResultService{store: store, members: members, log: log}
}

// taskForActor loads a task and checks the actor may see its project.
func (s *ResultService) taskForActor(ctx context.Context, actor, taskID string) (*reviewtask.Task, error) {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := requireMember(ctx, s.members, t.ProjectID, actor); err != nil {
		return nil, err
	}
	return t, nil
}

// GetByTask returns the result recorded for a task.
func (s *ResultService) GetByTask(ctx context.Context, actor, taskID string) (*reviewresult.Result, error) {
	if _, err := s.taskForActor(ctx, actor, taskID); err != nil {
		return nil, err
	}
	return s.store.GetResultByTask(ctx, taskID)
}

// AddSingleFileIssue records one finding against a specific file version.
func (s *ResultService) AddSingleFileIssue(ctx context.Context, actor, taskID, versionID string, fields reviewresult.IssueFields) (*reviewresult.SingleFileIssue, error) {
	if err := fields.Validate(); err != nil {
		return nil, err
	}
	if versionID == "" {
		return nil, fmt.Errorf("code_file_version_id is required: %w", domain.ErrValidation)
	}
	if _, err := s.taskForActor(ctx, actor, taskID); err != nil {
		return nil, err
	}
	r, err := s.store.GetResultByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return s.store.AddSingleFileIssue(ctx, r.ID, versionID, fields)
}

// AddCrossFileIssue records one finding spanning multiple file versions.
func (s *ResultService) AddCrossFileIssue(ctx context.Context, actor, taskID string, fields reviewresult.IssueFields, affected []reviewresult.AffectedVersion) (*reviewresult.CrossFileIssue, error) {
	if err := fields.Validate(); err != nil {
		return nil, err
	}
	if len(affected) < 2 {
		return nil, fmt.Errorf("cross-file issues need at least two affected versions: %w", domain.ErrValidation)
	}
	if _, err := s.taskForActor(ctx, actor, taskID); err != nil {
		return nil, err
	}
	r, err := s.store.GetResultByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return s.store.AddCrossFileIssue(ctx, r.ID, fields, affected)
}

// Issues returns both kinds of findings recorded under a task's result.
func (s *ResultService) Issues(ctx context.Context, actor, taskID string) ([]reviewresult.SingleFileIssue, []reviewresult.CrossFileIssue, error) {
	if _, err := s.taskForActor(ctx, actor, taskID); err != nil {
		return nil, nil, err
	}
	r, err := s.store.GetResultByTask(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}

	single, err := s.store.ListSingleFileIssues(ctx, r.ID)
	if err != nil {
		return nil, nil, err
	}
	cross, err := s.store.ListCrossFileIssues(ctx, r.ID)
	if err != nil {
		return nil, nil, err
	}
	return single, cross, nil
}

// ResolveIssue advances an issue along open -> in_progress -> terminal.
// The taskID scopes the membership check; the issue itself is addressed
// by ID.
func (s *ResultService) ResolveIssue(ctx context.Context, actor, taskID, issueID string, to reviewresult.IssueStatus) error {
	if _, err := s.taskForActor(ctx, actor, taskID); err != nil {
		return err
	}
	if err := s.store.ResolveIssue(ctx, issueID, to); err != nil {
		return err
	}
	s.log.Info("issue status changed", "issue_id", issueID, "status", to, "actor", actor)
	return nil
}
