package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/codescope/codescope/internal/domain"
	"github.com/codescope/codescope/internal/domain/codefile"
	"github.com/codescope/codescope/internal/domain/project"
	"github.com/codescope/codescope/internal/domain/user"
	"github.com/codescope/codescope/internal/port/database"
	"github.com/codescope/codescope/internal/port/membership"
)

// syncWorkers bounds the per-batch concurrency of SyncFiles.
const syncWorkers = 8

// Invalidator lets the project service drop stale membership cache entries
// when the team changes.
type Invalidator interface {
	Invalidate(projectID, userID string)
}

// ProjectService handles project and membership business logic.
type ProjectService struct {
	store       database.Store
	members     membership.Checker
	invalidator Invalidator
	log         *slog.Logger
}

// NewProjectService creates a new ProjectService.
func NewProjectService(store database.Store, members membership.Checker, log *slog.Logger) *ProjectService {
	return &ProjectService{store: store, members: members, log: log}
}

// SetInvalidator wires the optional membership cache invalidation hook.
func (s *ProjectService) SetInvalidator(inv Invalidator) {
	s.invalidator = inv
}

// RegisterUser records an identity so it can own projects and author
// versions.
func (s *ProjectService) RegisterUser(ctx context.Context, req user.CreateRequest) (*user.User, error) {
	if strings.TrimSpace(req.Username) == "" {
		return nil, fmt.Errorf("username is required: %w", domain.ErrValidation)
	}
	return s.store.CreateUser(ctx, req)
}

// GetUser returns a user by ID.
func (s *ProjectService) GetUser(ctx context.Context, id string) (*user.User, error) {
	return s.store.GetUser(ctx, id)
}

// Create creates a project owned by the actor. The store enrolls the
// owner as a member atomically.
func (s *ProjectService) Create(ctx context.Context, actor string, req project.CreateRequest) (*project.Project, error) {
	if actor == "" {
		return nil, fmt.Errorf("missing actor identity: %w", domain.ErrForbidden)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p, err := s.store.CreateProject(ctx, actor, req)
	if err != nil {
		return nil, err
	}
	s.log.Info("project created", "project_id", p.ID, "owner_id", actor)
	return p, nil
}

// Get returns a project the actor belongs to.
func (s *ProjectService) Get(ctx context.Context, actor, id string) (*project.Project, error) {
	if err := requireMember(ctx, s.members, id, actor); err != nil {
		return nil, err
	}
	return s.store.GetProject(ctx, id)
}

// List returns the actor's projects.
func (s *ProjectService) List(ctx context.Context, actor string) ([]project.Project, error) {
	if actor == "" {
		return nil, fmt.Errorf("missing actor identity: %w", domain.ErrForbidden)
	}
	return s.store.ListProjects(ctx, actor)
}

// Delete removes a project and everything beneath it. Only the owner may
// delete.
func (s *ProjectService) Delete(ctx context.Context, actor, id string) error {
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if p.OwnerID != actor {
		return fmt.Errorf("only the owner may delete project %s: %w", id, domain.ErrForbidden)
	}

	if err := s.store.DeleteProject(ctx, id); err != nil {
		return err
	}
	s.log.Info("project deleted", "project_id", id, "owner_id", actor)
	return nil
}

// AddMember enrolls a user into the actor's project team.
func (s *ProjectService) AddMember(ctx context.Context, actor, projectID, userID string, role project.Role) (*project.Member, error) {
	if err := requireMember(ctx, s.members, projectID, actor); err != nil {
		return nil, err
	}
	if !project.ValidRole(role) {
		return nil, fmt.Errorf("unknown role %q: %w", role, domain.ErrValidation)
	}

	m, err := s.store.AddMember(ctx, projectID, userID, role)
	if err != nil {
		return nil, err
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate(projectID, userID)
	}
	return m, nil
}

// SyncFiles upserts a batch of file metadata entries scanned on the client
// side. Each entry succeeds or fails on its own; binary files are skipped.
// Results come back in input order.
func (s *ProjectService) SyncFiles(ctx context.Context, actor, projectID string, entries []codefile.SyncEntry) ([]codefile.SyncResult, error) {
	if err := requireMember(ctx, s.members, projectID, actor); err != nil {
		return nil, err
	}

	results := make([]codefile.SyncResult, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(syncWorkers)

	for i, entry := range entries {
		g.Go(func() error {
			results[i] = s.syncOne(gctx, projectID, entry)
			return nil
		})
	}
	// Workers never return errors; per-entry failure lives in the results.
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *ProjectService) syncOne(ctx context.Context, projectID string, entry codefile.SyncEntry) codefile.SyncResult {
	res := codefile.SyncResult{FilePath: entry.FilePath}

	if entry.IsBinary {
		res.Status = "skipped_binary"
		return res
	}
	if entry.FilePath == "" || filepath.IsAbs(entry.FilePath) || strings.Contains(entry.FilePath, "..") {
		res.Status = "failed"
		res.Error = "invalid file path"
		return res
	}

	_, err := s.store.UpsertFile(ctx, codefile.UpsertFileRequest{
		ProjectID:    projectID,
		FilePath:     entry.FilePath,
		FileSize:     entry.FileSize,
		LanguageType: entry.LanguageType,
		LastModified: entry.LastModified,
	})
	if err != nil {
		s.log.Warn("file sync entry failed", "project_id", projectID, "file_path", entry.FilePath, "error", err)
		res.Status = "failed"
		res.Error = err.Error()
		return res
	}

	res.Status = "synced"
	return res
}
