package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	csotel "github.com/codescope/codescope/internal/adapter/otel"
	"github.com/codescope/codescope/internal/domain"
	"github.com/codescope/codescope/internal/domain/codefile"
	"github.com/codescope/codescope/internal/port/database"
	"github.com/codescope/codescope/internal/port/membership"
)

// VersionService handles file content history.
type VersionService struct {
	store    database.Store
	members  membership.Checker
	maxBytes int64
	metrics  *csotel.Metrics
	log      *slog.Logger
}

// NewVersionService creates a new VersionService. maxBytes bounds a single
// content upload.
func NewVersionService(store database.Store, members membership.Checker, maxBytes int64, log *slog.Logger) *VersionService {
	return &VersionService{store: store, members: members, maxBytes: maxBytes, log: log}
}

// SetMetrics attaches optional metric instruments.
func (s *VersionService) SetMetrics(m *csotel.Metrics) {
	s.metrics = m
}

// GetFile returns a file the actor may see.
func (s *VersionService) GetFile(ctx context.Context, actor, fileID string) (*codefile.CodeFile, error) {
	f, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if err := requireMember(ctx, s.members, f.ProjectID, actor); err != nil {
		return nil, err
	}
	return f, nil
}

// ListFiles returns a project's files ordered by path.
func (s *VersionService) ListFiles(ctx context.Context, actor, projectID string) ([]codefile.CodeFile, error) {
	if err := requireMember(ctx, s.members, projectID, actor); err != nil {
		return nil, err
	}
	return s.store.ListFiles(ctx, projectID)
}

// Upload records new content for a file. Content identical to the latest
// version is deduplicated; the returned created flag distinguishes the
// two outcomes.
func (s *VersionService) Upload(ctx context.Context, actor, fileID, content, changeDescription string) (*codefile.Version, bool, error) {
	if int64(len(content)) > s.maxBytes {
		return nil, false, fmt.Errorf("content exceeds %d bytes: %w", s.maxBytes, domain.ErrValidation)
	}

	f, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, false, err
	}
	if err := requireMember(ctx, s.members, f.ProjectID, actor); err != nil {
		return nil, false, err
	}

	v, created, err := s.store.RecordVersion(ctx, codefile.RecordVersionRequest{
		CodeFileID:        fileID,
		Content:           content,
		ChangeDescription: changeDescription,
		AuthorID:          actor,
		UpdatedAt:         time.Now().UTC(),
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		s.log.Info("version recorded", "file_id", fileID, "version", v.VersionNumber, "author", actor)
	}
	if s.metrics != nil {
		if created {
			s.metrics.VersionsRecorded.Add(ctx, 1)
		} else {
			s.metrics.VersionsDeduped.Add(ctx, 1)
		}
	}
	return v, created, nil
}

// ListVersions returns a file's history, newest first.
func (s *VersionService) ListVersions(ctx context.Context, actor, fileID string) ([]codefile.Version, error) {
	f, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if err := requireMember(ctx, s.members, f.ProjectID, actor); err != nil {
		return nil, err
	}
	return s.store.ListVersions(ctx, fileID)
}

// GetVersion returns one version by ID.
func (s *VersionService) GetVersion(ctx context.Context, actor, versionID string) (*codefile.Version, error) {
	v, err := s.store.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	f, err := s.store.GetFile(ctx, v.CodeFileID)
	if err != nil {
		return nil, err
	}
	if err := requireMember(ctx, s.members, f.ProjectID, actor); err != nil {
		return nil, err
	}
	return v, nil
}

// DeleteFile removes a file and its history. The store refuses while any
// version is still referenced by a snapshot or task.
func (s *VersionService) DeleteFile(ctx context.Context, actor, fileID string) error {
	f, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	if err := requireMember(ctx, s.members, f.ProjectID, actor); err != nil {
		return err
	}
	return s.store.DeleteFile(ctx, fileID)
}
