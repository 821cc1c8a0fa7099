package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codescope/codescope/internal/domain"
	"github.com/codescope/codescope/internal/domain/codefile"
	"github.com/codescope/codescope/internal/domain/snapshot"
	"github.com/codescope/codescope/internal/port/database"
	"github.com/codescope/codescope/internal/port/membership"
)

// SnapshotService handles project version snapshots.
type SnapshotService struct {
	store    database.Store
	members  membership.Checker
	maxBytes int64
	log      *slog.Logger
}

// NewSnapshotService creates a new SnapshotService.
func NewSnapshotService(store database.Store, members membership.Checker, maxBytes int64, log *slog.Logger) *SnapshotService {
	return &SnapshotService{store: store, members: members, maxBytes: maxBytes, log: log}
}

// Create opens a new snapshot for the actor's project.
func (s *SnapshotService) Create(ctx context.Context, actor string, req snapshot.CreateRequest) (*snapshot.Snapshot, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := requireMember(ctx, s.members, req.ProjectID, actor); err != nil {
		return nil, err
	}

	sn, err := s.store.CreateSnapshot(ctx, actor, req)
	if err != nil {
		return nil, err
	}
	s.log.Info("snapshot created", "snapshot_id", sn.ID, "project_id", sn.ProjectID)
	return sn, nil
}

// Get returns a snapshot the actor may see.
func (s *SnapshotService) Get(ctx context.Context, actor, id string) (*snapshot.Snapshot, error) {
	sn, err := s.store.GetSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireMember(ctx, s.members, sn.ProjectID, actor); err != nil {
		return nil, err
	}
	return sn, nil
}

// List returns a project's snapshots, newest first.
func (s *SnapshotService) List(ctx context.Context, actor, projectID string) ([]snapshot.Snapshot, error) {
	if err := requireMember(ctx, s.members, projectID, actor); err != nil {
		return nil, err
	}
	return s.store.ListSnapshots(ctx, projectID)
}

// Upload streams one file's content into a snapshot: the file row is
// upserted, then content is recorded (or deduplicated) as a version and
// linked to the snapshot in one store transaction. The returned
// AttachResult reports whether a new version row was created.
func (s *SnapshotService) Upload(ctx context.Context, actor, snapshotID, filePath, content, changeDescription string) (*snapshot.AttachResult, error) {
	if int64(len(content)) > s.maxBytes {
		return nil, fmt.Errorf("content exceeds %d bytes: %w", s.maxBytes, domain.ErrValidation)
	}

	sn, err := s.store.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if err := requireMember(ctx, s.members, sn.ProjectID, actor); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	f, err := s.store.UpsertFile(ctx, codefile.UpsertFileRequest{
		ProjectID:    sn.ProjectID,
		FilePath:     filePath,
		FileSize:     int64(len(content)),
		LastModified: now,
	})
	if err != nil {
		return nil, err
	}

	v, created, err := s.store.AttachFileVersion(ctx, snapshotID, codefile.RecordVersionRequest{
		CodeFileID:        f.ID,
		Content:           content,
		ChangeDescription: changeDescription,
		AuthorID:          actor,
		UpdatedAt:         now,
	})
	if err != nil {
		return nil, err
	}

	return &snapshot.AttachResult{Version: v, Created: created}, nil
}

// Detail returns the snapshot's full file list with display sizes.
func (s *SnapshotService) Detail(ctx context.Context, actor, id string) (*snapshot.Detail, error) {
	sn, err := s.store.GetSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireMember(ctx, s.members, sn.ProjectID, actor); err != nil {
		return nil, err
	}
	return s.store.GetSnapshotDetail(ctx, id)
}

// Delete removes a snapshot, reclaiming versions nothing else references.
func (s *SnapshotService) Delete(ctx context.Context, actor, id string) error {
	sn, err := s.store.GetSnapshot(ctx, id)
	if err != nil {
		return err
	}
	if err := requireMember(ctx, s.members, sn.ProjectID, actor); err != nil {
		return err
	}

	if err := s.store.DeleteSnapshot(ctx, id); err != nil {
		return err
	}
	s.log.Info("snapshot deleted", "snapshot_id", id, "project_id", sn.ProjectID)
	return nil
}
