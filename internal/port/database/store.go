// Package database defines the storage port consumed by the service layer.
package database

import (
	"context"

	"github.com/codescope/codescope/internal/domain/codefile"
	"github.com/codescope/codescope/internal/domain/project"
	"github.com/codescope/codescope/internal/domain/reviewresult"
	"github.com/codescope/codescope/internal/domain/reviewtask"
	"github.com/codescope/codescope/internal/domain/snapshot"
	"github.com/codescope/codescope/internal/domain/user"
)

// Store is the persistence interface for all core entities. Multi-step
// operations (version dedup, orphan reclaim) are single transactions inside
// the implementation; callers see them as atomic.
type Store interface {
	// Users
	CreateUser(ctx context.Context, req user.CreateRequest) (*user.User, error)
	GetUser(ctx context.Context, id string) (*user.User, error)

	// Projects and membership
	CreateProject(ctx context.Context, ownerID string, req project.CreateRequest) (*project.Project, error)
	GetProject(ctx context.Context, id string) (*project.Project, error)
	ListProjects(ctx context.Context, userID string) ([]project.Project, error)
	// DeleteProject cascades to every file, version, snapshot, task, result
	// and issue under the project, leaving no orphaned association rows.
	DeleteProject(ctx context.Context, id string) error
	AddMember(ctx context.Context, projectID, userID string, role project.Role) (*project.Member, error)
	IsMember(ctx context.Context, projectID, userID string) (bool, error)

	// Code files and versions
	UpsertFile(ctx context.Context, req codefile.UpsertFileRequest) (*codefile.CodeFile, error)
	GetFile(ctx context.Context, id string) (*codefile.CodeFile, error)
	GetFileByPath(ctx context.Context, projectID, filePath string) (*codefile.CodeFile, error)
	ListFiles(ctx context.Context, projectID string) ([]codefile.CodeFile, error)
	// DeleteFile refuses with domain.ErrConflict while any of the file's
	// versions is referenced by a snapshot or task.
	DeleteFile(ctx context.Context, id string) error
	// RecordVersion deduplicates against the file's latest version by
	// content hash: it returns (existing, false) on a hash match and
	// (new, true) otherwise, assigning the next version number under a
	// row lock. A lost insert race is retried once internally.
	RecordVersion(ctx context.Context, req codefile.RecordVersionRequest) (*codefile.Version, bool, error)
	GetVersion(ctx context.Context, id string) (*codefile.Version, error)
	ListVersions(ctx context.Context, codeFileID string) ([]codefile.Version, error)

	// Snapshots
	CreateSnapshot(ctx context.Context, createdBy string, req snapshot.CreateRequest) (*snapshot.Snapshot, error)
	GetSnapshot(ctx context.Context, id string) (*snapshot.Snapshot, error)
	ListSnapshots(ctx context.Context, projectID string) ([]snapshot.Snapshot, error)
	// AttachFileVersion runs RecordVersion's dedup-or-insert and the
	// snapshot association insert in one transaction, so a dedup hit and
	// its link commit together.
	AttachFileVersion(ctx context.Context, snapshotID string, req codefile.RecordVersionRequest) (*codefile.Version, bool, error)
	// DeleteSnapshot removes the snapshot and its association rows, then
	// reclaims any version left without snapshot or task references, all
	// in one transaction.
	DeleteSnapshot(ctx context.Context, id string) error
	GetSnapshotDetail(ctx context.Context, id string) (*snapshot.Detail, error)

	// Review tasks
	CreateTask(ctx context.Context, createdBy string, req reviewtask.CreateRequest) (*reviewtask.Task, error)
	GetTask(ctx context.Context, id string) (*reviewtask.Task, error)
	ListTasks(ctx context.Context, projectID string) ([]reviewtask.Task, error)
	// BindVersions and UnbindVersions fail with domain.ErrStateViolation
	// when the task status is terminal.
	BindVersions(ctx context.Context, taskID string, versionIDs []string, tag reviewtask.VersionTag) error
	UnbindVersions(ctx context.Context, taskID string, versionIDs []string) error
	UpdateTaskStatus(ctx context.Context, taskID string, to reviewtask.Status) error
	// DeleteTask mirrors DeleteSnapshot's orphan-reclaim transaction,
	// scanning only versions that were linked to this task.
	DeleteTask(ctx context.Context, id string) error
	GetTaskVersions(ctx context.Context, taskID string) ([]codefile.Version, error)

	// Review results and issues
	CreateResult(ctx context.Context, req reviewresult.RecordRequest) (*reviewresult.Result, error)
	GetResultByTask(ctx context.Context, taskID string) (*reviewresult.Result, error)
	AddSingleFileIssue(ctx context.Context, resultID, versionID string, fields reviewresult.IssueFields) (*reviewresult.SingleFileIssue, error)
	AddCrossFileIssue(ctx context.Context, resultID string, fields reviewresult.IssueFields, affected []reviewresult.AffectedVersion) (*reviewresult.CrossFileIssue, error)
	ListSingleFileIssues(ctx context.Context, resultID string) ([]reviewresult.SingleFileIssue, error)
	ListCrossFileIssues(ctx context.Context, resultID string) ([]reviewresult.CrossFileIssue, error)
	// ResolveIssue enforces open -> in_progress -> {closed, wont_resolve}
	// and stamps resolved_at on entering a terminal state.
	ResolveIssue(ctx context.Context, issueID string, to reviewresult.IssueStatus) error
}
