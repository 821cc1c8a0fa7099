package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/codescope/codescope/internal/domain"
	"github.com/codescope/codescope/internal/domain/codefile"
	"github.com/codescope/codescope/internal/domain/project"
	"github.com/codescope/codescope/internal/domain/reviewresult"
	"github.com/codescope/codescope/internal/domain/reviewtask"
	"github.com/codescope/codescope/internal/domain/snapshot"
	"github.com/codescope/codescope/internal/domain/user"
	"github.com/codescope/codescope/internal/port/messagequeue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// memberAll grants membership to everyone.
type memberAll struct{}

func (memberAll) IsMember(context.Context, string, string) (bool, error) { return true, nil }

// memberSet grants membership only to listed project/user pairs.
type memberSet map[string]bool

func (m memberSet) IsMember(_ context.Context, projectID, userID string) (bool, error) {
	return m[projectID+"/"+userID], nil
}

// mockQueue implements messagequeue.Queue for testing.
type mockQueue struct {
	published []struct {
		subject string
		data    []byte
	}
	publishErr error
}

func (q *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	if q.publishErr != nil {
		return q.publishErr
	}
	q.published = append(q.published, struct {
		subject string
		data    []byte
	}{subject, data})
	return nil
}

func (q *mockQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *mockQueue) Drain() error      { return nil }
func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }

// mockStore is an in-memory database.Store.
type mockStore struct {
	mu sync.Mutex

	users     map[string]user.User
	projects  map[string]project.Project
	members   map[string]project.Member
	files     map[string]codefile.CodeFile
	versions  map[string]codefile.Version
	snapshots map[string]snapshot.Snapshot
	tasks     map[string]reviewtask.Task
	results   map[string]reviewresult.Result

	snapAssocs map[string]map[string]bool                  // snapshotID -> versionID set
	taskAssocs map[string]map[string]reviewtask.VersionTag // taskID -> versionID -> tag

	singleIssues map[string]reviewresult.SingleFileIssue
	crossIssues  map[string]reviewresult.CrossFileIssue

	seq int

	upsertErr error // forced failure for UpsertFile
}

func newMockStore() *mockStore {
	return &mockStore{
		users:        map[string]user.User{},
		projects:     map[string]project.Project{},
		members:      map[string]project.Member{},
		files:        map[string]codefile.CodeFile{},
		versions:     map[string]codefile.Version{},
		snapshots:    map[string]snapshot.Snapshot{},
		tasks:        map[string]reviewtask.Task{},
		results:      map[string]reviewresult.Result{},
		snapAssocs:   map[string]map[string]bool{},
		taskAssocs:   map[string]map[string]reviewtask.VersionTag{},
		singleIssues: map[string]reviewresult.SingleFileIssue{},
		crossIssues:  map[string]reviewresult.CrossFileIssue{},
	}
}

func (m *mockStore) nextID(prefix string) string {
	m.seq++
	return prefix + "-" + strconv.Itoa(m.seq)
}

// --- Users ---

func (m *mockStore) CreateUser(_ context.Context, req user.CreateRequest) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := user.User{ID: m.nextID("u"), Username: req.Username, Email: req.Email, CreatedAt: time.Now()}
	m.users[u.ID] = u
	return &u, nil
}

func (m *mockStore) GetUser(_ context.Context, id string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return &u, nil
}

// --- Projects ---

func (m *mockStore) CreateProject(_ context.Context, ownerID string, req project.CreateRequest) (*project.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := project.Project{
		ID: m.nextID("p"), Name: req.Name, Description: req.Description,
		ProgrammingLanguage: req.ProgrammingLanguage, LocalPath: req.LocalPath,
		OwnerID: ownerID, CreatedAt: time.Now(),
	}
	m.projects[p.ID] = p
	m.members[p.ID+"/"+ownerID] = project.Member{ProjectID: p.ID, UserID: ownerID, Role: project.RoleOwner}
	return &p, nil
}

func (m *mockStore) GetProject(_ context.Context, id string) (*project.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
	}
	return &p, nil
}

func (m *mockStore) ListProjects(_ context.Context, userID string) ([]project.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []project.Project
	for _, mem := range m.members {
		if mem.UserID == userID {
			out = append(out, m.projects[mem.ProjectID])
		}
	}
	return out, nil
}

func (m *mockStore) DeleteProject(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
	}
	delete(m.projects, id)
	for k, f := range m.files {
		if f.ProjectID == id {
			delete(m.files, k)
		}
	}
	return nil
}

func (m *mockStore) AddMember(_ context.Context, projectID, userID string, role project.Role) (*project.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := projectID + "/" + userID
	if _, ok := m.members[key]; ok {
		return nil, fmt.Errorf("member exists: %w", domain.ErrConflict)
	}
	mem := project.Member{ProjectID: projectID, UserID: userID, Role: role, JoinedAt: time.Now()}
	m.members[key] = mem
	return &mem, nil
}

func (m *mockStore) IsMember(_ context.Context, projectID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.members[projectID+"/"+userID]
	return ok, nil
}

// --- Files and versions ---

func (m *mockStore) UpsertFile(_ context.Context, req codefile.UpsertFileRequest) (*codefile.CodeFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return nil, m.upsertErr
	}
	for id, f := range m.files {
		if f.ProjectID == req.ProjectID && f.FilePath == req.FilePath {
			f.FileSize = req.FileSize
			if req.LanguageType != "" {
				f.LanguageType = req.LanguageType
			}
			f.LastModified = req.LastModified
			m.files[id] = f
			return &f, nil
		}
	}
	f := codefile.CodeFile{
		ID: m.nextID("f"), ProjectID: req.ProjectID, FilePath: req.FilePath,
		FileSize: req.FileSize, LanguageType: req.LanguageType, LastModified: req.LastModified,
	}
	m.files[f.ID] = f
	return &f, nil
}

func (m *mockStore) GetFile(_ context.Context, id string) (*codefile.CodeFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", id, domain.ErrNotFound)
	}
	return &f, nil
}

func (m *mockStore) GetFileByPath(_ context.Context, projectID, filePath string) (*codefile.CodeFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.files {
		if f.ProjectID == projectID && f.FilePath == filePath {
			return &f, nil
		}
	}
	return nil, fmt.Errorf("file %s: %w", filePath, domain.ErrNotFound)
}

func (m *mockStore) ListFiles(_ context.Context, projectID string) ([]codefile.CodeFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []codefile.CodeFile
	for _, f := range m.files {
		if f.ProjectID == projectID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *mockStore) DeleteFile(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[id]; !ok {
		return fmt.Errorf("file %s: %w", id, domain.ErrNotFound)
	}
	delete(m.files, id)
	return nil
}

func (m *mockStore) RecordVersion(_ context.Context, req codefile.RecordVersionRequest) (*codefile.Version, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, created := m.recordVersionLocked(req)
	return v, created, nil
}

func (m *mockStore) recordVersionLocked(req codefile.RecordVersionRequest) (*codefile.Version, bool) {
	hash := codefile.HashContent([]byte(req.Content))
	var latest *codefile.Version
	for _, v := range m.versions {
		if v.CodeFileID == req.CodeFileID && (latest == nil || v.VersionNumber > latest.VersionNumber) {
			vv := v
			latest = &vv
		}
	}
	if latest != nil && latest.ContentHash == hash {
		return latest, false
	}
	number := 1
	if latest != nil {
		number = latest.VersionNumber + 1
	}
	v := codefile.Version{
		ID: m.nextID("v"), CodeFileID: req.CodeFileID, VersionNumber: number,
		Content: req.Content, ContentHash: hash,
		ChangeDescription: req.ChangeDescription, UpdatedBy: req.AuthorID, UpdatedAt: req.UpdatedAt,
	}
	m.versions[v.ID] = v
	return &v, true
}

func (m *mockStore) GetVersion(_ context.Context, id string) (*codefile.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[id]
	if !ok {
		return nil, fmt.Errorf("version %s: %w", id, domain.ErrNotFound)
	}
	return &v, nil
}

func (m *mockStore) ListVersions(_ context.Context, codeFileID string) ([]codefile.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []codefile.Version
	for _, v := range m.versions {
		if v.CodeFileID == codeFileID {
			out = append(out, v)
		}
	}
	return out, nil
}

// --- Snapshots ---

func (m *mockStore) CreateSnapshot(_ context.Context, createdBy string, req snapshot.CreateRequest) (*snapshot.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sn := snapshot.Snapshot{
		ID: m.nextID("s"), ProjectID: req.ProjectID, Name: req.Name,
		Description: req.Description, CreatedBy: createdBy, CreatedAt: time.Now(),
	}
	m.snapshots[sn.ID] = sn
	m.snapAssocs[sn.ID] = map[string]bool{}
	return &sn, nil
}

func (m *mockStore) GetSnapshot(_ context.Context, id string) (*snapshot.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sn, ok := m.snapshots[id]
	if !ok {
		return nil, fmt.Errorf("snapshot %s: %w", id, domain.ErrNotFound)
	}
	return &sn, nil
}

func (m *mockStore) ListSnapshots(_ context.Context, projectID string) ([]snapshot.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []snapshot.Snapshot
	for _, sn := range m.snapshots {
		if sn.ProjectID == projectID {
			out = append(out, sn)
		}
	}
	return out, nil
}

func (m *mockStore) AttachFileVersion(_ context.Context, snapshotID string, req codefile.RecordVersionRequest) (*codefile.Version, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.snapAssocs[snapshotID]
	if !ok {
		// No version is recorded when the link target is missing.
		return nil, false, fmt.Errorf("snapshot %s: %w", snapshotID, domain.ErrNotFound)
	}
	v, created := m.recordVersionLocked(req)
	set[v.ID] = true
	return v, created, nil
}

func (m *mockStore) DeleteSnapshot(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snapshots[id]; !ok {
		return fmt.Errorf("snapshot %s: %w", id, domain.ErrNotFound)
	}
	candidates := m.snapAssocs[id]
	delete(m.snapshots, id)
	delete(m.snapAssocs, id)
	for vid := range candidates {
		if !m.versionReferencedLocked(vid) {
			delete(m.versions, vid)
		}
	}
	return nil
}

func (m *mockStore) versionReferencedLocked(versionID string) bool {
	for _, set := range m.snapAssocs {
		if set[versionID] {
			return true
		}
	}
	for _, set := range m.taskAssocs {
		if _, ok := set[versionID]; ok {
			return true
		}
	}
	return false
}

func (m *mockStore) GetSnapshotDetail(ctx context.Context, id string) (*snapshot.Detail, error) {
	sn, err := m.GetSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	detail := &snapshot.Detail{Snapshot: *sn, Files: []snapshot.FileEntry{}}
	for vid := range m.snapAssocs[id] {
		v := m.versions[vid]
		f := m.files[v.CodeFileID]
		detail.Files = append(detail.Files, snapshot.FileEntry{
			CodeFileID: f.ID, FilePath: f.FilePath, FileSize: codefile.FormatSize(f.FileSize),
			VersionID: v.ID, ChangeDescription: v.ChangeDescription,
			UpdatedBy: v.UpdatedBy, UpdatedAt: v.UpdatedAt,
		})
	}
	return detail, nil
}

// --- Tasks ---

func (m *mockStore) CreateTask(_ context.Context, createdBy string, req reviewtask.CreateRequest) (*reviewtask.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := reviewtask.Task{
		ID: m.nextID("t"), ProjectID: req.ProjectID, Scope: req.Scope, Name: req.Name,
		Type: req.Type, Status: reviewtask.StatusPending, Requirements: req.Requirements,
		CreatedBy: createdBy, CreatedAt: time.Now(),
	}
	m.tasks[t.ID] = t
	m.taskAssocs[t.ID] = map[string]reviewtask.VersionTag{}
	return &t, nil
}

func (m *mockStore) GetTask(_ context.Context, id string) (*reviewtask.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return &t, nil
}

func (m *mockStore) ListTasks(_ context.Context, projectID string) ([]reviewtask.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []reviewtask.Task
	for _, t := range m.tasks {
		if t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockStore) BindVersions(_ context.Context, taskID string, versionIDs []string, tag reviewtask.VersionTag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
	}
	if t.Status.Terminal() {
		return fmt.Errorf("task %s is %s: %w", taskID, t.Status, domain.ErrStateViolation)
	}
	for _, vid := range versionIDs {
		m.taskAssocs[taskID][vid] = tag
	}
	return nil
}

func (m *mockStore) UnbindVersions(_ context.Context, taskID string, versionIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
	}
	if t.Status.Terminal() {
		return fmt.Errorf("task %s is %s: %w", taskID, t.Status, domain.ErrStateViolation)
	}
	for _, vid := range versionIDs {
		delete(m.taskAssocs[taskID], vid)
	}
	return nil
}

func (m *mockStore) UpdateTaskStatus(_ context.Context, taskID string, to reviewtask.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
	}
	if !reviewtask.CanTransition(t.Status, to) {
		return fmt.Errorf("task %s: %s -> %s: %w", taskID, t.Status, to, domain.ErrStateViolation)
	}
	t.Status = to
	m.tasks[taskID] = t
	return nil
}

func (m *mockStore) DeleteTask(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	candidates := m.taskAssocs[id]
	delete(m.tasks, id)
	delete(m.taskAssocs, id)
	for vid := range candidates {
		if !m.versionReferencedLocked(vid) {
			delete(m.versions, vid)
		}
	}
	return nil
}

func (m *mockStore) GetTaskVersions(_ context.Context, taskID string) ([]codefile.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []codefile.Version
	for vid := range m.taskAssocs[taskID] {
		out = append(out, m.versions[vid])
	}
	return out, nil
}

// --- Results ---

func (m *mockStore) CreateResult(_ context.Context, req reviewresult.RecordRequest) (*reviewresult.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.results {
		if r.TaskID == req.TaskID {
			return nil, fmt.Errorf("task %s already has a result: %w", req.TaskID, domain.ErrConflict)
		}
	}
	r := reviewresult.Result{
		ID: m.nextID("r"), TaskID: req.TaskID, Scope: req.Scope, VersionID: req.VersionID,
		CountsBySeverity: req.CountsBySeverity, CountsByCategory: req.CountsByCategory,
		Metadata: req.Metadata, Elapsed: req.Elapsed, CreatedAt: time.Now(),
	}
	m.results[r.ID] = r
	return &r, nil
}

func (m *mockStore) GetResultByTask(_ context.Context, taskID string) (*reviewresult.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.results {
		if r.TaskID == taskID {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("result for task %s: %w", taskID, domain.ErrNotFound)
}

func (m *mockStore) AddSingleFileIssue(_ context.Context, resultID, versionID string, fields reviewresult.IssueFields) (*reviewresult.SingleFileIssue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := reviewresult.SingleFileIssue{
		ID: m.nextID("i"), ResultID: resultID, VersionID: versionID,
		Category: fields.Category, Severity: fields.Severity,
		LineBegin: fields.LineBegin, LineEnd: fields.LineEnd,
		Description: fields.Description, Suggestion: fields.Suggestion,
		ConfidenceScore: fields.ConfidenceScore, Status: reviewresult.IssueOpen,
		CreatedAt: time.Now(),
	}
	m.singleIssues[i.ID] = i
	return &i, nil
}

func (m *mockStore) AddCrossFileIssue(_ context.Context, resultID string, fields reviewresult.IssueFields, affected []reviewresult.AffectedVersion) (*reviewresult.CrossFileIssue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := reviewresult.CrossFileIssue{
		ID: m.nextID("x"), ResultID: resultID,
		Category: fields.Category, Severity: fields.Severity,
		Description: fields.Description, Suggestion: fields.Suggestion,
		ConfidenceScore: fields.ConfidenceScore, Status: reviewresult.IssueOpen,
		CreatedAt: time.Now(), Affected: affected,
	}
	m.crossIssues[i.ID] = i
	return &i, nil
}

func (m *mockStore) ListSingleFileIssues(_ context.Context, resultID string) ([]reviewresult.SingleFileIssue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []reviewresult.SingleFileIssue
	for _, i := range m.singleIssues {
		if i.ResultID == resultID {
			out = append(out, i)
		}
	}
	return out, nil
}

func (m *mockStore) ListCrossFileIssues(_ context.Context, resultID string) ([]reviewresult.CrossFileIssue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []reviewresult.CrossFileIssue
	for _, i := range m.crossIssues {
		if i.ResultID == resultID {
			out = append(out, i)
		}
	}
	return out, nil
}

func (m *mockStore) ResolveIssue(_ context.Context, issueID string, to reviewresult.IssueStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.singleIssues[issueID]; ok {
		if !reviewresult.CanTransition(i.Status, to) {
			return fmt.Errorf("issue %s: %w", issueID, domain.ErrStateViolation)
		}
		i.Status = to
		if to.Terminal() {
			now := time.Now()
			i.ResolvedAt = &now
		}
		m.singleIssues[issueID] = i
		return nil
	}
	if i, ok := m.crossIssues[issueID]; ok {
		if !reviewresult.CanTransition(i.Status, to) {
			return fmt.Errorf("issue %s: %w", issueID, domain.ErrStateViolation)
		}
		i.Status = to
		if to.Terminal() {
			now := time.Now()
			i.ResolvedAt = &now
		}
		m.crossIssues[issueID] = i
		return nil
	}
	return fmt.Errorf("issue %s: %w", issueID, domain.ErrNotFound)
}
