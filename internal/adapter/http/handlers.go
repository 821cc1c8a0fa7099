package http

import (
	"net/http"

	"github.com/codescope/codescope/internal/domain/codefile"
	"github.com/codescope/codescope/internal/domain/project"
	"github.com/codescope/codescope/internal/domain/reviewresult"
	"github.com/codescope/codescope/internal/domain/reviewtask"
	"github.com/codescope/codescope/internal/domain/snapshot"
	"github.com/codescope/codescope/internal/domain/user"
	"github.com/codescope/codescope/internal/middleware"
	"github.com/codescope/codescope/internal/service"
)

// bodyLimit bounds non-content JSON request bodies.
const bodyLimit = 1 << 20

// Handlers bundles all HTTP handlers with their service dependencies.
type Handlers struct {
	projects  *service.ProjectService
	versions  *service.VersionService
	snapshots *service.SnapshotService
	tasks     *service.TaskService
	results   *service.ResultService

	uploadLimit int64
}

// NewHandlers creates the handler set. uploadLimit bounds content-carrying
// request bodies.
func NewHandlers(
	projects *service.ProjectService,
	versions *service.VersionService,
	snapshots *service.SnapshotService,
	tasks *service.TaskService,
	results *service.ResultService,
	uploadLimit int64,
) *Handlers {
	return &Handlers{
		projects:    projects,
		versions:    versions,
		snapshots:   snapshots,
		tasks:       tasks,
		results:     results,
		uploadLimit: uploadLimit,
	}
}

func actor(r *http.Request) string {
	return middleware.ActorFromContext(r.Context())
}

// --- Users ---

func (h *Handlers) RegisterUser(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[user.CreateRequest](w, r, bodyLimit)
	if !ok {
		return
	}
	u, err := h.projects.RegisterUser(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "user not found")
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.projects.GetUser(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// --- Projects ---

func (h *Handlers) CreateProject(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[project.CreateRequest](w, r, bodyLimit)
	if !ok {
		return
	}
	p, err := h.projects.Create(r.Context(), actor(r), req)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handlers) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.List(r.Context(), actor(r))
	if err != nil {
		writeDomainError(w, err, "projects not found")
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (h *Handlers) GetProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.projects.Get(r.Context(), actor(r), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handlers) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.projects.Delete(r.Context(), actor(r), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addMemberRequest struct {
	UserID string       `json:"user_id"`
	Role   project.Role `json:"role"`
}

func (h *Handlers) AddMember(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[addMemberRequest](w, r, bodyLimit)
	if !ok {
		return
	}
	m, err := h.projects.AddMember(r.Context(), actor(r), urlParam(r, "id"), req.UserID, req.Role)
	if err != nil {
		writeDomainError(w, err, "project or user not found")
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

type syncRequest struct {
	Files []codefile.SyncEntry `json:"files"`
}

func (h *Handlers) SyncFiles(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[syncRequest](w, r, h.uploadLimit)
	if !ok {
		return
	}
	results, err := h.projects.SyncFiles(r.Context(), actor(r), urlParam(r, "id"), req.Files)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// --- Files and versions ---

func (h *Handlers) ListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.versions.ListFiles(r.Context(), actor(r), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (h *Handlers) GetFile(w http.ResponseWriter, r *http.Request) {
	f, err := h.versions.GetFile(r.Context(), actor(r), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "file not found")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *Handlers) DeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := h.versions.DeleteFile(r.Context(), actor(r), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "file not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type uploadVersionRequest struct {
	Content           string `json:"content"`
	ChangeDescription string `json:"change_description"`
}

type uploadVersionResponse struct {
	Version *codefile.Version `json:"version"`
	Created bool              `json:"created"`
}

func (h *Handlers) UploadVersion(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[uploadVersionRequest](w, r, h.uploadLimit)
	if !ok {
		return
	}
	v, created, err := h.versions.Upload(r.Context(), actor(r), urlParam(r, "id"), req.Content, req.ChangeDescription)
	if err != nil {
		writeDomainError(w, err, "file not found")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, uploadVersionResponse{Version: v, Created: created})
}

func (h *Handlers) ListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.versions.ListVersions(r.Context(), actor(r), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "file not found")
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func (h *Handlers) GetVersion(w http.ResponseWriter, r *http.Request) {
	v, err := h.versions.GetVersion(r.Context(), actor(r), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "version not found")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// --- Snapshots ---

func (h *Handlers) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[snapshot.CreateRequest](w, r, bodyLimit)
	if !ok {
		return
	}
	req.ProjectID = urlParam(r, "id")
	sn, err := h.snapshots.Create(r.Context(), actor(r), req)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusCreated, sn)
}

func (h *Handlers) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.snapshots.List(r.Context(), actor(r), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, snapshots)
}

func (h *Handlers) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	sn, err := h.snapshots.Get(r.Context(), actor(r), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "snapshot not found")
		return
	}
	writeJSON(w, http.StatusOK, sn)
}

func (h *Handlers) GetSnapshotDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := h.snapshots.Detail(r.Context(), actor(r), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "snapshot not found")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handlers) DeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := h.snapshots.Delete(r.Context(), actor(r), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "snapshot not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type snapshotUploadRequest struct {
	FilePath          string `json:"file_path"`
	Content           string `json:"content"`
	ChangeDescription string `json:"change_description"`
}

func (h *Handlers) SnapshotUpload(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[snapshotUploadRequest](w, r, h.uploadLimit)
	if !ok {
		return
	}
	if req.FilePath == "" {
		writeError(w, http.StatusBadRequest, "file_path is required")
		return
	}
	res, err := h.snapshots.Upload(r.Context(), actor(r), urlParam(r, "id"), req.FilePath, req.Content, req.ChangeDescription)
	if err != nil {
		writeDomainError(w, err, "snapshot not found")
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// --- Review tasks ---

func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[reviewtask.CreateRequest](w, r, bodyLimit)
	if !ok {
		return
	}
	req.ProjectID = urlParam(r, "id")
	t, err := h.tasks.Create(r.Context(), actor(r), req)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.tasks.List(r.Context(), actor(r), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.tasks.Get(r.Context(), actor(r), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.tasks.Delete(r.Context(), actor(r), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type bindVersionsRequest struct {
	VersionIDs []string              `json:"version_ids"`
	Tag        reviewtask.VersionTag `json:"version_type"`
}

func (h *Handlers) BindVersions(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[bindVersionsRequest](w, r, bodyLimit)
	if !ok {
		return
	}
	if len(req.VersionIDs) == 0 {
		writeError(w, http.StatusBadRequest, "version_ids is required")
		return
	}
	if req.Tag == "" {
		req.Tag = reviewtask.TagCurrent
	}
	if err := h.tasks.BindVersions(r.Context(), actor(r), urlParam(r, "id"), req.VersionIDs, req.Tag); err != nil {
		writeDomainError(w, err, "task or version not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type unbindVersionsRequest struct {
	VersionIDs []string `json:"version_ids"`
}

func (h *Handlers) UnbindVersions(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[unbindVersionsRequest](w, r, bodyLimit)
	if !ok {
		return
	}
	if err := h.tasks.UnbindVersions(r.Context(), actor(r), urlParam(r, "id"), req.VersionIDs); err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) GetTaskVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.tasks.Versions(r.Context(), actor(r), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

// --- Review results ---

func (h *Handlers) GetTaskResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.results.GetByTask(r.Context(), actor(r), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "result not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) GetTaskIssues(w http.ResponseWriter, r *http.Request) {
	single, cross, err := h.results.Issues(r.Context(), actor(r), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "result not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"single_file_issues": single,
		"cross_file_issues":  cross,
	})
}

type addSingleIssueRequest struct {
	VersionID string `json:"code_file_version_id"`
	reviewresult.IssueFields
}

func (h *Handlers) AddSingleFileIssue(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[addSingleIssueRequest](w, r, bodyLimit)
	if !ok {
		return
	}
	issue, err := h.results.AddSingleFileIssue(r.Context(), actor(r), urlParam(r, "id"), req.VersionID, req.IssueFields)
	if err != nil {
		writeDomainError(w, err, "result or version not found")
		return
	}
	writeJSON(w, http.StatusCreated, issue)
}

type addCrossIssueRequest struct {
	reviewresult.IssueFields
	Affected []reviewresult.AffectedVersion `json:"affected_versions"`
}

func (h *Handlers) AddCrossFileIssue(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[addCrossIssueRequest](w, r, bodyLimit)
	if !ok {
		return
	}
	issue, err := h.results.AddCrossFileIssue(r.Context(), actor(r), urlParam(r, "id"), req.IssueFields, req.Affected)
	if err != nil {
		writeDomainError(w, err, "result or version not found")
		return
	}
	writeJSON(w, http.StatusCreated, issue)
}

type resolveIssueRequest struct {
	Status reviewresult.IssueStatus `json:"status"`
}

func (h *Handlers) ResolveIssue(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[resolveIssueRequest](w, r, bodyLimit)
	if !ok {
		return
	}
	err := h.results.ResolveIssue(r.Context(), actor(r), urlParam(r, "id"), urlParam(r, "issueID"), req.Status)
	if err != nil {
		writeDomainError(w, err, "issue not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
