package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Users
		r.Post("/users", h.RegisterUser)
		r.Get("/users/{id}", h.GetUser)

		// Projects
		r.Get("/projects", h.ListProjects)
		r.Post("/projects", h.CreateProject)
		r.Get("/projects/{id}", h.GetProject)
		r.Delete("/projects/{id}", h.DeleteProject)
		r.Post("/projects/{id}/members", h.AddMember)

		// Files (nested under projects)
		r.Get("/projects/{id}/files", h.ListFiles)
		r.Post("/projects/{id}/files/sync", h.SyncFiles)

		// Files (direct access)
		r.Get("/files/{id}", h.GetFile)
		r.Delete("/files/{id}", h.DeleteFile)
		r.Post("/files/{id}/versions", h.UploadVersion)
		r.Get("/files/{id}/versions", h.ListVersions)
		r.Get("/versions/{id}", h.GetVersion)

		// Snapshots (nested under projects)
		r.Post("/projects/{id}/snapshots", h.CreateSnapshot)
		r.Get("/projects/{id}/snapshots", h.ListSnapshots)

		// Snapshots (direct access)
		r.Get("/snapshots/{id}", h.GetSnapshot)
		r.Get("/snapshots/{id}/detail", h.GetSnapshotDetail)
		r.Delete("/snapshots/{id}", h.DeleteSnapshot)
		r.Post("/snapshots/{id}/upload", h.SnapshotUpload)

		// Review tasks (nested under projects)
		r.Post("/projects/{id}/tasks", h.CreateTask)
		r.Get("/projects/{id}/tasks", h.ListTasks)

		// Review tasks (direct access)
		r.Get("/tasks/{id}", h.GetTask)
		r.Delete("/tasks/{id}", h.DeleteTask)
		r.Post("/tasks/{id}/versions", h.BindVersions)
		r.Delete("/tasks/{id}/versions", h.UnbindVersions)
		r.Get("/tasks/{id}/versions", h.GetTaskVersions)

		// Review results and issues
		r.Get("/tasks/{id}/result", h.GetTaskResult)
		r.Get("/tasks/{id}/issues", h.GetTaskIssues)
		r.Post("/tasks/{id}/issues/single", h.AddSingleFileIssue)
		r.Post("/tasks/{id}/issues/cross", h.AddCrossFileIssue)
		r.Put("/tasks/{id}/issues/{issueID}", h.ResolveIssue)
	})
}
