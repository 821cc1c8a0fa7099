// Package codefile defines the CodeFile entity and its immutable version
// history.
//
// A CodeFile tracks the latest known metadata for a path within a project.
// Its content history lives in Version rows: immutable once written, keyed
// by a strictly increasing per-file version number, and deduplicated by
// content hash. Version lifecycle is reference-counted: a version is only
// removed when its last snapshot or review-task association disappears,
// never by cascade from a single parent.
package codefile

import "time"

// CodeFile is identified by (project_id, file_path). Only its metadata is
// mutable; content changes always produce a new Version.
type CodeFile struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	FilePath     string    `json:"file_path"`
	FileSize     int64     `json:"file_size"`
	LanguageType string    `json:"language_type"`
	LastModified time.Time `json:"last_modified"`
}

// Version is one immutable point in a file's content history.
// (code_file_id, version_number) is unique; numbers start at 1 and are
// assigned by the store under a row lock on the latest version.
type Version struct {
	ID                string    `json:"id"`
	CodeFileID        string    `json:"code_file_id"`
	VersionNumber     int       `json:"version_number"`
	Content           string    `json:"content"`
	ContentHash       string    `json:"content_hash"`
	LineAddedBegin    *int      `json:"line_added_begin,omitempty"`
	LineAddedEnd      *int      `json:"line_added_end,omitempty"`
	LineRemovedBegin  *int      `json:"line_removed_begin,omitempty"`
	LineRemovedEnd    *int      `json:"line_removed_end,omitempty"`
	ChangeDescription string    `json:"change_description,omitempty"`
	UpdatedBy         string    `json:"updated_by"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// UpsertFileRequest carries metadata-only file sync input. It never touches
// content history.
type UpsertFileRequest struct {
	ProjectID    string    `json:"project_id"`
	FilePath     string    `json:"file_path"`
	FileSize     int64     `json:"file_size"`
	LanguageType string    `json:"language_type"`
	LastModified time.Time `json:"last_modified"`
}

// RecordVersionRequest carries one content upload for a file.
type RecordVersionRequest struct {
	CodeFileID        string
	Content           string
	ChangeDescription string
	AuthorID          string
	UpdatedAt         time.Time
}

// SyncEntry is one item of a batch metadata sync, as reported by the
// client-side scanner.
type SyncEntry struct {
	FilePath     string    `json:"file_path"`
	FileSize     int64     `json:"file_size"`
	LanguageType string    `json:"language"`
	LastModified time.Time `json:"last_modified"`
	IsBinary     bool      `json:"is_binary"`
}

// SyncResult reports the per-item outcome of a batch sync. Partial failure
// is reported per entry, never as an all-or-nothing batch error.
type SyncResult struct {
	FilePath string `json:"file_path"`
	Status   string `json:"status"` // synced | skipped_binary | failed
	Error    string `json:"error,omitempty"`
}
