package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/codescope/codescope/internal/domain"
	"github.com/codescope/codescope/internal/domain/codefile"
)

const versionColumns = `id, code_file_id, version_number, content, content_hash,
	line_added_begin, line_added_end, line_removed_begin, line_removed_end,
	change_description, COALESCE(updated_by::text, ''), updated_at`

func scanCodeFile(row scannable) (codefile.CodeFile, error) {
	var f codefile.CodeFile
	err := row.Scan(&f.ID, &f.ProjectID, &f.FilePath, &f.FileSize,
		&f.LanguageType, &f.LastModified)
	return f, err
}

func scanVersion(row scannable) (codefile.Version, error) {
	var v codefile.Version
	err := row.Scan(&v.ID, &v.CodeFileID, &v.VersionNumber, &v.Content, &v.ContentHash,
		&v.LineAddedBegin, &v.LineAddedEnd, &v.LineRemovedBegin, &v.LineRemovedEnd,
		&v.ChangeDescription, &v.UpdatedBy, &v.UpdatedAt)
	return v, err
}

// UpsertFile inserts a file row or refreshes its metadata when the
// (project_id, file_path) pair already exists. Content history is untouched.
// An empty incoming language keeps the recorded one, so a content upload
// cannot wipe what a metadata sync detected.
func (s *Store) UpsertFile(ctx context.Context, req codefile.UpsertFileRequest) (*codefile.CodeFile, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO code_files (project_id, file_path, file_size, language_type, last_modified)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (project_id, file_path) DO UPDATE SET
			file_size = EXCLUDED.file_size,
			language_type = COALESCE(NULLIF(EXCLUDED.language_type, ''), code_files.language_type),
			last_modified = EXCLUDED.last_modified
		 RETURNING id, project_id, file_path, file_size, language_type, last_modified`,
		req.ProjectID, req.FilePath, req.FileSize, req.LanguageType, req.LastModified)

	f, err := scanCodeFile(row)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("upsert file %s: project %s: %w", req.FilePath, req.ProjectID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("upsert file %s: %w", req.FilePath, err)
	}
	return &f, nil
}

func (s *Store) GetFile(ctx context.Context, id string) (*codefile.CodeFile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, project_id, file_path, file_size, language_type, last_modified
		 FROM code_files WHERE id = $1`, id)

	f, err := scanCodeFile(row)
	if err != nil {
		return nil, notFoundWrap(err, "get file %s", id)
	}
	return &f, nil
}

func (s *Store) GetFileByPath(ctx context.Context, projectID, filePath string) (*codefile.CodeFile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, project_id, file_path, file_size, language_type, last_modified
		 FROM code_files WHERE project_id = $1 AND file_path = $2`, projectID, filePath)

	f, err := scanCodeFile(row)
	if err != nil {
		return nil, notFoundWrap(err, "get file %s in project %s", filePath, projectID)
	}
	return &f, nil
}

func (s *Store) ListFiles(ctx context.Context, projectID string) ([]codefile.CodeFile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, file_path, file_size, language_type, last_modified
		 FROM code_files WHERE project_id = $1 ORDER BY file_path`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []codefile.CodeFile
	for rows.Next() {
		f, err := scanCodeFile(rows)
		if err != nil {
			return nil, fmt.Errorf("list files: scan: %w", err)
		}
		files = append(files, f)
	}
	return orEmpty(files), rows.Err()
}

// DeleteFile removes a file and its version history, refusing with
// domain.ErrConflict while any version is still referenced by a snapshot
// or a review task.
func (s *Store) DeleteFile(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("delete file %s: begin: %w", id, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var referenced bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM code_file_versions v
			WHERE v.code_file_id = $1
			  AND (EXISTS(SELECT 1 FROM code_file_version_snapshot_associations sa WHERE sa.version_id = v.id)
			    OR EXISTS(SELECT 1 FROM version_task_associations ta WHERE ta.version_id = v.id))
		)`, id).Scan(&referenced)
	if err != nil {
		return fmt.Errorf("delete file %s: check references: %w", id, err)
	}
	if referenced {
		return fmt.Errorf("delete file %s: versions still referenced: %w", id, domain.ErrConflict)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM code_files WHERE id = $1`, id)
	if err := execExpectOne(tag, err, "delete file %s", id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RecordVersion appends content to a file's history. If the content hash
// matches the file's latest version, that version is returned unchanged
// and created is false. The next version number is assigned under a row
// lock on the latest version; a lost insert race (unique violation on the
// version number) retries the whole read-decide-write once.
func (s *Store) RecordVersion(ctx context.Context, req codefile.RecordVersionRequest) (*codefile.Version, bool, error) {
	hash := codefile.HashContent([]byte(req.Content))

	v, created, err := s.recordVersionOnce(ctx, req, hash)
	if err != nil && isUniqueViolation(err) {
		v, created, err = s.recordVersionOnce(ctx, req, hash)
		if err != nil && isUniqueViolation(err) {
			return nil, false, fmt.Errorf("record version for file %s: %w", req.CodeFileID, domain.ErrConflict)
		}
	}
	return v, created, err
}

func (s *Store) recordVersionOnce(ctx context.Context, req codefile.RecordVersionRequest, hash string) (*codefile.Version, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("record version: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	v, created, err := recordVersionInTx(ctx, tx, req, hash)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("record version: commit: %w", err)
	}
	return v, created, nil
}

// recordVersionInTx runs the read-decide-write inside the caller's
// transaction, leaving commit and rollback to the caller. The row lock on
// the latest version is held until that transaction ends.
func recordVersionInTx(ctx context.Context, tx pgx.Tx, req codefile.RecordVersionRequest, hash string) (*codefile.Version, bool, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+versionColumns+` FROM code_file_versions
		 WHERE code_file_id = $1
		 ORDER BY version_number DESC LIMIT 1
		 FOR UPDATE`, req.CodeFileID)

	nextNumber := 1
	latest, err := scanVersion(row)
	switch {
	case err == nil:
		if latest.ContentHash == hash {
			// Identical content: reuse the latest version, no new row.
			return &latest, false, nil
		}
		nextNumber = latest.VersionNumber + 1
	case errors.Is(err, pgx.ErrNoRows):
		// First version for this file.
	default:
		return nil, false, fmt.Errorf("record version: read latest: %w", err)
	}

	row = tx.QueryRow(ctx,
		`INSERT INTO code_file_versions
			(code_file_id, version_number, content, content_hash, change_description, updated_by, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+versionColumns,
		req.CodeFileID, nextNumber, req.Content, hash,
		req.ChangeDescription, nullIfEmpty(req.AuthorID), req.UpdatedAt)

	v, err := scanVersion(row)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, false, fmt.Errorf("record version: file %s: %w", req.CodeFileID, domain.ErrNotFound)
		}
		return nil, false, fmt.Errorf("record version: insert: %w", err)
	}
	return &v, true, nil
}

func (s *Store) GetVersion(ctx context.Context, id string) (*codefile.Version, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+versionColumns+` FROM code_file_versions WHERE id = $1`, id)

	v, err := scanVersion(row)
	if err != nil {
		return nil, notFoundWrap(err, "get version %s", id)
	}
	return &v, nil
}

// ListVersions returns a file's history newest first.
func (s *Store) ListVersions(ctx context.Context, codeFileID string) ([]codefile.Version, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+versionColumns+` FROM code_file_versions
		 WHERE code_file_id = $1 ORDER BY version_number DESC`, codeFileID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var versions []codefile.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("list versions: scan: %w", err)
		}
		versions = append(versions, v)
	}
	return orEmpty(versions), rows.Err()
}
