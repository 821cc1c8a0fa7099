package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/codescope/codescope/internal/domain"
	"github.com/codescope/codescope/internal/domain/codefile"
	"github.com/codescope/codescope/internal/domain/snapshot"
)

const snapshotColumns = `id, project_id, name, description, COALESCE(created_by::text, ''), created_at`

func scanSnapshot(row scannable) (snapshot.Snapshot, error) {
	var sn snapshot.Snapshot
	err := row.Scan(&sn.ID, &sn.ProjectID, &sn.Name, &sn.Description,
		&sn.CreatedBy, &sn.CreatedAt)
	return sn, err
}

func (s *Store) CreateSnapshot(ctx context.Context, createdBy string, req snapshot.CreateRequest) (*snapshot.Snapshot, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO project_version_snapshots (project_id, name, description, created_by)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+snapshotColumns,
		req.ProjectID, req.Name, req.Description, nullIfEmpty(createdBy))

	sn, err := scanSnapshot(row)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("create snapshot: project %s: %w", req.ProjectID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("create snapshot: %w", err)
	}
	return &sn, nil
}

func (s *Store) GetSnapshot(ctx context.Context, id string) (*snapshot.Snapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM project_version_snapshots WHERE id = $1`, id)

	sn, err := scanSnapshot(row)
	if err != nil {
		return nil, notFoundWrap(err, "get snapshot %s", id)
	}
	return &sn, nil
}

func (s *Store) ListSnapshots(ctx context.Context, projectID string) ([]snapshot.Snapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+snapshotColumns+` FROM project_version_snapshots
		 WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []snapshot.Snapshot
	for rows.Next() {
		sn, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("list snapshots: scan: %w", err)
		}
		snapshots = append(snapshots, sn)
	}
	return orEmpty(snapshots), rows.Err()
}

// AttachVersionToSnapshot links an existing version into a snapshot.
// Attaching the same version twice is a no-op.
func (s *Store) AttachVersionToSnapshot(ctx context.Context, snapshotID, versionID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO code_file_version_snapshot_associations (snapshot_id, version_id)
		 VALUES ($1, $2)
		 ON CONFLICT (snapshot_id, version_id) DO NOTHING`,
		snapshotID, versionID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("attach version %s to snapshot %s: %w", versionID, snapshotID, domain.ErrNotFound)
		}
		return fmt.Errorf("attach version %s to snapshot %s: %w", versionID, snapshotID, err)
	}
	return nil
}

// AttachFileVersion records content for a file (or reuses the latest
// version on a hash match) and links the resulting version into the
// snapshot, as a single transaction. Either both land or neither does: a
// dedup hit cannot lose its version to a concurrent reclaim between record
// and link, and a failed link never leaves an unreferenced new version
// behind. The insert race retries once, like RecordVersion.
func (s *Store) AttachFileVersion(ctx context.Context, snapshotID string, req codefile.RecordVersionRequest) (*codefile.Version, bool, error) {
	hash := codefile.HashContent([]byte(req.Content))

	v, created, err := s.attachFileVersionOnce(ctx, snapshotID, req, hash)
	if err != nil && isUniqueViolation(err) {
		v, created, err = s.attachFileVersionOnce(ctx, snapshotID, req, hash)
		if err != nil && isUniqueViolation(err) {
			return nil, false, fmt.Errorf("attach version for file %s: %w", req.CodeFileID, domain.ErrConflict)
		}
	}
	return v, created, err
}

func (s *Store) attachFileVersionOnce(ctx context.Context, snapshotID string, req codefile.RecordVersionRequest, hash string) (*codefile.Version, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("attach version: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	v, created, err := recordVersionInTx(ctx, tx, req, hash)
	if err != nil {
		return nil, false, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO code_file_version_snapshot_associations (snapshot_id, version_id)
		 VALUES ($1, $2)
		 ON CONFLICT (snapshot_id, version_id) DO NOTHING`,
		snapshotID, v.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, false, fmt.Errorf("attach version %s to snapshot %s: %w", v.ID, snapshotID, domain.ErrNotFound)
		}
		return nil, false, fmt.Errorf("attach version %s to snapshot %s: %w", v.ID, snapshotID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("attach version: commit: %w", err)
	}
	return v, created, nil
}

// DeleteSnapshot removes the snapshot, then reclaims any of its versions
// left with no snapshot or task reference, all in one transaction. The
// association rows disappear with the snapshot via cascade; the candidate
// versions are collected first and locked so a concurrent attach cannot
// race the reclaim scan.
func (s *Store) DeleteSnapshot(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("delete snapshot %s: begin: %w", id, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	linked, err := collectLinkedVersions(ctx, tx,
		`SELECT version_id FROM code_file_version_snapshot_associations WHERE snapshot_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete snapshot %s: collect versions: %w", id, err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM project_version_snapshots WHERE id = $1`, id)
	if err := execExpectOne(tag, err, "delete snapshot %s", id); err != nil {
		return err
	}

	if err := reclaimOrphanVersions(ctx, tx, linked); err != nil {
		return fmt.Errorf("delete snapshot %s: reclaim: %w", id, err)
	}

	return tx.Commit(ctx)
}

// GetSnapshotDetail joins the snapshot's versions with their files,
// ordered by path. File sizes are pre-formatted for display.
func (s *Store) GetSnapshotDetail(ctx context.Context, id string) (*snapshot.Detail, error) {
	sn, err := s.GetSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT f.id, f.file_path, f.file_size, v.id,
		        v.change_description, COALESCE(v.updated_by::text, ''), v.updated_at
		 FROM code_file_version_snapshot_associations a
		 JOIN code_file_versions v ON v.id = a.version_id
		 JOIN code_files f ON f.id = v.code_file_id
		 WHERE a.snapshot_id = $1
		 ORDER BY f.file_path`, id)
	if err != nil {
		return nil, fmt.Errorf("snapshot detail %s: %w", id, err)
	}
	defer rows.Close()

	files := []snapshot.FileEntry{}
	for rows.Next() {
		var e snapshot.FileEntry
		var size int64
		if err := rows.Scan(&e.CodeFileID, &e.FilePath, &size, &e.VersionID,
			&e.ChangeDescription, &e.UpdatedBy, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("snapshot detail %s: scan: %w", id, err)
		}
		e.FileSize = codefile.FormatSize(size)
		files = append(files, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot detail %s: %w", id, err)
	}

	return &snapshot.Detail{Snapshot: *sn, Files: files}, nil
}

// collectLinkedVersions reads the version ids a parent currently references.
func collectLinkedVersions(ctx context.Context, tx pgx.Tx, query, parentID string) ([]string, error) {
	rows, err := tx.Query(ctx, query, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// reclaimOrphanVersions deletes the candidate versions that no snapshot or
// task references anymore. Candidates are locked first so a concurrent
// attach either blocks until this transaction decides, or sees the version
// already gone.
func reclaimOrphanVersions(ctx context.Context, tx pgx.Tx, candidates []string) error {
	if len(candidates) == 0 {
		return nil
	}

	if _, err := tx.Exec(ctx,
		`SELECT id FROM code_file_versions WHERE id = ANY($1) FOR UPDATE`, candidates); err != nil {
		return fmt.Errorf("lock candidates: %w", err)
	}

	_, err := tx.Exec(ctx,
		`DELETE FROM code_file_versions v
		 WHERE v.id = ANY($1)
		   AND NOT EXISTS(SELECT 1 FROM code_file_version_snapshot_associations sa WHERE sa.version_id = v.id)
		   AND NOT EXISTS(SELECT 1 FROM version_task_associations ta WHERE ta.version_id = v.id)`,
		candidates)
	if err != nil {
		return fmt.Errorf("delete orphans: %w", err)
	}
	return nil
}
