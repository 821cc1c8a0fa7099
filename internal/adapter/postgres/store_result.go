package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/codescope/codescope/internal/domain"
	"github.com/codescope/codescope/internal/domain/reviewresult"
)

func scanResult(row scannable) (reviewresult.Result, error) {
	var r reviewresult.Result
	var severityJSON, categoryJSON []byte
	var elapsedMS int64
	err := row.Scan(&r.ID, &r.TaskID, &r.Scope, &r.VersionID,
		&severityJSON, &categoryJSON, &r.Metadata, &elapsedMS, &r.CreatedAt)
	if err != nil {
		return r, err
	}
	r.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	if err := json.Unmarshal(severityJSON, &r.CountsBySeverity); err != nil {
		return r, fmt.Errorf("decode severity counts: %w", err)
	}
	if err := json.Unmarshal(categoryJSON, &r.CountsByCategory); err != nil {
		return r, fmt.Errorf("decode category counts: %w", err)
	}
	return r, nil
}

const resultColumns = `id, review_task_id, review_scope, COALESCE(version_id::text, ''),
	counts_by_severity, counts_by_category, result_metadata, elapsed_ms, created_at`

// CreateResult records the one-to-one result row for a task. A second
// result for the same task refuses with domain.ErrConflict.
func (s *Store) CreateResult(ctx context.Context, req reviewresult.RecordRequest) (*reviewresult.Result, error) {
	severityJSON, err := json.Marshal(orEmptyCounts(req.CountsBySeverity))
	if err != nil {
		return nil, fmt.Errorf("create result: marshal severity counts: %w", err)
	}
	categoryJSON, err := json.Marshal(orEmptyCounts(req.CountsByCategory))
	if err != nil {
		return nil, fmt.Errorf("create result: marshal category counts: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO review_results
			(review_task_id, review_scope, version_id, counts_by_severity, counts_by_category, result_metadata, elapsed_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+resultColumns,
		req.TaskID, req.Scope, nullIfEmpty(req.VersionID),
		severityJSON, categoryJSON, req.Metadata, req.Elapsed.Milliseconds())

	r, err := scanResult(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create result: task %s already has one: %w", req.TaskID, domain.ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("create result: task %s: %w", req.TaskID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("create result: %w", err)
	}
	return &r, nil
}

func (s *Store) GetResultByTask(ctx context.Context, taskID string) (*reviewresult.Result, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM review_results WHERE review_task_id = $1`, taskID)

	r, err := scanResult(row)
	if err != nil {
		return nil, notFoundWrap(err, "result for task %s", taskID)
	}
	return &r, nil
}

const singleIssueColumns = `id, result_id, version_id, category, severity,
	line_begin, line_end, code_snippet, description, suggestion, confidence,
	status, resolved_at, created_at`

func scanSingleIssue(row scannable) (reviewresult.SingleFileIssue, error) {
	var i reviewresult.SingleFileIssue
	err := row.Scan(&i.ID, &i.ResultID, &i.VersionID, &i.Category, &i.Severity,
		&i.LineBegin, &i.LineEnd, &i.CodeSnippet, &i.Description, &i.Suggestion,
		&i.ConfidenceScore, &i.Status, &i.ResolvedAt, &i.CreatedAt)
	return i, err
}

func (s *Store) AddSingleFileIssue(ctx context.Context, resultID, versionID string, fields reviewresult.IssueFields) (*reviewresult.SingleFileIssue, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO single_file_issues
			(result_id, version_id, category, severity, line_begin, line_end, code_snippet, description, suggestion, confidence)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+singleIssueColumns,
		resultID, versionID, fields.Category, fields.Severity,
		fields.LineBegin, fields.LineEnd, fields.CodeSnippet,
		fields.Description, fields.Suggestion, fields.ConfidenceScore)

	i, err := scanSingleIssue(row)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("add single-file issue: result %s or version %s: %w", resultID, versionID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("add single-file issue: %w", err)
	}
	return &i, nil
}

const crossIssueColumns = `id, result_id, category, severity, description,
	suggestion, confidence, status, resolved_at, created_at`

func scanCrossIssue(row scannable) (reviewresult.CrossFileIssue, error) {
	var i reviewresult.CrossFileIssue
	err := row.Scan(&i.ID, &i.ResultID, &i.Category, &i.Severity, &i.Description,
		&i.Suggestion, &i.ConfidenceScore, &i.Status, &i.ResolvedAt, &i.CreatedAt)
	return i, err
}

// AddCrossFileIssue inserts the issue and its affected-version links in
// one transaction; a cross-file issue is never visible half-linked.
func (s *Store) AddCrossFileIssue(ctx context.Context, resultID string, fields reviewresult.IssueFields, affected []reviewresult.AffectedVersion) (*reviewresult.CrossFileIssue, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("add cross-file issue: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	row := tx.QueryRow(ctx,
		`INSERT INTO cross_file_issues
			(result_id, category, severity, description, suggestion, confidence)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+crossIssueColumns,
		resultID, fields.Category, fields.Severity,
		fields.Description, fields.Suggestion, fields.ConfidenceScore)

	i, err := scanCrossIssue(row)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("add cross-file issue: result %s: %w", resultID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("add cross-file issue: %w", err)
	}

	for _, av := range affected {
		var link reviewresult.AffectedVersion
		err := tx.QueryRow(ctx,
			`INSERT INTO cross_file_issue_versions (issue_id, version_id, context)
			 VALUES ($1, $2, $3)
			 RETURNING id, issue_id, version_id, context`,
			i.ID, av.VersionID, av.Context).
			Scan(&link.ID, &link.IssueID, &link.VersionID, &link.Context)
		if err != nil {
			if isForeignKeyViolation(err) {
				return nil, fmt.Errorf("link version %s to issue %s: %w", av.VersionID, i.ID, domain.ErrNotFound)
			}
			return nil, fmt.Errorf("link version %s to issue %s: %w", av.VersionID, i.ID, err)
		}
		i.Affected = append(i.Affected, link)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("add cross-file issue: commit: %w", err)
	}
	return &i, nil
}

func (s *Store) ListSingleFileIssues(ctx context.Context, resultID string) ([]reviewresult.SingleFileIssue, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+singleIssueColumns+` FROM single_file_issues
		 WHERE result_id = $1 ORDER BY created_at`, resultID)
	if err != nil {
		return nil, fmt.Errorf("list single-file issues: %w", err)
	}
	defer rows.Close()

	var issues []reviewresult.SingleFileIssue
	for rows.Next() {
		i, err := scanSingleIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("list single-file issues: scan: %w", err)
		}
		issues = append(issues, i)
	}
	return orEmpty(issues), rows.Err()
}

func (s *Store) ListCrossFileIssues(ctx context.Context, resultID string) ([]reviewresult.CrossFileIssue, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+crossIssueColumns+` FROM cross_file_issues
		 WHERE result_id = $1 ORDER BY created_at`, resultID)
	if err != nil {
		return nil, fmt.Errorf("list cross-file issues: %w", err)
	}
	defer rows.Close()

	var issues []reviewresult.CrossFileIssue
	for rows.Next() {
		i, err := scanCrossIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("list cross-file issues: scan: %w", err)
		}
		issues = append(issues, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for idx := range issues {
		affected, err := s.listAffectedVersions(ctx, issues[idx].ID)
		if err != nil {
			return nil, err
		}
		issues[idx].Affected = affected
	}
	return orEmpty(issues), nil
}

func (s *Store) listAffectedVersions(ctx context.Context, issueID string) ([]reviewresult.AffectedVersion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, issue_id, version_id, context FROM cross_file_issue_versions
		 WHERE issue_id = $1`, issueID)
	if err != nil {
		return nil, fmt.Errorf("list affected versions: %w", err)
	}
	defer rows.Close()

	var links []reviewresult.AffectedVersion
	for rows.Next() {
		var av reviewresult.AffectedVersion
		if err := rows.Scan(&av.ID, &av.IssueID, &av.VersionID, &av.Context); err != nil {
			return nil, fmt.Errorf("list affected versions: scan: %w", err)
		}
		links = append(links, av)
	}
	return links, rows.Err()
}

// ResolveIssue advances an issue's closure status. The issue may live in
// either issue table; both are checked under lock. Terminal transitions
// stamp resolved_at.
func (s *Store) ResolveIssue(ctx context.Context, issueID string, to reviewresult.IssueStatus) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("resolve issue %s: begin: %w", issueID, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	table := "single_file_issues"
	from, err := lockIssueStatus(ctx, tx, table, issueID)
	if err != nil {
		table = "cross_file_issues"
		from, err = lockIssueStatus(ctx, tx, table, issueID)
		if err != nil {
			return notFoundWrap(err, "resolve issue %s", issueID)
		}
	}

	if !reviewresult.CanTransition(from, to) {
		return fmt.Errorf("issue %s: %s -> %s: %w", issueID, from, to, domain.ErrStateViolation)
	}

	var resolvedAt any
	if to.Terminal() {
		resolvedAt = time.Now().UTC()
	}
	if _, err := tx.Exec(ctx,
		`UPDATE `+table+` SET status = $2, resolved_at = $3 WHERE id = $1`,
		issueID, to, resolvedAt); err != nil {
		return fmt.Errorf("resolve issue %s: %w", issueID, err)
	}

	return tx.Commit(ctx)
}

func lockIssueStatus(ctx context.Context, tx pgx.Tx, table, issueID string) (reviewresult.IssueStatus, error) {
	var status reviewresult.IssueStatus
	err := tx.QueryRow(ctx,
		`SELECT status FROM `+table+` WHERE id = $1 FOR UPDATE`, issueID).Scan(&status)
	return status, err
}

// orEmptyCounts normalizes nil count maps so the stored JSON is {} rather
// than null.
func orEmptyCounts(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}
