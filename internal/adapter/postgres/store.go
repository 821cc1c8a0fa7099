package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codescope/codescope/internal/domain"
	"github.com/codescope/codescope/internal/domain/project"
	"github.com/codescope/codescope/internal/domain/user"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Users ---

func (s *Store) CreateUser(ctx context.Context, req user.CreateRequest) (*user.User, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, email) VALUES ($1, $2)
		 RETURNING id, username, email, created_at`,
		req.Username, req.Email)

	var u user.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create user %s: %w", req.Username, domain.ErrConflict)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*user.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, username, email, created_at FROM users WHERE id = $1`, id)

	var u user.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt); err != nil {
		return nil, notFoundWrap(err, "get user %s", id)
	}
	return &u, nil
}

// --- Projects ---

func scanProject(row scannable) (project.Project, error) {
	var p project.Project
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.ProgrammingLanguage,
		&p.LocalPath, &p.OwnerID, &p.CreatedAt)
	return p, err
}

// CreateProject inserts the project and enrolls the owner as a member in
// the same transaction, so a project is never visible without its owner
// on the team.
func (s *Store) CreateProject(ctx context.Context, ownerID string, req project.CreateRequest) (*project.Project, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("create project: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	row := tx.QueryRow(ctx,
		`INSERT INTO projects (name, description, programming_language, local_path, owner_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, name, description, programming_language, local_path, owner_id, created_at`,
		req.Name, req.Description, req.ProgrammingLanguage, req.LocalPath, ownerID)

	p, err := scanProject(row)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("create project: owner %s: %w", ownerID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("create project: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO project_members (project_id, user_id, role) VALUES ($1, $2, $3)`,
		p.ID, ownerID, project.RoleOwner); err != nil {
		return nil, fmt.Errorf("create project: enroll owner: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("create project: commit: %w", err)
	}
	return &p, nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*project.Project, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, description, programming_language, local_path, owner_id, created_at
		 FROM projects WHERE id = $1`, id)

	p, err := scanProject(row)
	if err != nil {
		return nil, notFoundWrap(err, "get project %s", id)
	}
	return &p, nil
}

// ListProjects returns the projects the user belongs to, newest first.
func (s *Store) ListProjects(ctx context.Context, userID string) ([]project.Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.name, p.description, p.programming_language, p.local_path, p.owner_id, p.created_at
		 FROM projects p
		 JOIN project_members m ON m.project_id = p.id
		 WHERE m.user_id = $1
		 ORDER BY p.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []project.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("list projects: scan: %w", err)
		}
		projects = append(projects, p)
	}
	return orEmpty(projects), rows.Err()
}

// DeleteProject relies on ON DELETE CASCADE to remove every file, version,
// snapshot, task, result and issue under the project.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete project %s", id)
}

func (s *Store) AddMember(ctx context.Context, projectID, userID string, role project.Role) (*project.Member, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO project_members (project_id, user_id, role) VALUES ($1, $2, $3)
		 RETURNING project_id, user_id, role, joined_at`,
		projectID, userID, role)

	var m project.Member
	if err := row.Scan(&m.ProjectID, &m.UserID, &m.Role, &m.JoinedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("add member %s to %s: %w", userID, projectID, domain.ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("add member %s to %s: %w", userID, projectID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("add member: %w", err)
	}
	return &m, nil
}

func (s *Store) IsMember(ctx context.Context, projectID, userID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM project_members WHERE project_id = $1 AND user_id = $2)`,
		projectID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}
