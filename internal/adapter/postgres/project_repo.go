package postgres

import (
	"context"
	"database/sql"
	"errors"

	"ngoportal/internal/domain"
)

// ProjectRepo implements project repository operations on DB.
type ProjectRepo struct {
	db *DB
}

// NewProjectRepo wraps a DB as a ProjectRepository.
func NewProjectRepo(db *DB) *ProjectRepo {
	return &ProjectRepo{db: db}
}

// Insert stores a project and returns its id.
func (r *ProjectRepo) Insert(ctx context.Context, p *domain.Project) (int64, error) {
	var id int64
	err := r.db.sql.QueryRowContext(ctx,
		`INSERT INTO projects (title, description, cause, goal_paise, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		p.Title, p.Description, p.Cause, p.GoalPaise, p.Active, p.CreatedAt,
	).Scan(&id)
	return id, err
}

// Get retrieves a project by id.
func (r *ProjectRepo) Get(ctx context.Context, id int64) (*domain.Project, error) {
	var p domain.Project
	err := r.db.sql.QueryRowContext(ctx,
		"SELECT id, title, description, cause, goal_paise, active, created_at FROM projects WHERE id = $1",
		id,
	).Scan(&p.ID, &p.Title, &p.Description, &p.Cause, &p.GoalPaise, &p.Active, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns projects, newest first.
func (r *ProjectRepo) List(ctx context.Context, activeOnly bool, limit int) ([]domain.Project, error) {
	query := "SELECT id, title, description, cause, goal_paise, active, created_at FROM projects"
	if activeOnly {
		query += " WHERE active"
	}
	query += " ORDER BY created_at DESC LIMIT $1"

	rows, err := r.db.sql.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.Cause, &p.GoalPaise, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// Update replaces a stored project's mutable fields.
func (r *ProjectRepo) Update(ctx context.Context, p *domain.Project) error {
	_, err := r.db.sql.ExecContext(ctx,
		"UPDATE projects SET title = $1, description = $2, cause = $3, goal_paise = $4, active = $5 WHERE id = $6",
		p.Title, p.Description, p.Cause, p.GoalPaise, p.Active, p.ID,
	)
	return err
}

// Delete removes a project by id.
func (r *ProjectRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.sql.ExecContext(ctx, "DELETE FROM projects WHERE id = $1", id)
	return err
}

// RememberTokenRepo implements remember-token operations on DB.
type RememberTokenRepo struct {
	db *DB
}

// NewRememberTokenRepo wraps a DB as a RememberTokenRepository.
func NewRememberTokenRepo(db *DB) *RememberTokenRepo {
	return &RememberTokenRepo{db: db}
}

// Insert stores a remember-me token record.
func (r *RememberTokenRepo) Insert(ctx context.Context, t *domain.RememberToken) error {
	_, err := r.db.sql.ExecContext(ctx,
		"INSERT INTO remember_tokens (token_hash, user_id, expires_at, created_at) VALUES ($1, $2, $3, $4)",
		t.TokenHash, t.UserID, t.ExpiresAt, t.CreatedAt,
	)
	return err
}

// FindByHash retrieves a remember-me token by its hash.
func (r *RememberTokenRepo) FindByHash(ctx context.Context, tokenHash string) (*domain.RememberToken, error) {
	var t domain.RememberToken
	err := r.db.sql.QueryRowContext(ctx,
		"SELECT token_hash, user_id, expires_at, created_at FROM remember_tokens WHERE token_hash = $1",
		tokenHash,
	).Scan(&t.TokenHash, &t.UserID, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteByHash removes a remember-me token by its hash.
func (r *RememberTokenRepo) DeleteByHash(ctx context.Context, tokenHash string) error {
	_, err := r.db.sql.ExecContext(ctx, "DELETE FROM remember_tokens WHERE token_hash = $1", tokenHash)
	return err
}
