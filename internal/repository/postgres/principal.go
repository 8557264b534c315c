package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/orgcast/internal/models"
	"github.com/lalith-99/orgcast/internal/repository"
)

const principalColumns = `id, full_name, email, password_hash, role, is_active, created_at, updated_at`

func scanPrincipal(row pgx.Row) (*models.Principal, error) {
	var p models.Principal
	err := row.Scan(
		&p.ID,
		&p.FullName,
		&p.Email,
		&p.PasswordHash,
		&p.Role,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetPrincipal(ctx context.Context, id uuid.UUID) (*models.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE id = $1`

	p, err := scanPrincipal(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get principal: %w", err)
	}
	return p, nil
}

// GetPrincipalByEmail matches case-insensitively; login lowercases but
// stored rows may not be.
func (s *Store) GetPrincipalByEmail(ctx context.Context, email string) (*models.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE lower(email) = lower($1)`

	p, err := scanPrincipal(s.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get principal by email: %w", err)
	}
	return p, nil
}

func (s *Store) ListPrincipals(ctx context.Context, f repository.PrincipalFilter) ([]models.Principal, error) {
	var w where
	if len(f.IDs) > 0 {
		w.add("id = ANY(?)", f.IDs)
	}
	if len(f.Roles) > 0 {
		w.add("role = ANY(?)", stringsOf(f.Roles))
	}
	if f.ActiveOnly {
		w.add("is_active")
	}
	query := `SELECT ` + principalColumns + ` FROM principals` + w.String() + ` ORDER BY full_name, id`

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
	}
	defer rows.Close()

	out := make([]models.Principal, 0)
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan principal: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate principals: %w", err)
	}
	return out, nil
}

func (s *Store) CreatePrincipal(ctx context.Context, p *models.Principal) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	query := `
		INSERT INTO principals (` + principalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.FullName, p.Email, p.PasswordHash, string(p.Role), p.IsActive, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return wrap("insert principal", err)
	}
	return nil
}

func (s *Store) UpdatePrincipal(ctx context.Context, p *models.Principal) error {
	query := `
		UPDATE principals
		SET full_name = $2, email = $3, password_hash = $4, role = $5, is_active = $6, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at`

	err := s.pool.QueryRow(ctx, query,
		p.ID, p.FullName, p.Email, p.PasswordHash, string(p.Role), p.IsActive).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("update principal %s: not found", p.ID)
		}
		return wrap("update principal", err)
	}
	return nil
}

// DeletePrincipal removes the row. Only the bootstrap path reaches it.
func (s *Store) DeletePrincipal(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM principals WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete principal: %w", err)
	}
	return nil
}
