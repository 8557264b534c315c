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

const (
	unitColumns       = `id, kind, name, parent_id, is_active, created_at`
	assignmentColumns = `id, principal_id, unit_id, relation, city_id, created_at`
	activistColumns   = `id, principal_id, full_name, neighborhood_id, city_id, coordinator_id, is_active, created_at, updated_at`
)

func scanUnit(row pgx.Row) (*models.Unit, error) {
	var u models.Unit
	if err := row.Scan(&u.ID, &u.Kind, &u.Name, &u.ParentID, &u.IsActive, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanAssignment(row pgx.Row) (*models.ScopeAssignment, error) {
	var a models.ScopeAssignment
	if err := row.Scan(&a.ID, &a.PrincipalID, &a.UnitID, &a.Relation, &a.CityID, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanActivist(row pgx.Row) (*models.Activist, error) {
	var a models.Activist
	err := row.Scan(
		&a.ID,
		&a.PrincipalID,
		&a.FullName,
		&a.NeighborhoodID,
		&a.CityID,
		&a.CoordinatorID,
		&a.IsActive,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// getOne runs a single-row query and returns nil, nil on no rows.
func getOne[T any](ctx context.Context, s *Store, what string, scan func(pgx.Row) (*T, error), query string, args ...any) (*T, error) {
	v, err := scan(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s: %w", what, err)
	}
	return v, nil
}

func list[T any](ctx context.Context, s *Store, what string, scan func(pgx.Row) (*T, error), query string, args ...any) ([]T, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", what, err)
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", what, err)
	}
	return out, nil
}

func (s *Store) GetUnit(ctx context.Context, id uuid.UUID) (*models.Unit, error) {
	return getOne(ctx, s, "unit", scanUnit, `SELECT `+unitColumns+` FROM units WHERE id = $1`, id)
}

func (s *Store) ListUnits(ctx context.Context, f repository.UnitFilter) ([]models.Unit, error) {
	var w where
	if len(f.IDs) > 0 {
		w.add("id = ANY(?)", f.IDs)
	}
	if len(f.ParentIDs) > 0 {
		w.add("parent_id = ANY(?)", f.ParentIDs)
	}
	if f.Kind != "" {
		w.add("kind = ?", string(f.Kind))
	}
	if f.ActiveOnly {
		w.add("is_active")
	}
	query := `SELECT ` + unitColumns + ` FROM units` + w.String() + ` ORDER BY name, id`
	return list(ctx, s, "units", scanUnit, query, w.args...)
}

func (s *Store) CreateUnit(ctx context.Context, u *models.Unit) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO units (` + unitColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.pool.Exec(ctx, query, u.ID, string(u.Kind), u.Name, u.ParentID, u.IsActive, u.CreatedAt); err != nil {
		return wrap("insert unit", err)
	}
	return nil
}

func (s *Store) GetAssignment(ctx context.Context, id uuid.UUID) (*models.ScopeAssignment, error) {
	return getOne(ctx, s, "assignment", scanAssignment, `SELECT `+assignmentColumns+` FROM scope_assignments WHERE id = $1`, id)
}

// ListAssignments orders by creation so recipient resolution sees rows in
// the order they were granted.
func (s *Store) ListAssignments(ctx context.Context, f repository.AssignmentFilter) ([]models.ScopeAssignment, error) {
	var w where
	if len(f.PrincipalIDs) > 0 {
		w.add("principal_id = ANY(?)", f.PrincipalIDs)
	}
	if len(f.UnitIDs) > 0 {
		w.add("unit_id = ANY(?)", f.UnitIDs)
	}
	if len(f.Relations) > 0 {
		w.add("relation = ANY(?)", stringsOf(f.Relations))
	}
	query := `SELECT ` + assignmentColumns + ` FROM scope_assignments` + w.String() + ` ORDER BY created_at, id`
	return list(ctx, s, "assignments", scanAssignment, query, w.args...)
}

func (s *Store) CreateAssignment(ctx context.Context, a *models.ScopeAssignment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO scope_assignments (` + assignmentColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.pool.Exec(ctx, query, a.ID, a.PrincipalID, a.UnitID, string(a.Relation), a.CityID, a.CreatedAt); err != nil {
		return wrap("insert assignment", err)
	}
	return nil
}

func (s *Store) DeleteAssignment(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM scope_assignments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	return nil
}

func (s *Store) GetActivist(ctx context.Context, id uuid.UUID) (*models.Activist, error) {
	return getOne(ctx, s, "activist", scanActivist, `SELECT `+activistColumns+` FROM activists WHERE id = $1`, id)
}

func (s *Store) GetActivistByPrincipal(ctx context.Context, principalID uuid.UUID) (*models.Activist, error) {
	return getOne(ctx, s, "activist", scanActivist, `SELECT `+activistColumns+` FROM activists WHERE principal_id = $1`, principalID)
}

func (s *Store) ListActivists(ctx context.Context, f repository.ActivistFilter) ([]models.Activist, error) {
	var w where
	if len(f.CityIDs) > 0 {
		w.add("city_id = ANY(?)", f.CityIDs)
	}
	if f.LinkedOnly {
		w.add("principal_id IS NOT NULL")
	}
	if f.ActiveOnly {
		w.add("is_active")
	}
	query := `SELECT ` + activistColumns + ` FROM activists` + w.String() + ` ORDER BY full_name, id`
	return list(ctx, s, "activists", scanActivist, query, w.args...)
}

func (s *Store) CreateActivist(ctx context.Context, a *models.Activist) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	query := `INSERT INTO activists (` + activistColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.pool.Exec(ctx, query,
		a.ID, a.PrincipalID, a.FullName, a.NeighborhoodID, a.CityID, a.CoordinatorID, a.IsActive, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return wrap("insert activist", err)
	}
	return nil
}

func (s *Store) UpdateActivist(ctx context.Context, a *models.Activist) error {
	query := `
		UPDATE activists
		SET principal_id = $2, full_name = $3, neighborhood_id = $4, city_id = $5,
		    coordinator_id = $6, is_active = $7, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at`

	err := s.pool.QueryRow(ctx, query,
		a.ID, a.PrincipalID, a.FullName, a.NeighborhoodID, a.CityID, a.CoordinatorID, a.IsActive,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("update activist %s: not found", a.ID)
		}
		return wrap("update activist", err)
	}
	return nil
}

func (s *Store) DeleteActivist(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM activists WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete activist: %w", err)
	}
	return nil
}
