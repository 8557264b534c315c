package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/orgcast/internal/models"
)

const endpointColumns = `id, principal_id, endpoint, p256dh, auth, user_agent, created_at, last_used_at`

func scanEndpoint(row pgx.Row) (*models.PushEndpoint, error) {
	var e models.PushEndpoint
	err := row.Scan(&e.ID, &e.PrincipalID, &e.Endpoint, &e.P256dh, &e.Auth, &e.UserAgent, &e.CreatedAt, &e.LastUsedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Upsert rebinds an existing endpoint URL to e.PrincipalID; the row id
// and created_at of the first registration survive.
func (s *Store) Upsert(ctx context.Context, e *models.PushEndpoint) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := time.Now().UTC()
	if e.LastUsedAt.IsZero() {
		e.LastUsedAt = now
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}

	query := `
		INSERT INTO push_endpoints (` + endpointColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (endpoint) DO UPDATE
		SET principal_id = EXCLUDED.principal_id,
		    p256dh = EXCLUDED.p256dh,
		    auth = EXCLUDED.auth,
		    user_agent = EXCLUDED.user_agent,
		    last_used_at = EXCLUDED.last_used_at
		RETURNING id, created_at`

	err := s.pool.QueryRow(ctx, query,
		e.ID, e.PrincipalID, e.Endpoint, e.P256dh, e.Auth, e.UserAgent, e.CreatedAt, e.LastUsedAt,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return wrap("upsert push endpoint", err)
	}
	return nil
}

func (s *Store) ListFresh(ctx context.Context, principalIDs []uuid.UUID, since time.Time) ([]models.PushEndpoint, error) {
	if len(principalIDs) == 0 {
		return make([]models.PushEndpoint, 0), nil
	}
	query := `
		SELECT ` + endpointColumns + `
		FROM push_endpoints
		WHERE principal_id = ANY($1) AND last_used_at >= $2
		ORDER BY endpoint`
	return list(ctx, s, "push endpoints", scanEndpoint, query, principalIDs, since)
}

func (s *Store) Touch(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `UPDATE push_endpoints SET last_used_at = $2 WHERE id = ANY($1)`, ids, at); err != nil {
		return fmt.Errorf("touch push endpoints: %w", err)
	}
	return nil
}

func (s *Store) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM push_endpoints WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete push endpoints: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) DeleteForPrincipal(ctx context.Context, principalID uuid.UUID, endpoint string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM push_endpoints WHERE principal_id = $1 AND endpoint = $2`, principalID, endpoint)
	if err != nil {
		return false, fmt.Errorf("delete push endpoint: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
