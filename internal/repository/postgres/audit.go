package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/orgcast/internal/models"
)

const auditColumns = `id, action, entity_type, entity_id, actor_id, actor_role, request_id, before, after, scope, created_at`

func (s *Store) Append(ctx context.Context, e *models.AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO audit_entries (` + auditColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.pool.Exec(ctx, query,
		e.ID, e.Action, e.EntityType, e.EntityID, e.ActorID, string(e.ActorRole), e.RequestID,
		nullJSON(e.Before), nullJSON(e.After), nullJSON(e.Scope), e.CreatedAt)
	if err != nil {
		return wrap("insert audit entry", err)
	}
	return nil
}

// ListRecent returns entries newest first. Entry ids are ULIDs, so id
// order is time order.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_entries ORDER BY id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	scan := func(row pgx.Row) (*models.AuditEntry, error) {
		var (
			e                    models.AuditEntry
			before, after, scope []byte
		)
		err := row.Scan(
			&e.ID,
			&e.Action,
			&e.EntityType,
			&e.EntityID,
			&e.ActorID,
			&e.ActorRole,
			&e.RequestID,
			&before,
			&after,
			&scope,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		e.Before, e.After, e.Scope = before, after, scope
		return &e, nil
	}
	return list(ctx, s, "audit entries", scan, query)
}

// nullJSON stores an empty document as SQL NULL.
func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
