package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/orgcast/internal/models"
	"github.com/lalith-99/orgcast/internal/repository"
)

const (
	broadcastColumns = `id, sender_id, sender_role, title, body, priority, mode, recipient_count, breakdown, created_at`
	deliveryColumns  = `id, broadcast_id, recipient_id, status, delivered_at, read_at, created_at`
)

func scanBroadcast(row pgx.Row) (*models.Broadcast, error) {
	var (
		b         models.Broadcast
		breakdown []byte
	)
	err := row.Scan(
		&b.ID,
		&b.SenderID,
		&b.SenderRole,
		&b.Title,
		&b.Body,
		&b.Priority,
		&b.Mode,
		&b.RecipientCount,
		&breakdown,
		&b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(breakdown, &b.Breakdown); err != nil {
		return nil, fmt.Errorf("decode breakdown: %w", err)
	}
	return &b, nil
}

func scanDelivery(row pgx.Row) (*models.DeliveryAssignment, error) {
	var d models.DeliveryAssignment
	err := row.Scan(&d.ID, &d.BroadcastID, &d.RecipientID, &d.Status, &d.DeliveredAt, &d.ReadAt, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// broadcastTx writes through one open pgx transaction.
type broadcastTx struct {
	tx pgx.Tx
}

func (t *broadcastTx) InsertBroadcast(ctx context.Context, b *models.Broadcast) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	breakdown, err := json.Marshal(b.Breakdown.Summary())
	if err != nil {
		return fmt.Errorf("encode breakdown: %w", err)
	}

	query := `INSERT INTO broadcasts (` + broadcastColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = t.tx.Exec(ctx, query,
		b.ID, b.SenderID, string(b.SenderRole), b.Title, b.Body, string(b.Priority), string(b.Mode),
		b.RecipientCount, breakdown, b.CreatedAt)
	if err != nil {
		return wrap("insert broadcast", err)
	}
	return nil
}

func (t *broadcastTx) InsertAssignment(ctx context.Context, a *models.DeliveryAssignment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = models.AssignmentPending
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO delivery_assignments (` + deliveryColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := t.tx.Exec(ctx, query,
		a.ID, a.BroadcastID, a.RecipientID, string(a.Status), a.DeliveredAt, a.ReadAt, a.CreatedAt)
	if err != nil {
		return wrap("insert assignment", err)
	}
	return nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.BroadcastTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// No-op once committed.
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&broadcastTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrap("commit tx", err)
	}
	return nil
}

func (s *Store) GetBroadcast(ctx context.Context, id uuid.UUID) (*models.Broadcast, error) {
	return getOne(ctx, s, "broadcast", scanBroadcast, `SELECT `+broadcastColumns+` FROM broadcasts WHERE id = $1`, id)
}

func (s *Store) ListSent(ctx context.Context, senderID uuid.UUID, before time.Time, limit int) ([]models.Broadcast, error) {
	var w where
	w.add("sender_id = ?", senderID)
	if !before.IsZero() {
		w.add("created_at < ?", before)
	}
	query := `SELECT ` + broadcastColumns + ` FROM broadcasts` + w.String() + ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return list(ctx, s, "broadcasts", scanBroadcast, query, w.args...)
}

func (s *Store) ListDeliveries(ctx context.Context, broadcastID uuid.UUID) ([]models.DeliveryAssignment, error) {
	query := `SELECT ` + deliveryColumns + ` FROM delivery_assignments WHERE broadcast_id = $1 ORDER BY recipient_id`
	return list(ctx, s, "delivery assignments", scanDelivery, query, broadcastID)
}

func (s *Store) ListInbox(ctx context.Context, recipientID uuid.UUID, before time.Time, limit int) ([]models.InboxItem, error) {
	var w where
	w.add("d.recipient_id = ?", recipientID)
	if !before.IsZero() {
		w.add("d.created_at < ?", before)
	}
	query := `
		SELECT d.id, d.broadcast_id, d.recipient_id, d.status, d.delivered_at, d.read_at, d.created_at,
		       b.sender_id, b.title, b.body, b.priority
		FROM delivery_assignments d
		JOIN broadcasts b ON b.id = d.broadcast_id` + w.String() + `
		ORDER BY d.created_at DESC, d.id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	scan := func(row pgx.Row) (*models.InboxItem, error) {
		var it models.InboxItem
		err := row.Scan(
			&it.ID,
			&it.BroadcastID,
			&it.RecipientID,
			&it.Status,
			&it.DeliveredAt,
			&it.ReadAt,
			&it.CreatedAt,
			&it.SenderID,
			&it.Title,
			&it.Body,
			&it.Priority,
		)
		if err != nil {
			return nil, err
		}
		return &it, nil
	}
	return list(ctx, s, "inbox", scan, query, w.args...)
}

func (s *Store) MarkDelivered(ctx context.Context, broadcastID uuid.UUID, recipientIDs []uuid.UUID, at time.Time) (int, error) {
	if len(recipientIDs) == 0 {
		return 0, nil
	}
	query := `
		UPDATE delivery_assignments
		SET status = 'delivered', delivered_at = $3
		WHERE broadcast_id = $1 AND status = 'pending' AND recipient_id = ANY($2)`

	tag, err := s.pool.Exec(ctx, query, broadcastID, recipientIDs, at)
	if err != nil {
		return 0, fmt.Errorf("mark delivered: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// MarkRead keeps the first read_at when called again.
func (s *Store) MarkRead(ctx context.Context, assignmentID, recipientID uuid.UUID, at time.Time) (*models.DeliveryAssignment, error) {
	query := `
		UPDATE delivery_assignments
		SET status = 'read', read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND recipient_id = $2
		RETURNING ` + deliveryColumns

	d, err := scanDelivery(s.pool.QueryRow(ctx, query, assignmentID, recipientID, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("mark read: %w", err)
	}
	return d, nil
}
