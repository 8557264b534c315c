package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/orgcast/internal/models"
	"github.com/lalith-99/orgcast/internal/repository"
)

// tx stages writes; nothing reaches the store until WithinTx commits.
type tx struct {
	store      *Store
	broadcasts []models.Broadcast
	deliveries []models.DeliveryAssignment
	pairs      map[[2]uuid.UUID]struct{}
}

func (t *tx) InsertBroadcast(ctx context.Context, b *models.Broadcast) error {
	ensureID(&b.ID)
	if b.CreatedAt.IsZero() {
		b.CreatedAt = t.store.clock()
	}
	t.broadcasts = append(t.broadcasts, *b)
	return nil
}

func (t *tx) InsertAssignment(ctx context.Context, a *models.DeliveryAssignment) error {
	ensureID(&a.ID)
	key := [2]uuid.UUID{a.BroadcastID, a.RecipientID}
	if _, dup := t.pairs[key]; dup {
		return fmt.Errorf("insert assignment: %w", repository.ErrConflict)
	}
	t.pairs[key] = struct{}{}
	if a.Status == "" {
		a.Status = models.AssignmentPending
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = t.store.clock()
	}
	t.deliveries = append(t.deliveries, *a)
	return nil
}

func (s *Store) clock() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now()
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.BroadcastTx) error) error {
	t := &tx{store: s, pairs: make(map[[2]uuid.UUID]struct{})}
	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range t.broadcasts {
		if _, exists := s.broadcasts[b.ID]; exists {
			return fmt.Errorf("commit broadcast: %w", repository.ErrConflict)
		}
	}
	for _, d := range t.deliveries {
		if _, exists := s.deliveries[d.ID]; exists {
			return fmt.Errorf("commit assignment: %w", repository.ErrConflict)
		}
	}
	for _, b := range t.broadcasts {
		s.broadcasts[b.ID] = b
	}
	for _, d := range t.deliveries {
		s.deliveries[d.ID] = d
	}
	return nil
}

func (s *Store) GetBroadcast(ctx context.Context, id uuid.UUID) (*models.Broadcast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.broadcasts[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (s *Store) ListSent(ctx context.Context, senderID uuid.UUID, before time.Time, limit int) ([]models.Broadcast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Broadcast, 0)
	for _, b := range s.broadcasts {
		if b.SenderID != senderID {
			continue
		}
		if !before.IsZero() && !b.CreatedAt.Before(before) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListDeliveries(ctx context.Context, broadcastID uuid.UUID) ([]models.DeliveryAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.DeliveryAssignment, 0)
	for _, d := range s.deliveries {
		if d.BroadcastID == broadcastID {
			out = append(out, copyDelivery(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecipientID.String() < out[j].RecipientID.String() })
	return out, nil
}

func (s *Store) ListInbox(ctx context.Context, recipientID uuid.UUID, before time.Time, limit int) ([]models.InboxItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.InboxItem, 0)
	for _, d := range s.deliveries {
		if d.RecipientID != recipientID {
			continue
		}
		if !before.IsZero() && !d.CreatedAt.Before(before) {
			continue
		}
		b := s.broadcasts[d.BroadcastID]
		out = append(out, models.InboxItem{
			DeliveryAssignment: copyDelivery(d),
			SenderID:           b.SenderID,
			Title:              b.Title,
			Body:               b.Body,
			Priority:           b.Priority,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkDelivered(ctx context.Context, broadcastID uuid.UUID, recipientIDs []uuid.UUID, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recipients := idSet(recipientIDs)
	if recipients == nil {
		return 0, nil
	}
	n := 0
	for id, d := range s.deliveries {
		if d.BroadcastID != broadcastID || d.Status != models.AssignmentPending || !in(recipients, d.RecipientID) {
			continue
		}
		t := at
		d.Status = models.AssignmentDelivered
		d.DeliveredAt = &t
		s.deliveries[id] = d
		n++
	}
	return n, nil
}

func (s *Store) MarkRead(ctx context.Context, assignmentID, recipientID uuid.UUID, at time.Time) (*models.DeliveryAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deliveries[assignmentID]
	if !ok || d.RecipientID != recipientID {
		return nil, nil
	}
	if d.Status != models.AssignmentRead {
		t := at
		d.Status = models.AssignmentRead
		d.ReadAt = &t
		s.deliveries[assignmentID] = d
	}
	out := copyDelivery(d)
	return &out, nil
}

// Counts reports how many broadcasts and delivery assignments are committed.
func (s *Store) Counts() (broadcasts, assignments int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.broadcasts), len(s.deliveries)
}

func copyDelivery(d models.DeliveryAssignment) models.DeliveryAssignment {
	d.DeliveredAt = copyTime(d.DeliveredAt)
	d.ReadAt = copyTime(d.ReadAt)
	return d
}
