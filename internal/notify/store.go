package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/clinic"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/db"
)

// PgStore persists notifications. It backs the admin panel inbox and keeps an
// audit trail of every patient message.
type PgStore struct {
	db db.Querier
}

func NewPgStore(q db.Querier) *PgStore {
	return &PgStore{db: q}
}

func (s *PgStore) Notify(ctx context.Context, n Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}

	var address *string
	if n.Destination.Address != "" {
		address = &n.Destination.Address
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO notifications (id, user_type, user_id, message, urgency, destination_type, destination_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	`, n.ID, n.UserType, n.UserID, n.Message, n.Urgency, n.Destination.Type, address)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// List returns the latest notifications for a destination type, newest first.
func (s *PgStore) List(ctx context.Context, dest clinic.DestinationType, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, user_type, user_id, message, urgency, destination_type, destination_address, created_at
		FROM notifications
		WHERE destination_type = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, dest, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var result []Notification
	for rows.Next() {
		var (
			n       Notification
			address *string
			created time.Time
		)
		if err := rows.Scan(&n.ID, &n.UserType, &n.UserID, &n.Message, &n.Urgency, &n.Destination.Type, &address, &created); err != nil {
			return nil, err
		}
		if address != nil {
			n.Destination.Address = *address
		}
		n.CreatedAt = created
		result = append(result, n)
	}
	return result, rows.Err()
}
