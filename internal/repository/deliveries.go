package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// Delivery is one channel delivery attempt, appended to the ClickHouse
// audit table. This trail is what makes the no-retry gap observable.
type Delivery struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	RecipientID string    `db:"recipient_id"`
	Channel     string    `db:"channel"`
	Outcome     string    `db:"outcome"` // sent | failed | skipped
	Error       string    `db:"error"`
	CreatedAt   time.Time `db:"created_at"`
}

// DeliveriesRepository is the ClickHouse write/read model for delivery
// attempts.
type DeliveriesRepository interface {
	Append(ctx context.Context, d Delivery) error
	ListByRecipient(ctx context.Context, recipientID, channel, outcome string, limit, offset int) ([]Delivery, error)
}

type deliveriesRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewDeliveriesRepository(ch *sqlx.DB) DeliveriesRepository {
	return &deliveriesRepository{ch: ch}
}

func (r *deliveriesRepository) Append(ctx context.Context, d Delivery) error {
	const q = `
		INSERT INTO engage.deliveries (event_id, event_type, recipient_id, channel, outcome, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, now())
	`
	_, err := r.ch.ExecContext(ctx, q, d.EventID, d.EventType, d.RecipientID, d.Channel, d.Outcome, d.Error)
	return err
}

func (r *deliveriesRepository) ListByRecipient(ctx context.Context, recipientID, channel, outcome string, limit, offset int) ([]Delivery, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT event_id, event_type, recipient_id, channel, outcome, error, created_at
		FROM engage.deliveries
		WHERE recipient_id = ?
	`
	args := []any{recipientID}

	if channel != "" {
		q += " AND channel = ?"
		args = append(args, channel)
	}
	if outcome != "" {
		q += " AND outcome = ?"
		args = append(args, outcome)
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []Delivery
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
