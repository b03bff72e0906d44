package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Event is one row in the outbox table. Events are written in the same
// database as the domain change and shipped to the broker asynchronously by
// the dispatcher.
type Event struct {
	ID         int64
	RoutingKey string
	Payload    []byte
	Status     string // pending, sent, failed
	RetryCount int
	CreatedAt  time.Time
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Enqueue stores an event for later publication.
func (r *Repository) Enqueue(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	query := `
        INSERT INTO outbox_events (routing_key, payload, status, retry_count, created_at)
        VALUES ($1, $2, 'pending', 0, NOW())
    `
	_, err = r.db.Exec(ctx, query, routingKey, body)
	return err
}

func (r *Repository) GetPending(ctx context.Context, limit int) ([]Event, error) {
	query := `
        SELECT id, routing_key, payload, status, retry_count, created_at
        FROM outbox_events
        WHERE status = 'pending'
        ORDER BY id
        LIMIT $1
    `
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.RoutingKey, &e.Payload, &e.Status, &e.RetryCount, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *Repository) MarkSent(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `UPDATE outbox_events SET status = 'sent' WHERE id = $1`, id)
	return err
}

// MarkFailed bumps the retry counter and parks the event as failed once the
// retry budget is spent.
func (r *Repository) MarkFailed(ctx context.Context, id int64, maxRetries int) error {
	query := `
        UPDATE outbox_events
        SET retry_count = retry_count + 1,
            status = CASE WHEN retry_count + 1 > $2 THEN 'failed' ELSE 'pending' END
        WHERE id = $1
    `
	_, err := r.db.Exec(ctx, query, id, maxRetries)
	return err
}

// ReplayFailed puts failed events back in the pending queue, used by an
// operator after the broker recovers.
func (r *Repository) ReplayFailed(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE outbox_events SET status = 'pending', retry_count = 0 WHERE status = 'failed'`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
