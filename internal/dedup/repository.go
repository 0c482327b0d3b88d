package dedup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Repository remembers which provider webhook events were already applied, so
// re-deliveries can short-circuit before touching any order.
type Repository interface {
	WasProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) error
}

type repo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repo{db: db}
}

func (r *repo) WasProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM processed_webhook_events
		WHERE provider = $1 AND event_id = $2
	`, provider, eventID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("select processed event: %w", err)
	}
	return true, nil
}

func (r *repo) MarkProcessed(ctx context.Context, provider, eventID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO processed_webhook_events (provider, event_id)
		VALUES ($1, $2)
		ON CONFLICT (provider, event_id) DO NOTHING
	`, provider, eventID)
	if err != nil {
		return fmt.Errorf("insert processed event: %w", err)
	}
	return nil
}
