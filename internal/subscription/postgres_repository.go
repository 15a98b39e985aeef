package subscription

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository. Preferences
// are stored as a JSONB document since their shape evolves with the forecast
// thresholds.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL subscriber repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Load returns all persisted subscribers.
func (r *PostgresRepository) Load(ctx context.Context) ([]*Subscriber, error) {
	query := `
		SELECT id, lat, lng, radius_km, prefs, last_dispatch_at, created_at, updated_at
		FROM subscribers
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer rows.Close()

	var subscribers []*Subscriber
	for rows.Next() {
		var sub Subscriber
		var prefsJSON []byte

		err := rows.Scan(
			&sub.ID,
			&sub.Location.Lat,
			&sub.Location.Lng,
			&sub.Location.RadiusKm,
			&prefsJSON,
			&sub.LastDispatchAt,
			&sub.CreatedAt,
			&sub.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		if err := json.Unmarshal(prefsJSON, &sub.Prefs); err != nil {
			return nil, fmt.Errorf("decode prefs for %s: %w", sub.ID, err)
		}
		subscribers = append(subscribers, &sub)
	}

	return subscribers, rows.Err()
}

// Upsert inserts or replaces a subscriber.
func (r *PostgresRepository) Upsert(ctx context.Context, sub *Subscriber) error {
	prefsJSON, err := json.Marshal(sub.Prefs)
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}

	query := `
		INSERT INTO subscribers (id, lat, lng, radius_km, prefs, last_dispatch_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			radius_km = EXCLUDED.radius_km,
			prefs = EXCLUDED.prefs,
			last_dispatch_at = EXCLUDED.last_dispatch_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.pool.Exec(ctx, query,
		sub.ID,
		sub.Location.Lat,
		sub.Location.Lng,
		sub.Location.RadiusKm,
		prefsJSON,
		sub.LastDispatchAt,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert subscriber: %w", err)
	}
	return nil
}

// Delete removes a subscriber by ID.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM subscribers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	return nil
}
