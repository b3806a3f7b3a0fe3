package subscription

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
//
// Schema:
//
//	CREATE TABLE push_subscriptions (
//	    endpoint   TEXT PRIMARY KEY,
//	    p256dh     TEXT NOT NULL,
//	    auth       TEXT NOT NULL,
//	    user_id    TEXT,
//	    user_agent TEXT,
//	    created_at TIMESTAMPTZ NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX push_subscriptions_user_id_idx ON push_subscriptions (user_id);
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL subscription repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const subscriptionColumns = `endpoint, p256dh, auth, user_id, user_agent, created_at, updated_at`

// Upsert creates or replaces a subscription keyed by endpoint.
// The record is always written whole; a renewal with fresh keys overwrites
// the prior row rather than producing a duplicate.
func (r *PostgresRepository) Upsert(ctx context.Context, sub *Subscription) (bool, error) {
	query := `
		INSERT INTO push_subscriptions (endpoint, p256dh, auth, user_id, user_agent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (endpoint) DO UPDATE SET
			p256dh = EXCLUDED.p256dh,
			auth = EXCLUDED.auth,
			user_id = EXCLUDED.user_id,
			user_agent = EXCLUDED.user_agent,
			updated_at = EXCLUDED.updated_at
		RETURNING (xmax = 0) AS inserted
	`

	var inserted bool
	err := r.pool.QueryRow(ctx, query,
		sub.Endpoint,
		sub.P256dh,
		sub.Auth,
		sub.UserID,
		sub.UserAgent,
		sub.CreatedAt,
		sub.UpdatedAt,
	).Scan(&inserted)
	if err != nil {
		return false, err
	}

	return inserted, nil
}

// GetByEndpoint retrieves a subscription by its endpoint URL.
func (r *PostgresRepository) GetByEndpoint(ctx context.Context, endpoint string) (*Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM push_subscriptions
		WHERE endpoint = $1
	`

	var sub Subscription
	err := r.pool.QueryRow(ctx, query, endpoint).Scan(
		&sub.Endpoint,
		&sub.P256dh,
		&sub.Auth,
		&sub.UserID,
		&sub.UserAgent,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}

	return &sub, nil
}

// ListByUser retrieves all subscriptions owned by a user.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM push_subscriptions
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

// ListByUsers retrieves all subscriptions owned by any of the users.
func (r *PostgresRepository) ListByUsers(ctx context.Context, userIDs []string) ([]*Subscription, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + subscriptionColumns + `
		FROM push_subscriptions
		WHERE user_id = ANY($1)
		ORDER BY updated_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

// ListAll retrieves every stored subscription.
func (r *PostgresRepository) ListAll(ctx context.Context) ([]*Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM push_subscriptions
		ORDER BY updated_at DESC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSubscriptions(rows)
}

// DeleteByEndpoint removes a subscription. Zero rows affected is fine;
// the push service may have reported the same dead endpoint twice.
func (r *PostgresRepository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	query := `DELETE FROM push_subscriptions WHERE endpoint = $1`
	_, err := r.pool.Exec(ctx, query, endpoint)
	return err
}

// CountAll returns the number of stored subscriptions.
func (r *PostgresRepository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM push_subscriptions`).Scan(&count)
	return count, err
}

func scanSubscriptions(rows pgx.Rows) ([]*Subscription, error) {
	var subs []*Subscription
	for rows.Next() {
		var sub Subscription
		err := rows.Scan(
			&sub.Endpoint,
			&sub.P256dh,
			&sub.Auth,
			&sub.UserID,
			&sub.UserAgent,
			&sub.CreatedAt,
			&sub.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		subs = append(subs, &sub)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return subs, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
