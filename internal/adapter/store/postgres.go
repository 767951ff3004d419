// Package store reads the authoritative user directory and reference data.
// The service never writes to it.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/webitel/code-delivery-service/internal/domain/model"
)

const (
	listUsersSQL      = `SELECT id, username FROM users ORDER BY id`
	findByUsernameSQL = `SELECT id, username FROM users WHERE lower(username) = lower($1) LIMIT 1`
	listRatesSQL      = `SELECT target_currency, rate_from_usd FROM exchange_rates`
)

// Querier is the subset of pgxpool.Pool the store relies on.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresStore struct {
	db Querier
}

func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

// ListUsers returns every user record. Rows are returned as stored; callers
// normalize usernames.
func (s *PostgresStore) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.Query(ctx, listUsersSQL)
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.User, error) {
		var (
			u        model.User
			username *string
		)
		if err := row.Scan(&u.ID, &username); err != nil {
			return u, err
		}
		if username != nil {
			u.Username = *username
		}
		return u, nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: scan users: %w", err)
	}
	return users, nil
}

// FindByUsername matches case-insensitively and returns model.ErrUserNotFound on no row.
func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	err := s.db.QueryRow(ctx, findByUsernameSQL, strings.TrimSpace(username)).Scan(&u.ID, &u.Username)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find user %q: %w", username, err)
	}
	return &u, nil
}

// ListExchangeRates returns the valid rates only: currency trimmed and
// uppercased, non-positive or null rates skipped.
func (s *PostgresStore) ListExchangeRates(ctx context.Context) ([]model.ExchangeRate, error) {
	rows, err := s.db.Query(ctx, listRatesSQL)
	if err != nil {
		return nil, fmt.Errorf("store: list rates: %w", err)
	}
	defer rows.Close()

	var out []model.ExchangeRate
	for rows.Next() {
		var (
			currency *string
			rate     *float64
		)
		if err := rows.Scan(&currency, &rate); err != nil {
			return nil, fmt.Errorf("store: scan rate: %w", err)
		}
		if r, ok := normalizeRate(currency, rate); ok {
			out = append(out, r)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate rates: %w", err)
	}
	return out, nil
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.db.Exec(ctx, "SELECT 1")
	return err
}

func normalizeRate(currency *string, rate *float64) (model.ExchangeRate, bool) {
	if currency == nil || rate == nil || *rate <= 0 {
		return model.ExchangeRate{}, false
	}
	cur := strings.ToUpper(strings.TrimSpace(*currency))
	if cur == "" {
		return model.ExchangeRate{}, false
	}
	return model.ExchangeRate{Currency: cur, Rate: *rate}, true
}
