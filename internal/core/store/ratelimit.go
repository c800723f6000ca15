package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/contextlens/contextlens/internal/core"
)

const rateLimitColumns = `endpoint, request_count, window_start, backoff_until, last_429_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRateLimit(row rowScanner) (RateLimitEntry, error) {
	var (
		entry        RateLimitEntry
		windowStart  int64
		backoffUntil sql.NullInt64
		last429At    sql.NullInt64
	)
	if err := row.Scan(&entry.Endpoint, &entry.State.RequestCount, &windowStart, &backoffUntil, &last429At); err != nil {
		return RateLimitEntry{}, err
	}
	entry.State.WindowStart = time.Unix(windowStart, 0).UTC()
	entry.State.BackoffUntil = unixPtr(backoffUntil)
	entry.State.Last429At = unixPtr(last429At)
	return entry, nil
}

func unixPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func nullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().Unix(), Valid: true}
}

// GetRateLimit returns stored window state for a gateway endpoint, or nil
// when the endpoint has not been used yet.
func (s *Store) GetRateLimit(ctx context.Context, endpoint string) (*core.RateLimitState, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	ctx = orBackground(ctx)

	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("endpoint is required")
	}

	row := s.DB.QueryRowContext(ctx, `SELECT `+rateLimitColumns+` FROM rate_limits WHERE endpoint = ?`, endpoint)
	entry, err := scanRateLimit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch rate limit: %w", err)
	}
	return &entry.State, nil
}

// UpdateRateLimit persists window state for a gateway endpoint.
func (s *Store) UpdateRateLimit(ctx context.Context, endpoint string, state *core.RateLimitState) error {
	if err := s.ready(); err != nil {
		return err
	}
	ctx = orBackground(ctx)

	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return errors.New("endpoint is required")
	}
	if state == nil {
		return errors.New("rate limit state is required")
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO rate_limits (`+rateLimitColumns+`)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET
			request_count = excluded.request_count,
			window_start = excluded.window_start,
			backoff_until = excluded.backoff_until,
			last_429_at = excluded.last_429_at
	`, endpoint, state.RequestCount, state.WindowStart.UTC().Unix(), nullUnix(state.BackoffUntil), nullUnix(state.Last429At))
	if err != nil {
		return fmt.Errorf("store rate limit: %w", err)
	}

	return nil
}
