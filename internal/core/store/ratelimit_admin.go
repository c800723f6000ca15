package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/contextlens/contextlens/internal/core"
)

// RateLimitEntry pairs an endpoint key with its stored window state.
type RateLimitEntry struct {
	Endpoint string
	State    core.RateLimitState
}

// RateLimitQuery selects rate limit rows for the admin commands. Exactly one
// selector is honored, in the order All, Endpoint, Prefix.
type RateLimitQuery struct {
	All      bool
	Endpoint string
	Prefix   string
}

var errNoSelector = errors.New("must specify --all, --endpoint, or --prefix")

func (q RateLimitQuery) Validate() error {
	_, _, err := q.whereClause()
	return err
}

func (q RateLimitQuery) whereClause() (string, []any, error) {
	endpoint := strings.TrimSpace(q.Endpoint)
	prefix := strings.TrimSpace(q.Prefix)
	switch {
	case q.All:
		return "", nil, nil
	case endpoint != "":
		return "WHERE endpoint = ?", []any{endpoint}, nil
	case prefix != "":
		return "WHERE endpoint LIKE ?", []any{prefix + "%"}, nil
	default:
		return "", nil, errNoSelector
	}
}

// scoped renders stmt (a format string with one %s for the WHERE clause)
// for q.
func (s *Store) scoped(q RateLimitQuery, stmt string) (string, []any, error) {
	if err := s.ready(); err != nil {
		return "", nil, err
	}
	where, args, err := q.whereClause()
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf(stmt, where), args, nil
}

// ListRateLimits returns matching entries ordered by endpoint.
func (s *Store) ListRateLimits(ctx context.Context, q RateLimitQuery) ([]RateLimitEntry, error) {
	query, args, err := s.scoped(q, `SELECT `+rateLimitColumns+` FROM rate_limits %s ORDER BY endpoint`)
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(orBackground(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rate limits: %w", err)
	}
	defer rows.Close() // nolint:errcheck

	entries := []RateLimitEntry{}
	for rows.Next() {
		entry, err := scanRateLimit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rate limits: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rate limits: %w", err)
	}
	return entries, nil
}

// CountRateLimits counts matching entries.
func (s *Store) CountRateLimits(ctx context.Context, q RateLimitQuery) (int, error) {
	query, args, err := s.scoped(q, `SELECT COUNT(*) FROM rate_limits %s`)
	if err != nil {
		return 0, err
	}

	var count int
	if err := s.DB.QueryRowContext(orBackground(ctx), query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rate limits: %w", err)
	}
	return count, nil
}

// ResetRateLimits deletes matching entries so their windows start fresh.
func (s *Store) ResetRateLimits(ctx context.Context, q RateLimitQuery) (int64, error) {
	query, args, err := s.scoped(q, `DELETE FROM rate_limits %s`)
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(orBackground(ctx), query, args...)
	if err != nil {
		return 0, fmt.Errorf("reset rate limits: %w", err)
	}
	return result.RowsAffected()
}
