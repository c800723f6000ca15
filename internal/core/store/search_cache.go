package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/contextlens/contextlens/internal/search"
)

// GetSearchCache returns a cached search response when present and unexpired.
func (s *Store) GetSearchCache(ctx context.Context, key string) (*search.Response, bool, error) {
	if err := s.ready(); err != nil {
		return nil, false, err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, errors.New("cache key is required")
	}

	var payload string
	row := s.DB.QueryRowContext(orBackground(ctx), `
		SELECT response_json
		FROM search_cache
		WHERE cache_key = ? AND expires_at > ?
	`, key, time.Now().UTC().UnixMilli())
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("fetch search cache: %w", err)
	}

	var resp search.Response
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return nil, false, fmt.Errorf("decode search cache: %w", err)
	}
	return &resp, true, nil
}

// SetSearchCache stores a search response for ttl.
func (s *Store) SetSearchCache(ctx context.Context, key string, resp *search.Response, ttl time.Duration) error {
	if err := s.ready(); err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("cache key is required")
	}
	if resp == nil {
		return errors.New("search response is required")
	}
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode search cache: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.DB.ExecContext(orBackground(ctx), `
		INSERT INTO search_cache (cache_key, response_json, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			response_json = excluded.response_json,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`, key, string(data), now.UnixMilli(), now.Add(ttl).UnixMilli())
	if err != nil {
		return fmt.Errorf("store search cache: %w", err)
	}
	return nil
}

// PurgeExpiredSearchCache removes expired rows and reports how many were dropped.
func (s *Store) PurgeExpiredSearchCache(ctx context.Context) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	result, err := s.DB.ExecContext(orBackground(ctx), `DELETE FROM search_cache WHERE expires_at <= ?`, time.Now().UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge search cache: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge search cache: %w", err)
	}
	return affected, nil
}

var _ search.PersistentCache = (*Store)(nil)
