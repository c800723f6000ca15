// Package store persists background tasks, cached search responses and
// per-endpoint rate limit windows in libSQL (local file or remote Turso).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/contextlens/contextlens/internal/config"
)

const (
	driverLibsql = "libsql"
	memoryPath   = ":memory:"
	busyTimeout  = 5000
)

var errNoStore = errors.New("store is not initialized")

// Store persists tasks, the search cache and rate limit state.
type Store struct {
	DB     *sql.DB
	driver string
}

// Open connects to the configured store. Local files are opened with a
// single connection in WAL mode.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	driver := strings.TrimSpace(cfg.Driver)
	if driver == "" {
		driver = driverLibsql
	}
	if driver != driverLibsql {
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}

	dsn, err := buildLibsqlDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverLibsql, dsn)
	if err != nil {
		return nil, fmt.Errorf("open libsql store: %w", err)
	}
	if err := prepare(ctx, db, strings.HasPrefix(dsn, "file:")); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{DB: db, driver: driver}, nil
}

func prepare(ctx context.Context, db *sql.DB, local bool) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping libsql store: %w", err)
	}
	if !local {
		return nil
	}

	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout),
	}
	for _, pragma := range pragmas {
		// Both pragmas echo a row.
		var echoed string
		err := db.QueryRowContext(ctx, pragma).Scan(&echoed)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("configure local store (%s): %w", pragma, err)
		}
	}
	return nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Driver returns the configured store driver.
func (s *Store) Driver() string {
	if s == nil {
		return ""
	}
	return s.driver
}

func (s *Store) ready() error {
	if s == nil || s.DB == nil {
		return errNoStore
	}
	return nil
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// buildLibsqlDSN resolves the connection string. A URL wins over a path;
// bare paths become file: DSNs and get their parent directory created.
func buildLibsqlDSN(cfg config.StoreConfig) (string, error) {
	if raw := strings.TrimSpace(cfg.URL); raw != "" {
		return withAuthToken(raw, strings.TrimSpace(cfg.AuthToken))
	}

	path := strings.TrimSpace(cfg.Path)
	switch {
	case path == "":
		return "", errors.New("store path or url is required")
	case path == memoryPath, strings.HasPrefix(path, "libsql:"):
		return path, nil
	case strings.HasPrefix(path, "file:"):
		parsed, err := url.Parse(path)
		if err != nil {
			return "", fmt.Errorf("invalid store path: %w", err)
		}
		local := parsed.Path
		if local == "" {
			local = parsed.Opaque
		}
		if err := makeParentDir(strings.TrimPrefix(local, "//")); err != nil {
			return "", err
		}
		return path, nil
	default:
		if err := makeParentDir(path); err != nil {
			return "", err
		}
		return "file:" + filepath.Clean(path), nil
	}
}

func withAuthToken(dsn, token string) (string, error) {
	if token == "" {
		return dsn, nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store url: %w", err)
	}
	query := parsed.Query()
	if query.Get("authToken") != "" {
		return dsn, nil
	}
	query.Set("authToken", token)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func makeParentDir(path string) error {
	if path == "" || path == memoryPath {
		return nil
	}
	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	// #nosec G301 -- shared data directory
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}
