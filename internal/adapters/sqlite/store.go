package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Register the pure-Go SQLite driver (no CGO required).
	_ "modernc.org/sqlite"

	"github.com/origami/origamid/internal/core/domain"
	"github.com/origami/origamid/internal/core/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS demos (
	demo_id      TEXT PRIMARY KEY,
	log_id       TEXT NOT NULL,
	status       TEXT NOT NULL,
	container_id TEXT,
	image_id     TEXT,
	port         INTEGER,
	updated_at   TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS demos_port ON demos (port) WHERE port IS NOT NULL;
CREATE TABLE IF NOT EXISTS port_reservations (
	port        INTEGER PRIMARY KEY,
	reserved_at TIMESTAMP NOT NULL
);
`

// Store is a SQLite-backed demo repository.
type Store struct {
	db   *sql.DB
	path string
}

var _ ports.Repository = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	// WAL lets the reconcile loop read while a deploy writes; the busy
	// timeout covers writers from other origamid processes.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)",
		path,
	)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetOrNone returns the demo stored under demoID, or nil.
func (s *Store) GetOrNone(ctx context.Context, demoID string) (*domain.Demo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT demo_id, log_id, status, container_id, image_id, port
		FROM demos WHERE demo_id = ?`, demoID)

	demo, err := scanDemo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query demo %s: %w", demoID, err)
	}
	return &demo, nil
}

// Save upserts a demo. The log id of an existing demo is never overwritten.
func (s *Store) Save(ctx context.Context, demo *domain.Demo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO demos (demo_id, log_id, status, container_id, image_id, port, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (demo_id) DO UPDATE SET
			status       = excluded.status,
			container_id = excluded.container_id,
			image_id     = excluded.image_id,
			port         = excluded.port,
			updated_at   = excluded.updated_at`,
		demo.DemoID,
		demo.LogID,
		string(demo.Status),
		nullString(demo.ContainerID),
		nullString(demo.ImageID),
		nullPort(demo.Port),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert demo %s: %w", demo.DemoID, err)
	}
	return nil
}

// List returns every demo ordered by id.
func (s *Store) List(ctx context.Context) ([]domain.Demo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT demo_id, log_id, status, container_id, image_id, port
		FROM demos ORDER BY demo_id`)
	if err != nil {
		return nil, fmt.Errorf("query demos: %w", err)
	}
	defer rows.Close() //nolint:errcheck // rows.Err() below catches read errors

	var demos []domain.Demo
	for rows.Next() {
		demo, err := scanDemo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan demo row: %w", err)
		}
		demos = append(demos, demo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate demo rows: %w", err)
	}
	return demos, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDemo(row scanner) (domain.Demo, error) {
	var (
		demo        domain.Demo
		status      string
		containerID sql.NullString
		imageID     sql.NullString
		port        sql.NullInt64
	)
	if err := row.Scan(&demo.DemoID, &demo.LogID, &status, &containerID, &imageID, &port); err != nil {
		return domain.Demo{}, err
	}
	demo.Status = domain.Status(status)
	demo.ContainerID = containerID.String
	demo.ImageID = imageID.String
	demo.Port = int(port.Int64)
	return demo, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullPort(p int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(p), Valid: p != 0}
}
