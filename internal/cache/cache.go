// Package cache persists the last successful feed response so one-shot
// commands can fall back to a recent snapshot when the upstream is down.
// The in-memory reconciliation cache is never persisted; this layer only
// stores raw response bodies.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

type Store struct {
	db   *sql.DB
	lock *flock.Flock
	now  func() time.Time
}

// Snapshot is a cached response body plus its freshness at read time.
type Snapshot struct {
	Hit      bool
	Body     []byte
	Age      time.Duration
	Stale    bool
	TooStale bool
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot lock directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"CREATE TABLE IF NOT EXISTS snapshots (key TEXT PRIMARY KEY, body BLOB NOT NULL, fetched_at INTEGER NOT NULL);",
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init snapshot schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath), now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load reads the snapshot for key. Freshness is evaluated against ttl; a
// snapshot older than ttl+maxStale is marked too stale to serve at all.
func (s *Store) Load(key string, ttl, maxStale time.Duration) (Snapshot, error) {
	var body []byte
	var fetchedUnix int64
	err := s.db.QueryRow("SELECT body, fetched_at FROM snapshots WHERE key = ?", key).Scan(&body, &fetchedUnix)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, nil
		}
		return Snapshot{}, fmt.Errorf("snapshot read: %w", err)
	}

	age := s.now().UTC().Sub(time.Unix(fetchedUnix, 0).UTC())
	if age < 0 {
		age = 0
	}
	stale := age > ttl
	return Snapshot{
		Hit:      true,
		Body:     body,
		Age:      age,
		Stale:    stale,
		TooStale: stale && maxStale >= 0 && age > ttl+maxStale,
	}, nil
}

func (s *Store) Save(key string, body []byte) error {
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock snapshot store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock snapshot store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	_, err = s.db.Exec(`
		INSERT INTO snapshots (key, body, fetched_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			body=excluded.body,
			fetched_at=excluded.fetched_at
	`, key, body, s.now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("snapshot write: %w", err)
	}
	return nil
}
