// ABOUTME: SQLite-indexed snapshot store using modernc.org/sqlite.
// ABOUTME: Add writes a content file and an index row, pruning past 200 entries.

package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// MaxSnapshots caps the index; adding beyond it prunes the oldest entries
// and their content files.
const MaxSnapshots = 200

// Snapshot is one recorded config state.
type Snapshot struct {
	ID          string    `json:"id"`
	RecipeID    string    `json:"recipeId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	ConfigPath  string    `json:"configPath"`
	Source      string    `json:"source"`
	CanRollback bool      `json:"canRollback"`
}

// Store is the snapshot index plus its content directory.
type Store struct {
	db     *sql.DB
	dir    string
	logger *slog.Logger
}

// New opens (or creates) the snapshot store. dir holds the content files,
// dbPath the SQLite index.
func New(dbPath, dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshots directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS snapshots (
			id TEXT PRIMARY KEY,
			recipe_id TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			config_path TEXT NOT NULL,
			source TEXT NOT NULL,
			can_rollback INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_snapshots_created_at
			ON snapshots(created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("snapshot store initialized", "db", dbPath, "dir", dir)
	return &Store{db: db, dir: dir, logger: logger}, nil
}

// Close closes the index database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add records the given config content as a new snapshot and prunes the
// index back to MaxSnapshots.
func (s *Store) Add(ctx context.Context, recipeID, source string, canRollback bool, content string) (Snapshot, error) {
	now := time.Now().UTC()
	label := recipeID
	if label == "" {
		label = "manual"
	}
	// The uuid suffix keeps same-second snapshots of the same recipe apart.
	id := fmt.Sprintf("%s-%s-%s", now.Format("2006-01-02T15-04-05"), label, uuid.NewString()[:8])

	path := filepath.Join(s.dir, id+".json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return Snapshot{}, fmt.Errorf("writing snapshot content: %w", err)
	}

	snap := Snapshot{
		ID:          id,
		RecipeID:    recipeID,
		CreatedAt:   now,
		ConfigPath:  path,
		Source:      source,
		CanRollback: canRollback,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, recipe_id, created_at, config_path, source, can_rollback)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.RecipeID, snap.CreatedAt.Format(time.RFC3339Nano), snap.ConfigPath, snap.Source, boolToInt(snap.CanRollback))
	if err != nil {
		os.Remove(path)
		return Snapshot{}, fmt.Errorf("indexing snapshot: %w", err)
	}

	if err := s.prune(ctx); err != nil {
		s.logger.Warn("snapshot prune failed", "error", err)
	}

	return snap, nil
}

// List returns all snapshots, newest first.
func (s *Store) List(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recipe_id, created_at, config_path, source, can_rollback
		 FROM snapshots ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var createdAt string
		var canRollback int
		if err := rows.Scan(&snap.ID, &snap.RecipeID, &createdAt, &snap.ConfigPath, &snap.Source, &canRollback); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		snap.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing snapshot timestamp %q: %w", createdAt, err)
		}
		snap.CanRollback = canRollback != 0
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Read returns the content of the snapshot with the given id.
func (s *Store) Read(ctx context.Context, id string) (string, error) {
	var path string
	err := s.db.QueryRowContext(ctx,
		`SELECT config_path FROM snapshots WHERE id = ?`, id).Scan(&path)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no snapshot with id %s", id)
	}
	if err != nil {
		return "", fmt.Errorf("looking up snapshot %s: %w", id, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading snapshot content: %w", err)
	}
	return string(data), nil
}

// prune drops the oldest rows past MaxSnapshots, removing their content
// files as well.
func (s *Store) prune(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, config_path FROM snapshots
		 ORDER BY created_at DESC, rowid DESC LIMIT -1 OFFSET ?`, MaxSnapshots)
	if err != nil {
		return err
	}
	defer rows.Close()

	type victim struct{ id, path string }
	var victims []victim
	for rows.Next() {
		var v victim
		if err := rows.Scan(&v.id, &v.path); err != nil {
			return err
		}
		victims = append(victims, v)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, v := range victims {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, v.id); err != nil {
			return err
		}
		if err := os.Remove(v.path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove pruned snapshot file", "path", v.path, "error", err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
