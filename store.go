package booth

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/glowupstudio/booth/capture"
	"github.com/glowupstudio/booth/compose"
	"github.com/glowupstudio/booth/delivery"
)

// ErrNotFound is returned when a requested artifact does not exist.
var ErrNotFound = sql.ErrNoRows

// Store wraps a SQLite database holding the rendered artifacts of live
// sessions and the outbox of completed deliveries.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database at path and runs schema
// migrations. MemoryDatabase keeps everything in process memory.
func NewStore(path string) (*Store, error) {
	memory := path == MemoryDatabase || strings.Contains(path, "mode=memory")
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if memory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		// WAL lets the HTTP handlers read while a render is being stored.
		if _, err := db.Exec(`
			PRAGMA journal_mode=WAL;
			PRAGMA busy_timeout=5000;
			PRAGMA synchronous=NORMAL;
		`); err != nil {
			db.Close()
			return nil, err
		}
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(4)
	}
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS artifacts (
    id TEXT PRIMARY KEY,
    session TEXT NOT NULL,
    kind TEXT NOT NULL,
    mime TEXT NOT NULL,
    filename TEXT NOT NULL,
    data BLOB NOT NULL,
    created TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS artifacts_session ON artifacts(session);
CREATE TABLE IF NOT EXISTS deliveries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    address TEXT NOT NULL,
    filename TEXT NOT NULL,
    mime TEXT NOT NULL,
    size INTEGER NOT NULL,
    sent_at TEXT NOT NULL
);
`)
	return err
}

// PutArtifact stores a rendered artifact for a session and returns its id.
func (s *Store) PutArtifact(ctx context.Context, session string, a compose.Artifact) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts (id, session, kind, mime, filename, data, created) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, session, string(a.Kind), a.MIMEType, a.Filename, a.Data, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetArtifact returns an artifact by id.
func (s *Store) GetArtifact(ctx context.Context, id string) (compose.Artifact, error) {
	var kind, mime, filename string
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT kind, mime, filename, data FROM artifacts WHERE id = ?`, id).
		Scan(&kind, &mime, &filename, &data)
	if err != nil {
		return compose.Artifact{}, err
	}
	return compose.Artifact{
		Kind:     capture.Kind(kind),
		Data:     data,
		MIMEType: mime,
		Filename: filename,
	}, nil
}

// DeleteArtifact removes an artifact by id. Deleting a missing id is not an
// error.
func (s *Store) DeleteArtifact(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = ?`, id)
	return err
}

// DeleteSessionArtifacts removes every artifact of a session.
func (s *Store) DeleteSessionArtifacts(ctx context.Context, session string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE session = ?`, session)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountArtifacts returns the number of stored artifacts.
func (s *Store) CountArtifacts(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM artifacts`).Scan(&n)
	return n, err
}

// Record implements delivery.Outbox.
func (s *Store) Record(ctx context.Context, d delivery.Delivery) error {
	if d.Address == "" {
		return errors.New("store: delivery without address")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries (address, filename, mime, size, sent_at) VALUES (?, ?, ?, ?, ?)`,
		d.Address, d.Filename, d.MIMEType, d.Size, d.SentAt.UTC().Format(time.RFC3339Nano))
	return err
}

// ListDeliveries returns the most recent deliveries, newest first.
func (s *Store) ListDeliveries(ctx context.Context, limit int) ([]delivery.Delivery, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT address, filename, mime, size, sent_at FROM deliveries ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []delivery.Delivery
	for rows.Next() {
		var d delivery.Delivery
		var sentAt string
		if err := rows.Scan(&d.Address, &d.Filename, &d.MIMEType, &d.Size, &sentAt); err != nil {
			return nil, err
		}
		d.SentAt, _ = time.Parse(time.RFC3339Nano, sentAt)
		out = append(out, d)
	}
	return out, rows.Err()
}
