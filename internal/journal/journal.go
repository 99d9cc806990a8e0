// Package journal records issued keyword operations in an embedded SQLite
// database.
//
// The journal is append-only and write-mostly: event handling never reads
// it back. It exists so operators can answer "which keywords did shothammer
// touch on this path, and when" with `shothammer history`.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/sghs/shothammer/internal/reconcile"
)

// Entry is one journaled keyword operation.
type Entry struct {
	ID      int64
	At      time.Time
	ShotID  int64
	Path    string
	Keyword string
	Op      reconcile.Op
	Result  reconcile.Result
	Error   string
}

// Journal wraps the SQLite connection.
type Journal struct {
	conn *sql.DB
}

// Open creates or opens the journal database at path.
//
// The caller MUST call Close() when done.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	// Concurrent shothammer processes may share one journal.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	j := &Journal{conn: conn}
	if err := j.initSchema(context.Background()); err != nil {
		_ = j.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS keyword_ops (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at TEXT NOT NULL,
		shot_id INTEGER NOT NULL,
		path TEXT NOT NULL,
		keyword TEXT NOT NULL,
		op TEXT NOT NULL,           -- add, delete
		result TEXT NOT NULL,       -- issued, failed
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_keyword_ops_path ON keyword_ops(path, id);
	CREATE INDEX IF NOT EXISTS idx_keyword_ops_shot ON keyword_ops(shot_id, id);
	`
	if _, err := j.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.conn == nil {
		return nil
	}
	if err := j.conn.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	j.conn = nil
	return nil
}

// Record appends the non-skipped operations of a report in one transaction.
func (j *Journal) Record(ctx context.Context, shotID int64, report *reconcile.Report) error {
	if report == nil {
		return nil
	}

	tx, err := j.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin journal transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO keyword_ops (at, shot_id, path, keyword, op, result, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare journal insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, op := range report.Operations {
		if op.Result == reconcile.ResultSkipped {
			continue
		}
		var errText sql.NullString
		if op.Err != nil {
			errText = sql.NullString{String: op.Err.Error(), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, now, shotID, op.Path, op.Keyword,
			string(op.Op), string(op.Result), errText); err != nil {
			return fmt.Errorf("failed to journal %s %s: %w", op.Op, op.Keyword, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit journal: %w", err)
	}
	return nil
}

// ForPath returns the most recent entries for path, newest first.
// A limit of zero or less returns every entry.
func (j *Journal) ForPath(ctx context.Context, path string, limit int) ([]Entry, error) {
	query := `
		SELECT id, at, shot_id, path, keyword, op, result, COALESCE(error, '')
		FROM keyword_ops
		WHERE path = ?
		ORDER BY id DESC`
	args := []any{path}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e      Entry
			at     string
			op     string
			result string
		)
		if err := rows.Scan(&e.ID, &at, &e.ShotID, &e.Path, &e.Keyword, &op, &result, &e.Error); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		e.Op = reconcile.Op(op)
		e.Result = reconcile.Result(result)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate journal rows: %w", err)
	}
	return entries, nil
}
