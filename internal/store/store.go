// Package store persists delivery attempts to a local SQLite database so
// reliability history survives restarts. Persistence is optional; the
// engine runs fine without it.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/voxtype/voxtype/internal/compat"
	"github.com/voxtype/voxtype/internal/monitor"
	"github.com/voxtype/voxtype/internal/target"
)

const schema = `
CREATE TABLE IF NOT EXISTS attempts (
	id TEXT PRIMARY KEY,
	at INTEGER NOT NULL,
	process TEXT NOT NULL,
	pid INTEGER NOT NULL,
	app TEXT NOT NULL,
	method TEXT NOT NULL,
	duration_us INTEGER NOT NULL,
	success INTEGER NOT NULL,
	reason TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempts_at ON attempts(at);
`

// History is an append-only attempt log backed by SQLite.
type History struct {
	db *sql.DB
}

// Open creates or opens the history database at path, creating parent
// directories as needed.
func Open(path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	// The modernc driver serializes writes; one connection avoids
	// SQLITE_BUSY churn between Save and Recent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history schema: %w", err)
	}
	return &History{db: db}, nil
}

// Save appends one attempt.
func (h *History) Save(ctx context.Context, a monitor.Attempt) error {
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO attempts (id, at, process, pid, app, method, duration_us, success, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Time.UnixMicro(), a.Target.ProcessName, a.Target.PID,
		a.App.String(), a.Method.String(), a.Duration.Microseconds(),
		boolToInt(a.Success), string(a.Reason))
	if err != nil {
		return fmt.Errorf("saving attempt: %w", err)
	}
	return nil
}

// Recent returns up to n attempts, newest first.
func (h *History) Recent(ctx context.Context, n int) ([]monitor.Attempt, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, at, process, pid, app, method, duration_us, success, reason
		 FROM attempts ORDER BY at DESC, id LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("querying attempts: %w", err)
	}
	defer rows.Close()

	var out []monitor.Attempt
	for rows.Next() {
		var (
			a          monitor.Attempt
			at         int64
			app        string
			method     string
			durationUS int64
			success    int
			reason     string
		)
		if err := rows.Scan(&a.ID, &at, &a.Target.ProcessName, &a.Target.PID,
			&app, &method, &durationUS, &success, &reason); err != nil {
			return nil, fmt.Errorf("scanning attempt: %w", err)
		}
		a.Time = time.UnixMicro(at).UTC()
		a.Duration = time.Duration(durationUS) * time.Microsecond
		a.Success = success != 0
		a.Reason = monitor.Reason(reason)
		if parsed, err := target.ParseApp(app); err == nil {
			a.App = parsed
		}
		if parsed, err := compat.ParseMethod(method); err == nil {
			a.Method = parsed
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Prune deletes attempts older than cutoff and returns the count removed.
func (h *History) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := h.db.ExecContext(ctx, `DELETE FROM attempts WHERE at < ?`, cutoff.UnixMicro())
	if err != nil {
		return 0, fmt.Errorf("pruning attempts: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the database handle.
func (h *History) Close() error {
	return h.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
