package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"hipot/internal/config"
)

// Store manages run history persistence backed by SQLite.
type Store struct {
	db       *sql.DB
	path     string
	readOnly bool
}

// busyBackoff is the wait before each retry of a write that hit SQLITE_BUSY,
// which happens while `hipot runs prune` holds the write lock.
var busyBackoff = []time.Duration{
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	200 * time.Millisecond,
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// isSQLiteBusy matches both the driver's coded error (SQLITE_BUSY is 5) and
// the wrapped message form.
func isSQLiteBusy(err error) bool {
	var coded interface{ Code() int }
	switch {
	case err == nil:
		return false
	case errors.As(err, &coded):
		return coded.Code() == 5
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy runs op until it succeeds, fails with something other than
// SQLITE_BUSY, or the backoff schedule runs out.
func retryOnBusy(ctx context.Context, op func() error) error {
	err := op()
	for _, wait := range busyBackoff {
		if !isSQLiteBusy(err) {
			return err
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		err = op()
	}
	return err
}

// ErrNoHistory is returned by OpenReadOnly when no run has been recorded yet.
var ErrNoHistory = errors.New("no run history recorded yet")

// Open initializes or connects to the history database in the state
// directory. The daemon holds the writable handle.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	store, err := open(cfg.HistoryPath(), false)
	if err != nil {
		return nil, err
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = store.db.Close()
		return nil, err
	}
	return store, nil
}

// OpenReadOnly opens the history for reporting while the daemon keeps
// writing. It never creates the database.
func OpenReadOnly(cfg *config.Config) (*Store, error) {
	path := cfg.HistoryPath()
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoHistory
		}
		return nil, fmt.Errorf("stat history: %w", err)
	}
	store, err := open(path, true)
	if err != nil {
		return nil, err
	}
	if err := store.checkSchema(context.Background()); err != nil {
		_ = store.db.Close()
		return nil, err
	}
	return store, nil
}

func open(path string, readOnly bool) (*Store, error) {
	dsn := path
	pragmas := []string{"PRAGMA busy_timeout = 5000"}
	if readOnly {
		dsn = "file:" + path + "?mode=ro"
	} else {
		pragmas = append([]string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys = ON"}, pragmas...)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	return &Store{db: db, path: path, readOnly: readOnly}, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
