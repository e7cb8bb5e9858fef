// Package store owns the SQLite database file holding notes. It hands out
// scoped transactional handles and runs the schema migration ladder on open.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/sethvargo/go-retry"

	"github.com/localnative/localnative/internal/apperr"
)

// DefaultDirName and DefaultFileName form the default database location under $HOME.
const (
	DefaultDirName  = "LocalNative"
	DefaultFileName = "localnative.sqlite3"
)

// Locked transactions are retried with exponential backoff, five attempts in total.
const (
	lockRetries     = 4
	lockBackoffBase = 50 * time.Millisecond
)

// DBTX is the subset of database/sql shared by *sql.DB, *sql.Tx and *sql.Conn.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxFunc runs inside a transaction.
type TxFunc func(ctx context.Context, tx DBTX) error

// Store wraps the database handle. Writers are serialized; readers run concurrently.
type Store struct {
	conn    *sql.DB
	path    string
	logger  *slog.Logger
	writeMu sync.Mutex
	backoff func() retry.Backoff
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// DefaultPath returns $HOME/LocalNative/localnative.sqlite3.
func DefaultPath() (string, error) {
	home := os.Getenv("HOME")
	if home == "" {
		return "", fmt.Errorf("store: HOME is not set: %w", apperr.ErrPathUnavailable)
	}
	return filepath.Join(home, DefaultDirName, DefaultFileName), nil
}

// Open opens (or creates) the database at path, creating parent directories,
// and brings the schema to the current version.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create dir: %w: %w", apperr.ErrPathUnavailable, err)
	}
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", classify(err))
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", classify(err))
	}

	s := New(conn, opts...)
	s.path = path

	if _, err := s.Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already opened database without migrating it.
func New(conn *sql.DB, opts ...Option) *Store {
	s := &Store{
		conn:   conn,
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(lockRetries, retry.NewExponential(lockBackoffBase))
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "store"))
	return s
}

// Path returns the database file path, empty for stores built with New.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.conn.Close()
}

// WithTx runs fn in a write transaction. The transaction commits when fn
// returns nil and rolls back otherwise, including on panic. Locked errors
// are retried.
func (s *Store) WithTx(ctx context.Context, fn TxFunc) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.retryLocked(ctx, func(ctx context.Context) error {
		return runTx(ctx, s.conn, fn)
	})
}

// WithReadTx runs fn in a transaction that is always rolled back, giving fn
// a consistent snapshot across several statements.
func (s *Store) WithReadTx(ctx context.Context, fn TxFunc) error {
	return s.retryLocked(ctx, func(ctx context.Context) error {
		tx, err := s.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("store: begin read tx: %w", classify(err))
		}
		defer tx.Rollback() //nolint:errcheck // read-only

		return classify(fn(ctx, tx))
	})
}

// WithConn runs fn on a dedicated connection while holding the writer lock.
// Statements that cannot run inside a transaction (ATTACH, DETACH) use this.
func (s *Store) WithConn(ctx context.Context, fn func(ctx context.Context, conn *sql.Conn) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.retryLocked(ctx, func(ctx context.Context) error {
		conn, err := s.conn.Conn(ctx)
		if err != nil {
			return fmt.Errorf("store: acquire conn: %w", classify(err))
		}
		defer conn.Close()

		return classify(fn(ctx, conn))
	})
}

// Query runs a read statement outside any transaction.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	return rows, classify(err)
}

func (s *Store) retryLocked(ctx context.Context, fn retry.RetryFunc) error {
	attempt := 0
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if errors.Is(err, apperr.ErrLocked) {
			s.logger.Debug("database locked, retrying", slog.Int("attempt", attempt))
			return retry.RetryableError(err)
		}
		return err
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("store: %w: %w", apperr.ErrCancelled, err)
	}
	return err
}

// runTx is a single transaction attempt.
func runTx(ctx context.Context, db *sql.DB, fn TxFunc) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", classify(err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("store: commit: %w", classify(cerr))
		}
	}()

	return classify(fn(ctx, tx))
}

// classify attaches the taxonomy class to driver errors. Errors already
// classified pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, class := range []error{apperr.ErrIO, apperr.ErrSchema, apperr.ErrDecode, apperr.ErrNotFound,
		apperr.ErrVersionMismatch, apperr.ErrCancelled, apperr.ErrInternal} {
		if errors.Is(err, class) {
			return err
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", apperr.ErrCancelled, err)
	}

	var se sqlite3.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return fmt.Errorf("%w: %w", apperr.ErrLocked, err)
	case sqlite3.ErrCorrupt, sqlite3.ErrNotADB:
		return fmt.Errorf("%w: %w", apperr.ErrCorrupt, err)
	case sqlite3.ErrCantOpen, sqlite3.ErrPerm, sqlite3.ErrReadonly:
		return fmt.Errorf("%w: %w", apperr.ErrPathUnavailable, err)
	case sqlite3.ErrIoErr, sqlite3.ErrFull:
		return fmt.Errorf("%w: %w", apperr.ErrIO, err)
	}
	return err
}
