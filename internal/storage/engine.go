// Package storage implements vpo's embedded relational store: a single
// WAL-mode SQLite database shared by a reader-writer pool, with a
// process-wide writer mutex, ephemeral per-read connections, and a
// bounded exponential-backoff retry wrapper for lock contention.
//
// Grounded on the teacher's internal/store/local_core.go (connection
// opening and PRAGMA sequence) and internal/store/migrations.go (schema
// versioning shape); the table bodies below are original to this domain.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"vpo/internal/logging"
)

// Engine owns the single writer connection and knows how to mint ephemeral
// reader connections against the same database file.
type Engine struct {
	path        string
	busyTimeout time.Duration

	writerMu sync.Mutex
	writer   *sql.DB

	mu     sync.RWMutex
	closed bool
}

// Open creates the data directory if needed, opens the writer connection,
// applies the PRAGMA sequence, and runs schema migrations.
func Open(path string, busyTimeout time.Duration) (*Engine, error) {
	timer := logging.StartTimer(logging.CategoryStorage, "storage.Open")
	defer timer.Stop()

	writer, err := openConn(path, busyTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open writer connection: %w", err)
	}
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)

	e := &Engine{path: path, busyTimeout: busyTimeout, writer: writer}

	if err := e.migrate(); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("failed to apply schema migrations: %w", err)
	}

	logging.Storage("opened database at %s (busy_timeout=%s)", path, busyTimeout)
	return e, nil
}

func openConn(path string, busyTimeout time.Duration) (*sql.DB, error) {
	// _txlock=immediate makes every BeginTx issue BEGIN IMMEDIATE.
	db, err := sql.Open("sqlite3", path+"?_txlock=immediate")
	if err != nil {
		return nil, err
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			logging.StorageDebug("pragma failed (%s): %v", p, err)
		}
	}
	return db, nil
}

// ReadConn opens a fresh connection scoped to one read operation. The
// caller must Close() the returned *sql.Conn (and, transitively, the *sql.DB
// it came from) when done. Reads never contend with the writer mutex.
func (e *Engine) ReadConn(ctx context.Context) (*sql.Conn, func() error, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, nil, fmt.Errorf("storage: read on closed engine")
	}
	db, err := openConn(e.path, e.busyTimeout)
	if err != nil {
		return nil, nil, err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	closer := func() error {
		cerr := conn.Close()
		derr := db.Close()
		if cerr != nil {
			return cerr
		}
		return derr
	}
	return conn, closer, nil
}

// ExecuteWrite acquires the writer mutex, executes one statement, and
// returns the number of affected rows.
func (e *Engine) ExecuteWrite(ctx context.Context, query string, args ...interface{}) (int64, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return 0, fmt.Errorf("storage: write on closed engine")
	}
	e.mu.RUnlock()

	e.writerMu.Lock()
	defer e.writerMu.Unlock()

	e.healthCheckWriterLocked(ctx)

	res, err := e.writer.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Transaction runs fn inside BEGIN IMMEDIATE on the shared writer
// connection, committing on success and rolling back on any returned
// error or panic. Logs a warning if wall time exceeds 80% of busyTimeout.
func (e *Engine) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return fmt.Errorf("storage: transaction on closed engine")
	}
	e.mu.RUnlock()

	e.writerMu.Lock()
	defer e.writerMu.Unlock()

	e.healthCheckWriterLocked(ctx)

	start := time.Now()
	tx, err := e.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin immediate: %w", err)
	}

	defer func() {
		elapsed := time.Since(start)
		threshold := time.Duration(float64(e.busyTimeout) * 0.8)
		if elapsed > threshold {
			logging.StorageWarn("write transaction took %v (80%% of busy_timeout is %v)", elapsed, threshold)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logging.StorageWarn("rollback failed after error %v: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// healthCheckWriterLocked re-opens the writer connection if it has gone
// bad. Must be called with writerMu held.
func (e *Engine) healthCheckWriterLocked(ctx context.Context) {
	if err := e.writer.PingContext(ctx); err != nil {
		logging.StorageWarn("writer connection unhealthy, reopening: %v", err)
		stale := e.writer
		fresh, openErr := openConn(e.path, e.busyTimeout)
		if openErr != nil {
			logging.StorageWarn("failed to reopen writer connection: %v", openErr)
			return
		}
		fresh.SetMaxOpenConns(1)
		fresh.SetMaxIdleConns(1)
		e.writer = fresh
		_ = stale.Close()
	}
}

// OpenSecondaryWriter opens an independent connection to the same database
// file, carrying the same PRAGMA sequence as the engine's own writer. It
// exists for callers that must commit writes from a connection distinct
// from the engine's shared writer connection — concretely, the worker
// runtime's heartbeat goroutine (spec.md §4.J/§5: a heartbeat commit must
// never publish a job-execution transaction that happens to still be open
// on the primary writer connection). The caller owns the returned *sql.DB
// and must Close it.
func (e *Engine) OpenSecondaryWriter() (*sql.DB, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, fmt.Errorf("storage: open secondary writer on closed engine")
	}
	db, err := openConn(e.path, e.busyTimeout)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

// RetryConfig parameterizes the exponential-backoff retry wrapper.
type RetryConfig struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
	JitterFrac  float64 // e.g. 0.10 for ±10%
}

// DefaultRetryConfig matches spec.md §4.A's defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 6, Base: 100 * time.Millisecond, Cap: 5 * time.Second, JitterFrac: 0.10}
}

// Retry re-invokes fn on transient lock/busy errors with exponential
// backoff; it re-raises any non-lock error immediately, and re-raises the
// last lock error after exhaustion.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !IsLockError(err) {
			return err
		}
		lastErr = err

		delay := cfg.Base * time.Duration(1<<uint(attempt))
		if delay > cfg.Cap {
			delay = cfg.Cap
		}
		jitter := 1 + (rand.Float64()*2-1)*cfg.JitterFrac
		delay = time.Duration(float64(delay) * jitter)

		logging.StorageDebug("retrying after lock error (attempt %d/%d, delay %v): %v", attempt+1, cfg.MaxAttempts, delay, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

// IsLockError reports whether err represents SQLite busy/locked
// contention, as opposed to a schema or programming error.
func IsLockError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// HealthCheck runs SELECT 1 with a short timeout.
func (e *Engine) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	conn, closer, err := e.ReadConn(ctx)
	if err != nil {
		return false
	}
	defer closer()
	var one int
	if err := conn.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return false
	}
	return one == 1
}

// Close closes the writer connection. The pool is single-use: once closed
// it is not reopenable.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.writer.Close()
}
