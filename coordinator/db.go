package coordinator

import (
	"context"
	"database/sql"
	"sync"

	"github.com/pkg/errors"
	"go.sql3.dev/core/protocol"
	"go.sql3.dev/core/pump"
	"go.sql3.dev/core/sqlite"
)

// DB is a database file as seen by an execution context. Its writes are
// shipped through the context's Coordinator, and its reads run against a
// Conn local to the context: the pooled, writable Conn on the primary, or a
// private read-only Conn on a secondary.
type DB struct {
	c    *Coordinator
	path string

	mu   sync.Mutex
	conn *sqlite.Conn // Private read-only Conn of a secondary.
}

// Path of the DB, which is absolute or sqlite.MemoryPath.
func (db *DB) Path() string { return db.path }

// ExecStatement is Coordinator.ExecStatement of this DB.
func (db *DB) ExecStatement(ctx context.Context, query string, args ...interface{}) (sqlite.ChangeSummary, error) {
	return db.c.ExecStatement(ctx, db.path, query, args...)
}

// ExecScalar is Coordinator.ExecScalar of this DB.
func (db *DB) ExecScalar(ctx context.Context, query string, args ...interface{}) (interface{}, error) {
	return db.c.ExecScalar(ctx, db.path, query, args...)
}

// ExecRow is Coordinator.ExecRow of this DB.
func (db *DB) ExecRow(ctx context.Context, query string, args ...interface{}) (sqlite.Row, error) {
	return db.c.ExecRow(ctx, db.path, query, args...)
}

// ExecTransaction is Coordinator.ExecTransaction of this DB.
func (db *DB) ExecTransaction(ctx context.Context, queries []protocol.Query) error {
	return db.c.ExecTransaction(ctx, db.path, queries)
}

// Call is Coordinator.Call of this DB.
func (db *DB) Call(ctx context.Context, name string, out interface{}, args ...interface{}) error {
	return db.c.Call(ctx, db.path, name, out, args...)
}

// CallTx is Coordinator.CallTx of this DB.
func (db *DB) CallTx(ctx context.Context, name string, out interface{}, args ...interface{}) error {
	return db.c.CallTx(ctx, db.path, name, out, args...)
}

// All returns all rows of a read |query|, run locally.
func (db *DB) All(ctx context.Context, query string, args ...interface{}) ([]sqlite.Row, error) {
	var conn, err = db.reader()
	if err != nil {
		return nil, err
	}
	return conn.All(ctx, query, args...)
}

// Row returns the first row of a read |query|, run locally, or nil if there
// are no rows.
func (db *DB) Row(ctx context.Context, query string, args ...interface{}) (sqlite.Row, error) {
	var conn, err = db.reader()
	if err != nil {
		return nil, err
	}
	return conn.Row(ctx, query, args...)
}

// Scalar returns the first column of the first row of a read |query|, run
// locally, or nil if there are no rows.
func (db *DB) Scalar(ctx context.Context, query string, args ...interface{}) (interface{}, error) {
	var conn, err = db.reader()
	if err != nil {
		return nil, err
	}
	return conn.Scalar(ctx, query, args...)
}

// Query runs a read |query| locally, returning *sql.Rows which the caller
// must close.
func (db *DB) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	var conn, err = db.reader()
	if err != nil {
		return nil, err
	}
	return conn.Query(ctx, query, args...)
}

// reader returns the Conn used for local reads.
func (db *DB) reader() (*sqlite.Conn, error) {
	if db.path == sqlite.MemoryPath {
		return db.c.memoryConn()
	} else if db.c.pool != nil {
		return db.c.pool.Get(db.path)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.c.isClosed() {
		return nil, pump.ErrClosed
	} else if db.conn != nil {
		return db.conn, nil
	}
	// Fails if the primary has yet to create the database. A later read retries.
	var conn, err = sqlite.Open(db.path, true, db.c.cfg.SQLite)
	if err != nil {
		return nil, errors.WithMessage(err, "opening read-only Conn")
	}
	db.conn = conn
	return conn, nil
}

func (db *DB) close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.conn == nil {
		return nil
	}
	var err = db.conn.Close()
	db.conn = nil
	return err
}
