package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"

	_ "github.com/mattn/go-sqlite3" // Registers the "sqlite3" driver.
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ChangeSummary is the outcome of a statement which modifies the database.
type ChangeSummary struct {
	Changes         int64 `json:"changes"`
	LastInsertRowID int64 `json:"lastInsertRowid"`
}

// Row is a single result row, keyed on column name.
type Row map[string]interface{}

// Querier runs queries against a Conn, or within a Tx of a Conn.
type Querier interface {
	// Exec runs a statement and returns its ChangeSummary.
	Exec(ctx context.Context, query string, args ...interface{}) (ChangeSummary, error)
	// Scalar returns the first column of the first row, or nil if there are no rows.
	Scalar(ctx context.Context, query string, args ...interface{}) (interface{}, error)
	// Row returns the first row, or nil if there are no rows.
	Row(ctx context.Context, query string, args ...interface{}) (Row, error)
	// All returns all rows.
	All(ctx context.Context, query string, args ...interface{}) ([]Row, error)
}

// Conn is an open handle to one SQLite database file.
type Conn struct {
	querier

	path     string
	readOnly bool
	db       *sql.DB
	stmts    *stmtCache
	maint    *maintenance

	mu       sync.Mutex
	onClose  []func()
	closed   bool
	closeErr error
}

// Open the database at |path|. A writable Conn creates the file if it doesn't
// exist. A read-only Conn requires that it does.
func Open(path string, readOnly bool, opts Options) (*Conn, error) {
	if path == "" {
		return nil, errors.New("expected database path")
	}
	opts = opts.withDefaults()

	if path == MemoryPath {
		readOnly = false // Private to this context, and necessarily writable.
	}
	var db, err = sql.Open("sqlite3", dataSourceName(path, readOnly, opts))
	if err != nil {
		return nil, errors.WithMessagef(err, "opening %s", path)
	}

	if path == MemoryPath {
		// Each connection of an in-memory database is a distinct database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(opts.MaxConns)
		db.SetMaxIdleConns(opts.MaxConns)
	}

	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.WithMessagef(err, "connecting to %s", path)
	}

	var c = &Conn{
		path:     path,
		readOnly: readOnly,
		db:       db,
		stmts:    newStmtCache(db, opts.StatementCacheSize),
	}
	c.querier = querier{prepare: c.prepare}

	if !readOnly && opts.OptimizeInterval > 0 {
		c.maint = startMaintenance(c, opts.OptimizeInterval)
	}

	log.WithFields(log.Fields{
		"path":     path,
		"readOnly": readOnly,
	}).Debug("opened database")

	return c, nil
}

// Path of the database file.
func (c *Conn) Path() string { return c.path }

// ReadOnly is true if the Conn was opened read-only.
func (c *Conn) ReadOnly() bool { return c.readOnly }

// DB returns the underlying *sql.DB.
func (c *Conn) DB() *sql.DB { return c.db }

// Query runs a query and returns its *sql.Rows, which the caller must close.
// Query doesn't use the statement cache.
func (c *Conn) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, query, bindArgs(args)...)
}

// Prepare returns a cached prepared statement of |query|. The returned release
// must be called when the statement is no longer in use.
func (c *Conn) Prepare(ctx context.Context, query string) (*sql.Stmt, func(), error) {
	return c.prepare(ctx, query)
}

func (c *Conn) prepare(ctx context.Context, query string) (*sql.Stmt, func(), error) {
	return c.stmts.acquire(ctx, query)
}

// Transaction runs |fn| within a transaction, which is committed if |fn|
// returns nil and rolled back otherwise (including if |fn| panics).
func (c *Conn) Transaction(ctx context.Context, fn func(*Tx) error) (err error) {
	var sqlTx *sql.Tx
	if sqlTx, err = c.db.BeginTx(ctx, nil); err != nil {
		return errors.WithMessage(err, "begin")
	}
	var tx = &Tx{conn: c, tx: sqlTx}
	tx.querier = querier{prepare: tx.prepare}

	defer func() {
		if r := recover(); r != nil {
			_ = sqlTx.Rollback()
			panic(r)
		} else if err != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil {
				log.WithFields(log.Fields{"err": rbErr, "path": c.path}).Warn("failed to roll back transaction")
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return errors.WithMessage(err, "commit")
	}
	return nil
}

// OnClose registers |fn| to be called after the Conn is closed.
func (c *Conn) OnClose(fn func()) {
	c.mu.Lock()
	var closed = c.closed
	if !closed {
		c.onClose = append(c.onClose, fn)
	}
	c.mu.Unlock()

	if closed {
		fn()
	}
}

// Close the Conn, its cached statements and its maintenance loop, and then
// notify OnClose callbacks. Close may be called more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return c.closeErr
	}
	c.closed = true
	var callbacks = c.onClose
	c.onClose = nil
	c.mu.Unlock()

	if c.maint != nil {
		c.maint.stop()
	}
	c.stmts.purge()
	var err = c.db.Close()

	c.mu.Lock()
	c.closeErr = err
	c.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
	return err
}

// Tx is a transaction of a Conn.
type Tx struct {
	querier

	conn *Conn
	tx   *sql.Tx
}

// Conn returns the Conn of the Tx.
func (tx *Tx) Conn() *Conn { return tx.conn }

// prepare binds a cached statement to the transaction. Statements not yet
// cached are prepared on the transaction itself and closed at its end:
// preparing them through the *sql.DB would require a second connection.
func (tx *Tx) prepare(ctx context.Context, query string) (*sql.Stmt, func(), error) {
	if stmt, release, ok := tx.conn.stmts.peek(query); ok {
		var txStmt = tx.tx.StmtContext(ctx, stmt)
		return txStmt, func() { _ = txStmt.Close(); release() }, nil
	}
	var stmt, err = tx.tx.PrepareContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	return stmt, func() { _ = stmt.Close() }, nil
}

// querier implements Querier over a statement preparation function.
type querier struct {
	prepare func(context.Context, string) (*sql.Stmt, func(), error)
}

func (q querier) Exec(ctx context.Context, query string, args ...interface{}) (ChangeSummary, error) {
	var stmt, release, err = q.prepare(ctx, query)
	if err != nil {
		return ChangeSummary{}, err
	}
	defer release()

	res, err := stmt.ExecContext(ctx, bindArgs(args)...)
	if err != nil {
		return ChangeSummary{}, err
	}
	var out ChangeSummary
	if out.Changes, err = res.RowsAffected(); err != nil {
		return ChangeSummary{}, err
	}
	if out.LastInsertRowID, err = res.LastInsertId(); err != nil {
		return ChangeSummary{}, err
	}
	return out, nil
}

func (q querier) Scalar(ctx context.Context, query string, args ...interface{}) (interface{}, error) {
	var out interface{}
	var err = q.each(ctx, query, args, func(_ []string, values []interface{}) bool {
		if len(values) != 0 {
			out = values[0]
		}
		return false
	})
	return out, err
}

func (q querier) Row(ctx context.Context, query string, args ...interface{}) (Row, error) {
	var out Row
	var err = q.each(ctx, query, args, func(columns []string, values []interface{}) bool {
		out = makeRow(columns, values)
		return false
	})
	return out, err
}

func (q querier) All(ctx context.Context, query string, args ...interface{}) ([]Row, error) {
	var out = []Row{}
	var err = q.each(ctx, query, args, func(columns []string, values []interface{}) bool {
		out = append(out, makeRow(columns, values))
		return true
	})
	return out, err
}

// each invokes |fn| with each result row, until |fn| returns false.
func (q querier) each(ctx context.Context, query string, args []interface{},
	fn func(columns []string, values []interface{}) bool) error {

	var stmt, release, err = q.prepare(ctx, query)
	if err != nil {
		return err
	}
	defer release()

	rows, err := stmt.QueryContext(ctx, bindArgs(args)...)
	if err != nil {
		return err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return err
	}
	for rows.Next() {
		var values = make([]interface{}, len(columns))
		var ptrs = make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err = rows.Scan(ptrs...); err != nil {
			return err
		}
		if !fn(columns, values) {
			break
		}
	}
	return rows.Err()
}

func makeRow(columns []string, values []interface{}) Row {
	var row = make(Row, len(columns))
	for i, c := range columns {
		row[c] = values[i]
	}
	return row
}

// bindArgs maps composite arguments (lists and objects, as decoded from JSON)
// to their JSON text, which queries may expand with json_each(?).
func bindArgs(args []interface{}) []interface{} {
	var out []interface{}
	for i, a := range args {
		switch a.(type) {
		case []interface{}, map[string]interface{}:
			if out == nil {
				out = append([]interface{}(nil), args...)
			}
			if b, err := json.Marshal(a); err == nil {
				out[i] = string(b)
			}
		}
	}
	if out == nil {
		return args
	}
	return out
}
