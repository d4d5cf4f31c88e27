package coordinator

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.sql3.dev/core/jobs"
	"go.sql3.dev/core/pool"
	"go.sql3.dev/core/protocol"
	"go.sql3.dev/core/pump"
	"go.sql3.dev/core/sqlite"
)

// Coordinator is the context object of an execution context. It routes the
// context's writes to the primary, and on the primary, runs the writes of
// every context of the tree.
type Coordinator struct {
	cfg   Config
	codec *jobs.Codec
	pump  *pump.Pump
	pool  *pool.Pool // Non-nil only if primary.
	log   *log.Entry

	mu      sync.Mutex
	dbs     map[string]*DB
	memory  *sqlite.Conn
	workers []*Coordinator
	closed  bool
}

// New returns a Coordinator of the context having parent Channel |parent|,
// or of the primary if |parent| is nil. Jobs are encoded and run with
// |codec|, which may be shared with workers of the Coordinator. If |codec|
// is nil, one is created.
func New(cfg Config, parent pump.Channel, codec *jobs.Codec) *Coordinator {
	cfg = cfg.withDefaults()

	if codec == nil {
		codec = jobs.NewCodec(cfg.JobCacheSize)
	}
	var c = &Coordinator{
		cfg:   cfg,
		codec: codec,
		dbs:   make(map[string]*DB),
	}

	if parent == nil {
		c.pool = pool.New(pool.OpenWith(cfg.SQLite))
		c.pump = pump.New(nil, c.run)
	} else {
		c.pump = pump.New(parent, nil)
	}
	c.log = log.WithFields(log.Fields{"context": cfg.ID, "role": c.pump.Role()})
	c.log.Debug("started execution context")

	return c
}

// NewFromEnv returns a Coordinator of the parent Channel announced by the
// environment, or of the primary if there is none.
func NewFromEnv(cfg Config, codec *jobs.Codec) (*Coordinator, error) {
	var parent, err = pump.ParentFromEnv()
	if err != nil {
		return nil, errors.WithMessage(err, "connecting to parent")
	}
	return New(cfg, parent, codec), nil
}

// ID of the Coordinator's context.
func (c *Coordinator) ID() string { return c.cfg.ID }

// Role of the Coordinator's context.
func (c *Coordinator) Role() pump.Role { return c.pump.Role() }

// Codec of the Coordinator.
func (c *Coordinator) Codec() *jobs.Codec { return c.codec }

// Open returns the DB of |file|. Relative paths are resolved against the
// working directory. Open doesn't itself open a database Conn: the primary
// opens writable Conns on first use, and secondaries open read-only Conns
// on first read.
func (c *Coordinator) Open(file string) (*DB, error) {
	var path, err = resolve(file)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, pump.ErrClosed
	} else if db, ok := c.dbs[path]; ok {
		return db, nil
	}
	var db = &DB{c: c, path: path}
	c.dbs[path] = db
	return db, nil
}

// Attach registers an open, writable Conn with the primary's pool, and
// returns its DB. Subsequent writes of its file, from any context, run
// against |conn|. Attach fails on a secondary.
func (c *Coordinator) Attach(conn *sqlite.Conn) (*DB, error) {
	if c.pool == nil {
		return nil, errors.New("only the primary may attach writable Conns")
	} else if conn.ReadOnly() {
		return nil, errors.Errorf("expected writable Conn of %s", conn.Path())
	} else if !filepath.IsAbs(conn.Path()) {
		return nil, errors.Errorf("expected absolute path (%s)", conn.Path())
	}
	c.pool.Set(conn)
	return c.Open(conn.Path())
}

// NewWorker returns a Coordinator of a new in-process worker context, which
// is a child of this one. The worker shares no state with its parent other
// than its Codec: Jobs are serialized across the Channel joining them.
// The worker is closed with its parent.
func (c *Coordinator) NewWorker() (*Coordinator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, pump.ErrClosed
	}
	var a, b = pump.Pipe()
	c.pump.AddChild(a)

	var cfg = c.cfg
	cfg.ID = fmt.Sprintf("%s/w%d", c.cfg.ID, len(c.workers))

	var w = New(cfg, b, c.codec)
	c.workers = append(c.workers, w)
	return w, nil
}

// StartProcess starts |cmd| as a child context of this one. The child
// process connects with NewFromEnv. The caller should Wait on the returned
// Process.
func (c *Coordinator) StartProcess(cmd *exec.Cmd) (*pump.Process, error) {
	var proc, err = pump.StartProcess(cmd)
	if err != nil {
		return nil, err
	}
	c.pump.AddChild(proc)

	c.log.WithFields(log.Fields{
		"path": cmd.Path,
		"pid":  cmd.Process.Pid,
	}).Info("started child process")

	return proc, nil
}

// AddChild attaches a child context connected by |ch|.
func (c *Coordinator) AddChild(ch pump.Channel) { c.pump.AddChild(ch) }

// Close the Coordinator, its workers, and its Conns. Calls pending in this
// context, or relayed through it, fail with pump.ErrClosed.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	var workers, memory = c.workers, c.memory
	var dbs = make([]*DB, 0, len(c.dbs))
	for _, db := range c.dbs {
		dbs = append(dbs, db)
	}
	c.mu.Unlock()

	var firstErr error
	var check = func(err error, msg string) {
		if err != nil && firstErr == nil {
			firstErr = errors.WithMessage(err, msg)
		}
	}

	for _, w := range workers {
		check(w.Close(), "closing worker")
	}
	check(c.pump.Close(), "closing pump")

	for _, db := range dbs {
		check(db.close(), "closing "+db.path)
	}
	if memory != nil {
		check(memory.Close(), "closing in-memory database")
	}
	if c.pool != nil {
		check(c.pool.Close(), "closing pool")
	}

	c.log.WithField("err", firstErr).Debug("closed execution context")
	return firstErr
}

// ExecStatement runs |query| at the primary, returning its ChangeSummary.
func (c *Coordinator) ExecStatement(ctx context.Context, file, query string, args ...interface{}) (sqlite.ChangeSummary, error) {
	var out sqlite.ChangeSummary
	var job, err = encode(file, func(path string) (protocol.Job, error) {
		return jobs.Exec(path, query, args...)
	})
	if err == nil {
		err = c.send(ctx, job, &out)
	}
	return out, err
}

// ExecScalar runs |query| at the primary, returning the first column of its
// first row, or nil if there are no rows.
func (c *Coordinator) ExecScalar(ctx context.Context, file, query string, args ...interface{}) (interface{}, error) {
	var out interface{}
	var job, err = encode(file, func(path string) (protocol.Job, error) {
		return jobs.Scalar(path, query, args...)
	})
	if err == nil {
		err = c.send(ctx, job, &out)
	}
	return out, err
}

// ExecRow runs |query| at the primary, returning its first row, or nil if
// there are no rows.
func (c *Coordinator) ExecRow(ctx context.Context, file, query string, args ...interface{}) (sqlite.Row, error) {
	var out sqlite.Row
	var job, err = encode(file, func(path string) (protocol.Job, error) {
		return jobs.Row(path, query, args...)
	})
	if err == nil {
		err = c.send(ctx, job, &out)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExecTransaction runs each of |queries| in order, within a single
// transaction at the primary. If a query fails, the transaction is rolled
// back and the query's error is returned.
func (c *Coordinator) ExecTransaction(ctx context.Context, file string, queries []protocol.Query) error {
	var job, err = encode(file, func(path string) (protocol.Job, error) {
		return jobs.Transaction(path, queries)
	})
	if err == nil {
		err = c.send(ctx, job, nil)
	}
	return err
}

// Call the registered function |name| at the primary, decoding its returned
// value into |out| (which may be nil).
func (c *Coordinator) Call(ctx context.Context, file, name string, out interface{}, args ...interface{}) error {
	return c.call(ctx, file, false, name, out, args)
}

// CallTx calls the registered function |name| as Call does, within a single
// transaction which is rolled back if the function fails.
func (c *Coordinator) CallTx(ctx context.Context, file, name string, out interface{}, args ...interface{}) error {
	return c.call(ctx, file, true, name, out, args)
}

func (c *Coordinator) call(ctx context.Context, file string, tx bool, name string, out interface{}, args []interface{}) error {
	var job, err = encode(file, func(path string) (protocol.Job, error) {
		return c.codec.Func(path, tx, name, args...)
	})
	if err == nil {
		err = c.send(ctx, job, out)
	}
	return err
}

// send |job| and decode its value into |out|. Jobs of the in-memory
// database are private to this context, and run locally.
func (c *Coordinator) send(ctx context.Context, job protocol.Job, out interface{}) error {
	if job.Target.File == sqlite.MemoryPath {
		var conn, err = c.memoryConn()
		if err != nil {
			return err
		}
		var result protocol.Result
		if value, err := runJob(ctx, c.codec, conn, job); err != nil {
			result = protocol.FailedResult(err)
		} else {
			result = protocol.NewResult(value)
		}
		return result.Decode(out)
	}

	if c.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}
	var err = c.pump.Send(job).Decode(ctx, out)

	if err != nil && ctx.Err() != nil {
		c.log.WithFields(log.Fields{
			"kind": job.Kind,
			"file": job.Target.File,
			"err":  err,
		}).Warn("abandoned call")
	}
	return err
}

// run is the Runner of the primary's executor.
func (c *Coordinator) run(ctx context.Context, job protocol.Job) (interface{}, error) {
	var conn, err = c.pool.Get(job.Target.File)
	if err != nil {
		return nil, err
	}
	return runJob(ctx, c.codec, conn, job)
}

func (c *Coordinator) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

func (c *Coordinator) memoryConn() (*sqlite.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, pump.ErrClosed
	} else if c.memory != nil {
		return c.memory, nil
	}
	var conn, err = sqlite.Open(sqlite.MemoryPath, false, c.cfg.SQLite)
	if err != nil {
		return nil, err
	}
	c.memory = conn
	return conn, nil
}

// runJob decodes |job| and runs it against |conn|, within a transaction
// if the Job requires one.
func runJob(ctx context.Context, codec *jobs.Codec, conn *sqlite.Conn, job protocol.Job) (interface{}, error) {
	var runner, err = codec.Decode(job)
	if err != nil {
		return nil, err
	} else if !job.Target.Tx {
		return runner(ctx, conn, job)
	}

	var out interface{}
	err = conn.Transaction(ctx, func(tx *sqlite.Tx) error {
		out, err = runner(ctx, tx, job)
		return err
	})
	return out, err
}

// encode resolves |file| and builds its Job with |fn|.
func encode(file string, fn func(path string) (protocol.Job, error)) (protocol.Job, error) {
	var path, err = resolve(file)
	if err != nil {
		return protocol.Job{}, err
	}
	return fn(path)
}

// resolve |file| to an absolute path, which is stable across contexts
// having different working directories.
func resolve(file string) (string, error) {
	if file == "" {
		return "", errors.New("expected database file")
	} else if file == sqlite.MemoryPath {
		return file, nil
	}
	var path, err = filepath.Abs(file)
	if err != nil {
		return "", errors.WithMessagef(err, "resolving %s", file)
	}
	return path, nil
}
