// Package pool maps database files to the primary's single writable
// sqlite.Conn of each.
package pool

import (
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.sql3.dev/core/metrics"
	"go.sql3.dev/core/sqlite"
)

// OpenFunc opens a writable Conn of |path|.
type OpenFunc func(path string) (*sqlite.Conn, error)

// Pool holds at most one writable Conn per database file. Conns are opened
// lazily on first use, and are removed from the Pool when closed. Pool
// only exists on the primary.
type Pool struct {
	open OpenFunc

	mu     sync.Mutex
	conns  map[string]*sqlite.Conn
	closed bool
}

// ErrClosed is returned by Get of a closed Pool.
var ErrClosed = errors.New("pool closed")

// New returns an empty Pool which opens Conns with |open|.
func New(open OpenFunc) *Pool {
	return &Pool{
		open:  open,
		conns: make(map[string]*sqlite.Conn),
	}
}

// OpenWith returns an OpenFunc which opens writable Conns with |opts|.
func OpenWith(opts sqlite.Options) OpenFunc {
	return func(path string) (*sqlite.Conn, error) {
		return sqlite.Open(path, false, opts)
	}
}

// Get returns the Conn of |path|, opening and pooling a new one if the Pool
// doesn't already hold one. The Pool's lock is held while opening, so
// concurrent Gets of a path never open more than one Conn.
func (p *Pool) Get(path string) (*sqlite.Conn, error) {
	if path == sqlite.MemoryPath {
		return nil, errors.New("in-memory databases cannot be pooled")
	} else if !filepath.IsAbs(path) {
		return nil, errors.Errorf("expected absolute path (%s)", path)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	} else if conn, ok := p.conns[path]; ok {
		p.mu.Unlock()
		return conn, nil
	}
	var conn, err = p.open(path)
	if err == nil && conn.ReadOnly() {
		_ = conn.Close()
		err = errors.Errorf("expected writable Conn of %s", path)
	}
	if err != nil {
		p.mu.Unlock()
		return nil, errors.WithMessagef(err, "opening pooled %s", path)
	}
	metrics.PoolOpensTotal.Inc()

	p.putLocked(conn)
	p.mu.Unlock()

	p.watch(conn)
	return conn, nil
}

// Set registers an already-open, writable Conn with the Pool, replacing any
// Conn previously held for its path. The replaced Conn is not closed.
func (p *Pool) Set(conn *sqlite.Conn) {
	if conn.ReadOnly() {
		panic("pool: Set of read-only Conn")
	}
	p.mu.Lock()
	var added = p.putLocked(conn)
	p.mu.Unlock()

	if added {
		p.watch(conn)
	}
}

// Len returns the number of pooled Conns.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.conns)
}

// Close every pooled Conn, returning the first encountered error.
// Subsequent Gets fail with ErrClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	var conns = make([]*sqlite.Conn, 0, len(p.conns))
	for _, conn := range p.conns {
		conns = append(conns, conn)
	}
	p.mu.Unlock()

	// Conns remove themselves from |p.conns| as they close.
	var firstErr error
	for _, conn := range conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = errors.WithMessagef(err, "closing %s", conn.Path())
		}
	}
	return firstErr
}

// putLocked maps |conn| by its path, returning false if it was already mapped.
func (p *Pool) putLocked(conn *sqlite.Conn) bool {
	var path = conn.Path()
	if prior, ok := p.conns[path]; ok && prior == conn {
		return false
	}
	p.conns[path] = conn
	metrics.PoolConnections.Set(float64(len(p.conns)))

	log.WithField("path", path).Debug("pooled database connection")
	return true
}

// watch removes |conn| from the Pool upon its close. It must be called
// without |p.mu| held: a closed |conn| invokes its callback immediately.
func (p *Pool) watch(conn *sqlite.Conn) {
	var path = conn.Path()
	conn.OnClose(func() { p.remove(path, conn) })
}

// remove |conn| from the Pool, only if it's still the Conn of |path|.
func (p *Pool) remove(path string, conn *sqlite.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conns[path] == conn {
		delete(p.conns, path)
		metrics.PoolConnections.Set(float64(len(p.conns)))
	}
}
