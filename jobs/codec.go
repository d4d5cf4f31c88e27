package jobs

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.sql3.dev/core/metrics"
	"go.sql3.dev/core/protocol"
	"go.sql3.dev/core/sqlite"
)

// Func is a function which the primary runs by name on behalf of any context.
// |q| is a sqlite.Querier of the Job's target database, which is a *sqlite.Tx
// if the Job was sent with a transaction. The returned value must be
// encodable as JSON.
//
// A Func runs on the primary's executor and must not itself send Jobs.
type Func func(ctx context.Context, q sqlite.Querier, args []interface{}) (interface{}, error)

// Runner runs a decoded Job against a Querier of its target database.
type Runner func(ctx context.Context, q sqlite.Querier, job protocol.Job) (interface{}, error)

// Stats of a Codec's runner cache.
type Stats struct {
	// Reconstructions is the number of runners built on a cache miss.
	Reconstructions int64
	// Hits is the number of Decodes served from cache.
	Hits int64
	// Cached is the current number of cached runners.
	Cached int
}

// Codec maintains the registry of named Funcs, and reconstructs and caches
// Runners of decoded Jobs.
type Codec struct {
	funcsMu sync.RWMutex
	funcs   map[string]Func

	mu    sync.Mutex // Serializes Decode, so each Signature is reconstructed once.
	cache *lru.Cache
	stats Stats
}

// NewCodec returns a Codec which caches up to |cacheSize| Runners
// (which must be > 0).
func NewCodec(cacheSize int) *Codec {
	var cache, err = lru.New(cacheSize)
	if err != nil {
		panic(err.Error()) // Only errors on size <= 0.
	}
	return &Codec{
		funcs: make(map[string]Func),
		cache: cache,
	}
}

// Register |fn| under |name|. Register panics if |name| is empty or
// already registered.
func (c *Codec) Register(name string, fn Func) {
	c.funcsMu.Lock()
	defer c.funcsMu.Unlock()

	if name == "" {
		panic("jobs: empty Func name")
	} else if _, ok := c.funcs[name]; ok {
		panic("jobs: Func " + name + " is already registered")
	}
	c.funcs[name] = fn
}

// Registered returns true if a Func is registered under |name|.
func (c *Codec) Registered(name string) bool {
	c.funcsMu.RLock()
	defer c.funcsMu.RUnlock()

	var _, ok = c.funcs[name]
	return ok
}

// Decode returns the Runner of |job|, reconstructing it if a Runner of the
// Job's Signature isn't already cached. Errors are *ReconstructionError.
func (c *Codec) Decode(job protocol.Job) (Runner, error) {
	var sig = job.Signature()

	if err := job.Validate(); err != nil {
		return nil, &ReconstructionError{Signature: sig, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.cache.Get(sig); ok {
		c.stats.Hits++
		metrics.JobRunnerCacheHitsTotal.Inc()
		return v.(Runner), nil
	}

	var runner, err = c.reconstruct(job)
	if err != nil {
		return nil, &ReconstructionError{Signature: sig, Err: err}
	}
	c.cache.Add(sig, runner)
	c.stats.Reconstructions++
	metrics.JobRunnerReconstructionsTotal.Inc()

	log.WithFields(log.Fields{
		"kind":   job.Kind,
		"func":   job.Func,
		"cached": c.cache.Len(),
	}).Debug("reconstructed job runner")

	return runner, nil
}

// Stats returns a snapshot of the Codec's runner cache statistics.
func (c *Codec) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var s = c.stats
	s.Cached = c.cache.Len()
	return s
}

func (c *Codec) reconstruct(job protocol.Job) (Runner, error) {
	switch job.Kind {
	case protocol.JobExec:
		return statementRunner(func(ctx context.Context, q sqlite.Querier, query string, args []interface{}) (interface{}, error) {
			return q.Exec(ctx, query, args...)
		}), nil
	case protocol.JobScalar:
		return statementRunner(func(ctx context.Context, q sqlite.Querier, query string, args []interface{}) (interface{}, error) {
			return q.Scalar(ctx, query, args...)
		}), nil
	case protocol.JobRow:
		return statementRunner(func(ctx context.Context, q sqlite.Querier, query string, args []interface{}) (interface{}, error) {
			return q.Row(ctx, query, args...)
		}), nil
	case protocol.JobTx:
		return runTransaction, nil
	case protocol.JobFunc:
		c.funcsMu.RLock()
		var fn, ok = c.funcs[job.Func]
		c.funcsMu.RUnlock()

		if !ok {
			return nil, errors.Errorf("function %q is not registered", job.Func)
		}
		return func(ctx context.Context, q sqlite.Querier, job protocol.Job) (interface{}, error) {
			var args, err = protocol.DecodeArgs(job.Args)
			if err != nil {
				return nil, err
			}
			return fn(ctx, q, args)
		}, nil
	default:
		panic("not reached") // Kind is validated.
	}
}

func statementRunner(fn func(context.Context, sqlite.Querier, string, []interface{}) (interface{}, error)) Runner {
	return func(ctx context.Context, q sqlite.Querier, job protocol.Job) (interface{}, error) {
		var stmt = job.Statements[0]

		var args, err = protocol.DecodeArgs(stmt.Args)
		if err != nil {
			return nil, err
		}
		return fn(ctx, q, stmt.Query, args)
	}
}

// runTransaction runs each Statement of |job| in order. The caller is
// responsible for running it within a transaction, and rolling back on error.
func runTransaction(ctx context.Context, q sqlite.Querier, job protocol.Job) (interface{}, error) {
	for i, stmt := range job.Statements {
		var args, err = protocol.DecodeArgs(stmt.Args)
		if err == nil {
			_, err = q.Exec(ctx, stmt.Query, args...)
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "statement %d of %d", i+1, len(job.Statements))
		}
	}
	return nil, nil
}
