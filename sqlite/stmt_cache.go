package sqlite

import (
	"context"
	"database/sql"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	log "github.com/sirupsen/logrus"
	"go.sql3.dev/core/metrics"
)

// stmtCache memoizes prepared statements of a *sql.DB by exact query text.
// Statements are reference counted while in use: an evicted statement is
// closed once its last user releases it.
type stmtCache struct {
	db    *sql.DB
	mu    sync.Mutex
	cache *lru.Cache
}

type cachedStmt struct {
	stmt    *sql.Stmt
	refs    int
	evicted bool
}

func newStmtCache(db *sql.DB, size int) *stmtCache {
	var sc = &stmtCache{db: db}
	var cache, err = lru.NewWithEvict(size, func(key, value interface{}) {
		// Called with |sc.mu| held.
		var cs = value.(*cachedStmt)
		cs.evicted = true

		if cs.refs == 0 {
			closeStmt(cs.stmt, key.(string))
		}
	})
	if err != nil {
		panic(err.Error()) // Only errors on size <= 0.
	}
	sc.cache = cache
	return sc
}

// acquire returns the cached statement of |query|, preparing it on a miss.
// The returned release must be called once the statement is no longer used.
func (sc *stmtCache) acquire(ctx context.Context, query string) (*sql.Stmt, func(), error) {
	if cs, ok := sc.lookup(query); ok {
		metrics.StatementCacheHitsTotal.Inc()
		return cs.stmt, sc.releaser(cs, query), nil
	}
	metrics.StatementCacheMissesTotal.Inc()

	var stmt, err = sc.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	sc.mu.Lock()
	var cs *cachedStmt
	if v, ok := sc.cache.Get(query); ok {
		// Raced with another preparation of |query|. Use theirs.
		cs = v.(*cachedStmt)
		defer closeStmt(stmt, query)
	} else {
		cs = &cachedStmt{stmt: stmt}
		sc.cache.Add(query, cs)
	}
	cs.refs++
	sc.mu.Unlock()

	return cs.stmt, sc.releaser(cs, query), nil
}

// peek returns the cached statement of |query| without preparing on a miss.
func (sc *stmtCache) peek(query string) (*sql.Stmt, func(), bool) {
	if cs, ok := sc.lookup(query); ok {
		metrics.StatementCacheHitsTotal.Inc()
		return cs.stmt, sc.releaser(cs, query), true
	}
	return nil, nil, false
}

func (sc *stmtCache) lookup(query string) (*cachedStmt, bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if v, ok := sc.cache.Get(query); ok {
		var cs = v.(*cachedStmt)
		cs.refs++
		return cs, true
	}
	return nil, false
}

func (sc *stmtCache) releaser(cs *cachedStmt, query string) func() {
	return func() {
		sc.mu.Lock()
		defer sc.mu.Unlock()

		if cs.refs--; cs.refs == 0 && cs.evicted {
			closeStmt(cs.stmt, query)
		}
	}
}

// len returns the number of cached statements.
func (sc *stmtCache) len() int { return sc.cache.Len() }

// purge evicts (and closes) all unused cached statements.
func (sc *stmtCache) purge() {
	sc.mu.Lock()
	sc.cache.Purge()
	sc.mu.Unlock()
}

func closeStmt(stmt *sql.Stmt, query string) {
	if err := stmt.Close(); err != nil {
		log.WithFields(log.Fields{"err": err, "query": query}).Warn("failed to close evicted statement")
	}
}
