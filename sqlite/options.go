package sqlite

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// MemoryPath is the path of a private, in-memory database.
const MemoryPath = ":memory:"

// Defaults applied to zero-valued Options.
const (
	DefaultBusyTimeout        = 5 * time.Second
	DefaultJournalMode        = "WAL"
	DefaultSynchronous        = "NORMAL"
	DefaultStatementCacheSize = 1000
	DefaultMaxConns           = 4
)

// Options configure the opening of a Conn.
type Options struct {
	BusyTimeout        time.Duration `long:"busy-timeout" env:"BUSY_TIMEOUT" default:"5s" description:"Time to wait on a locked database before failing"`
	JournalMode        string        `long:"journal-mode" env:"JOURNAL_MODE" default:"WAL" choice:"WAL" choice:"DELETE" choice:"TRUNCATE" choice:"PERSIST" choice:"MEMORY" description:"SQLite journal_mode of writable databases"`
	Synchronous        string        `long:"synchronous" env:"SYNCHRONOUS" default:"NORMAL" choice:"OFF" choice:"NORMAL" choice:"FULL" choice:"EXTRA" description:"SQLite synchronous mode"`
	ForeignKeys        bool          `long:"foreign-keys" env:"FOREIGN_KEYS" description:"Enforce foreign key constraints"`
	StatementCacheSize int           `long:"statement-cache" env:"STATEMENT_CACHE" default:"1000" description:"Number of prepared statements cached per database"`
	OptimizeInterval   time.Duration `long:"optimize-interval" env:"OPTIMIZE_INTERVAL" default:"1h" description:"Interval of background PRAGMA optimize on writable databases. Zero disables"`
	MaxConns           int           `long:"max-conns" env:"MAX_CONNS" default:"4" description:"Maximum open connections per database file"`
}

func (o Options) withDefaults() Options {
	if o.BusyTimeout == 0 {
		o.BusyTimeout = DefaultBusyTimeout
	}
	if o.JournalMode == "" {
		o.JournalMode = DefaultJournalMode
	}
	if o.Synchronous == "" {
		o.Synchronous = DefaultSynchronous
	}
	if o.StatementCacheSize <= 0 {
		o.StatementCacheSize = DefaultStatementCacheSize
	}
	if o.MaxConns <= 0 {
		o.MaxConns = DefaultMaxConns
	}
	return o
}

// dataSourceName builds the go-sqlite3 DSN of |path|. Pragmas are passed as
// DSN parameters so that go-sqlite3 applies them to every connection it opens.
func dataSourceName(path string, readOnly bool, o Options) string {
	var q = make(url.Values)
	q.Set("_busy_timeout", fmt.Sprint(o.BusyTimeout.Milliseconds()))
	q.Set("_synchronous", o.Synchronous)

	if o.ForeignKeys {
		q.Set("_foreign_keys", "1")
	}
	if readOnly {
		q.Set("mode", "ro")
	} else if path != MemoryPath {
		// Journal mode is a property of the database file, established by its writer.
		q.Set("_journal_mode", o.JournalMode)
	}
	return "file:" + escapePath(path) + "?" + q.Encode()
}

var pathEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

func escapePath(path string) string { return pathEscaper.Replace(path) }
