package coordinator

import (
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"go.sql3.dev/core/sqlite"
)

// Config of a Coordinator.
type Config struct {
	ID           string         `long:"id" env:"ID" description:"Name of this execution context. Generated if not set"`
	SQLite       sqlite.Options `group:"SQLite" namespace:"sqlite" env-namespace:"SQLITE"`
	JobCacheSize int            `long:"job-cache" env:"JOB_CACHE" default:"1024" description:"Number of reconstructed job runners cached by the primary"`
	CallTimeout  time.Duration  `long:"call-timeout" env:"CALL_TIMEOUT" default:"0s" description:"Maximum duration a caller waits for a shipped write. Zero waits indefinitely"`
}

// DefaultJobCacheSize is the JobCacheSize of a zero-valued Config.
const DefaultJobCacheSize = 1024

func (cfg Config) withDefaults() Config {
	if cfg.ID == "" {
		cfg.ID = petname.Generate(2, "-")
	}
	if cfg.JobCacheSize <= 0 {
		cfg.JobCacheSize = DefaultJobCacheSize
	}
	return cfg
}
