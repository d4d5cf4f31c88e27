package coordinator

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.sql3.dev/core/jobs"
	"go.sql3.dev/core/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS t (
	id INTEGER PRIMARY KEY,
	n  INTEGER NOT NULL DEFAULT 0,
	v  TEXT UNIQUE
)`

// newCodec returns a Codec having the functions used by tests. Every
// context of a test tree registers the same functions.
func newCodec() *jobs.Codec {
	var codec = jobs.NewCodec(16)
	codec.Register("touch", touch)
	codec.Register("touchThenFail", func(ctx context.Context, q sqlite.Querier, args []interface{}) (interface{}, error) {
		if _, err := touch(ctx, q, args); err != nil {
			return nil, err
		}
		return nil, errors.New("whoops")
	})
	codec.Register("slow", func(context.Context, sqlite.Querier, []interface{}) (interface{}, error) {
		time.Sleep(100 * time.Millisecond)
		return "done", nil
	})
	return codec
}

// touch adds args[1] to the n of the row having v args[0], creating it if
// required, and returns the updated row.
func touch(ctx context.Context, q sqlite.Querier, args []interface{}) (interface{}, error) {
	if len(args) != 2 {
		return nil, errors.Errorf("expected value and count (got %d args)", len(args))
	}
	if _, err := q.Exec(ctx, `INSERT INTO t (v, n) VALUES (?, ?)
		ON CONFLICT (v) DO UPDATE SET n = n + excluded.n`, args...); err != nil {
		return nil, err
	}
	return q.Row(ctx, "SELECT v, n FROM t WHERE v = ?", args[0])
}

// chdir changes the working directory to |dir| for the duration of the
// test, as testing.T.Chdir does in Go 1.24+.
func chdir(t *testing.T, dir string) {
	t.Helper()
	var prev, err = os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err = os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			panic("chdir: restoring working directory: " + err.Error())
		}
	})
}
