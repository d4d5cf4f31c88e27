package jobs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.sql3.dev/core/protocol"
	"go.sql3.dev/core/sqlite"
)

// newFixture returns an in-memory database having a table of users.
func newFixture(t require.TestingT) *sqlite.Conn {
	var conn, err = sqlite.Open(sqlite.MemoryPath, false, sqlite.Options{})
	require.NoError(t, err)

	_, err = conn.Exec(context.Background(), `CREATE TABLE users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT UNIQUE,
		visits INTEGER NOT NULL DEFAULT 0
	)`)
	require.NoError(t, err)
	return conn
}

// ship round-trips |job| through its JSON encoding, as it would be when
// transmitted between contexts.
func ship(t *testing.T, job protocol.Job) protocol.Job {
	var b, err = json.Marshal(job)
	require.NoError(t, err)

	var out protocol.Job
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

// run decodes and runs |job| against |conn| the way the primary does,
// returning its Result.
func run(codec *Codec, conn *sqlite.Conn, job protocol.Job) protocol.Result {
	var ctx = context.Background()

	var runner, err = codec.Decode(job)
	if err != nil {
		return protocol.FailedResult(err)
	}
	var value interface{}

	if job.Target.Tx {
		err = conn.Transaction(ctx, func(tx *sqlite.Tx) error {
			value, err = runner(ctx, tx, job)
			return err
		})
	} else {
		value, err = runner(ctx, conn, job)
	}
	if err != nil {
		return protocol.FailedResult(err)
	}
	return protocol.NewResult(value)
}
