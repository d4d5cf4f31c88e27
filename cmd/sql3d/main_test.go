package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.sql3.dev/core/sqlite"
)

func TestParseArgs(t *testing.T) {
	assert.Equal(t, []interface{}{
		int64(42), 1.5, "plain", "quoted", nil, true, []interface{}{int64(1), "a"}, "{bad",
	}, parseArgs([]string{"42", "1.5", "plain", `"quoted"`, "null", "true", `[1,"a"]`, "{bad"}))
}

func TestRecordCountsPerContext(t *testing.T) {
	var ctx = context.Background()
	var conn, err = sqlite.Open(sqlite.MemoryPath, false, sqlite.Options{})
	require.NoError(t, err)
	defer conn.Close()

	for _, q := range demoSchema {
		_, err = conn.Exec(ctx, q.Text)
		require.NoError(t, err)
	}

	for i, expect := range []int64{1, 2, 3} {
		var n, err = record(ctx, conn, []interface{}{"id-" + string(rune('a'+i)), "ctx-1", i})
		require.NoError(t, err)
		assert.Equal(t, expect, n)
	}
	n, err := record(ctx, conn, []interface{}{"id-z", "ctx-2", 0})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Event IDs are unique.
	_, err = record(ctx, conn, []interface{}{"id-z", "ctx-2", 1})
	assert.EqualError(t, err, "UNIQUE constraint failed: events.id")

	_, err = record(ctx, conn, []interface{}{"id"})
	assert.EqualError(t, err, "expected id, context, and sequence (got 1 args)")

	// Functions are registered with the Codec.
	assert.True(t, newCodec(8).Registered("record"))
}
