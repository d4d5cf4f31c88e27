package sqlite

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatementCacheMemoizesByQueryText(t *testing.T) {
	var c, err = Open(MemoryPath, false, Options{StatementCacheSize: 2})
	require.NoError(t, err)
	defer c.Close()

	var ctx = context.Background()
	s1, release1, err := c.Prepare(ctx, "SELECT 1")
	require.NoError(t, err)
	s2, release2, err := c.Prepare(ctx, "SELECT 1")
	require.NoError(t, err)
	assert.True(t, s1 == s2)
	assert.Equal(t, 1, c.stmts.len())

	// Fill the cache, evicting "SELECT 1" while it's still in use.
	for _, q := range []string{"SELECT 2", "SELECT 3"} {
		_, err = c.Scalar(ctx, q)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.stmts.len())

	// The evicted statement remains usable until released.
	var v interface{}
	require.NoError(t, s1.QueryRowContext(ctx).Scan(&v))
	assert.Equal(t, int64(1), v)

	release1()
	require.NoError(t, s2.QueryRowContext(ctx).Scan(&v))
	release2() // Last release closes it.

	assert.Error(t, s2.QueryRowContext(ctx).Scan(&v))

	// A subsequent Prepare of the same text returns a new statement.
	s3, release3, err := c.Prepare(ctx, "SELECT 1")
	require.NoError(t, err)
	assert.False(t, s1 == s3)
	release3()
}

func TestStatementCacheConcurrentUse(t *testing.T) {
	var c, err = Open(MemoryPath, false, Options{StatementCacheSize: 3})
	require.NoError(t, err)
	defer c.Close()

	var ctx = context.Background()
	var wg sync.WaitGroup

	for i := 0; i != 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j != 50; j++ {
				var v, err = c.Scalar(ctx, []string{"SELECT 1", "SELECT 2", "SELECT 3", "SELECT 4"}[(i+j)%4])
				assert.NoError(t, err)
				assert.NotNil(t, v)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 3, c.stmts.len())
}
