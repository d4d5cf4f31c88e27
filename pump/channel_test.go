package pump

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.sql3.dev/core/protocol"
)

func TestPipeRoundTrip(t *testing.T) {
	var a, b = Pipe()

	var job = funcJob("echo", "a", 1, 1.5, []interface{}{"x", nil}, map[string]interface{}{"k": 9007199254740993})
	var sent = []protocol.Envelope{
		{ID: 1, Kind: protocol.Request, Job: &job},
		{ID: 2, Kind: protocol.Response, Result: &protocol.Result{OK: true, Value: json.RawMessage(`{"changes":1}`)}},
		{ID: 3, Kind: protocol.Response, Result: &protocol.Result{Error: &protocol.ErrorDescriptor{Message: "whoops"}}},
	}
	go func() {
		for _, env := range sent {
			assert.NoError(t, a.Send(env))
		}
		assert.NoError(t, a.Close())
	}()

	for _, expect := range sent {
		var env, err = b.Recv()
		require.NoError(t, err)
		assert.Equal(t, expect, env)
	}
	// Integral arguments beyond float64 precision survive transit.
	var args, err = protocol.DecodeArgs(job.Args)
	require.NoError(t, err)
	assert.Equal(t, int64(9007199254740993), args[4].(map[string]interface{})["k"])

	_, err = b.Recv()
	assert.Equal(t, io.EOF, err)
	assert.NoError(t, b.Close())
}
