//go:build unix

package pump

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const envHelperProcess = "SQL3_PUMP_HELPER_PROCESS"

func TestProcessRelaysToPrimary(t *testing.T) {
	var rec = newRecorder()
	var root = New(nil, rec.run)
	defer root.Close()

	var procs []*Process
	for i := 0; i != 2; i++ {
		var cmd = exec.Command(os.Args[0], "-test.run=^TestHelperProcess$")
		cmd.Env = append(os.Environ(), envHelperProcess+"="+fmt.Sprint(i))
		cmd.Stderr = os.Stderr

		var proc, err = StartProcess(cmd)
		require.NoError(t, err)
		root.AddChild(proc)
		procs = append(procs, proc)
	}
	for _, proc := range procs {
		assert.NoError(t, proc.Wait())
	}

	// Each process, and a worker of each process, sent 20 Jobs in order.
	for _, sender := range []string{"p0", "w0", "p1", "w1"} {
		var seq = rec.sequence(sender)
		assert.Len(t, seq, 20, sender)

		for i, n := range seq {
			assert.Equal(t, i, n)
		}
	}
	assert.Equal(t, int32(0), rec.overlaps)
}

// TestHelperProcess is run as a child process by TestProcessRelaysToPrimary.
func TestHelperProcess(t *testing.T) {
	var id, ok = os.LookupEnv(envHelperProcess)
	if !ok {
		t.Skip("run as a child process")
	}

	var parent, err = ParentFromEnv()
	if err != nil || parent == nil {
		fmt.Fprintln(os.Stderr, "expected a parent channel:", err)
		os.Exit(1)
	}
	_, stillSet := os.LookupEnv(EnvParentFDs)

	var p = New(parent, nil)
	var a, b = Pipe()
	p.AddChild(a)
	var worker = New(b, nil)

	var failed atomic.Bool
	var wg sync.WaitGroup

	for _, tc := range []struct {
		pump   *Pump
		sender string
	}{{p, "p" + id}, {worker, "w" + id}} {
		wg.Add(1)
		go func(pump *Pump, sender string) {
			defer wg.Done()

			for i := 0; i != 20; i++ {
				var out interface{}
				if err := pump.Send(funcJob("echo", sender, i)).Decode(context.Background(), &out); err != nil {
					fmt.Fprintln(os.Stderr, "call failed:", err)
					failed.Store(true)
				}
			}
		}(tc.pump, tc.sender)
	}
	wg.Wait()

	_ = worker.Close()
	_ = p.Close()

	if failed.Load() || stillSet || p.Role() != Secondary {
		os.Exit(1)
	}
	os.Exit(0)
}

func TestParentFDsParsing(t *testing.T) {
	var r, w, err = parseParentFDs("3,4")
	assert.NoError(t, err)
	assert.Equal(t, []int{3, 4}, []int{r, w})

	for _, v := range []string{"3", "3,4,5", "a,4", "3,b", "1,2", "3,3"} {
		_, _, err = parseParentFDs(v)
		assert.Error(t, err, v)
	}
	assert.Equal(t, "SQL3_PARENT_FDS=5,6", formatParentFDs(5, 6))
}

func TestParentFromEnvWithoutParent(t *testing.T) {
	var prior, had = os.LookupEnv(EnvParentFDs)
	_ = os.Unsetenv(EnvParentFDs)
	defer func() {
		if had {
			_ = os.Setenv(EnvParentFDs, prior)
		}
	}()

	var ch, err = ParentFromEnv()
	assert.NoError(t, err)
	assert.Nil(t, ch)
}
