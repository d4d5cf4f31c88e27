package pump

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.sql3.dev/core/protocol"
)

// recorder is a Runner which records the order of executed Jobs, and
// whether any two Jobs ever ran concurrently.
type recorder struct {
	running  int32
	overlaps int32

	mu       sync.Mutex
	executed []string
	counts   map[string]int

	enteredCh chan struct{} // Signaled as a "block" Job begins.
	gateCh    chan struct{} // Awaited by "gate" Jobs.
}

func newRecorder() *recorder {
	return &recorder{
		counts:    make(map[string]int),
		enteredCh: make(chan struct{}, 1),
		gateCh:    make(chan struct{}),
	}
}

func (r *recorder) run(ctx context.Context, job protocol.Job) (interface{}, error) {
	if atomic.AddInt32(&r.running, 1) != 1 {
		atomic.AddInt32(&r.overlaps, 1)
	}
	defer atomic.AddInt32(&r.running, -1)

	var args, err = protocol.DecodeArgs(job.Args)
	if err != nil {
		return nil, err
	}

	switch job.Func {
	case "echo":
		var token = fmt.Sprintf("%v/%v", args[0], args[1])

		r.mu.Lock()
		r.executed = append(r.executed, token)
		r.counts[token]++
		r.mu.Unlock()

		return args, nil
	case "fail":
		return nil, errors.New("whoops")
	case "panic":
		panic("boom")
	case "block":
		r.enteredCh <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	case "gate":
		<-r.gateCh
		return "opened", nil
	default:
		return nil, errors.Errorf("unexpected Func %q", job.Func)
	}
}

// sequence returns the executed sequence numbers of |sender|, in order.
func (r *recorder) sequence(sender string) []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []int
	for _, token := range r.executed {
		var i = strings.LastIndexByte(token, '/')
		if token[:i] != sender {
			continue
		}
		var n, err = strconv.Atoi(token[i+1:])
		if err == nil {
			out = append(out, n)
		}
	}
	return out
}

func funcJob(name string, args ...interface{}) protocol.Job {
	var raw, err = protocol.EncodeArgs(args...)
	if err != nil {
		panic(err)
	}
	return protocol.Job{
		Kind:   protocol.JobFunc,
		Target: protocol.Target{File: "/tmp/pump.db"},
		Func:   name,
		Args:   raw,
	}
}

// chain returns a secondary Pump |depth| hops below |root|, and all Pumps
// created along the way.
func chain(root *Pump, depth int) (*Pump, []*Pump) {
	var pumps []*Pump
	var parent = root

	for i := 0; i != depth; i++ {
		var a, b = Pipe()
		parent.AddChild(a)
		parent = New(b, nil)
		pumps = append(pumps, parent)
	}
	return parent, pumps
}
