package pump

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.sql3.dev/core/metrics"
	"go.sql3.dev/core/protocol"
)

// Runner runs a Job at the primary, returning a JSON-encodable value.
type Runner func(ctx context.Context, job protocol.Job) (interface{}, error)

// executor is the upstream Channel of the primary. Requests sent to it are
// run by a single goroutine, one at a time and in the order they were sent,
// and their responses are returned by Recv.
type executor struct {
	runner Runner
	in     *queue
	out    *queue

	ctx      context.Context
	cancelFn context.CancelFunc
	doneCh   chan struct{}
}

func newExecutor(runner Runner) *executor {
	var ctx, cancel = context.WithCancel(context.Background())
	var e = &executor{
		runner:   runner,
		in:       newQueue(),
		out:      newQueue(),
		ctx:      ctx,
		cancelFn: cancel,
		doneCh:   make(chan struct{}),
	}
	go e.serve()
	return e
}

func (e *executor) Send(env protocol.Envelope) error {
	if env.Kind != protocol.Request {
		return errors.Errorf("executor expects a Request (got %s)", env.Kind)
	} else if !e.in.push(env) {
		return io.ErrClosedPipe
	}
	return nil
}

func (e *executor) Recv() (protocol.Envelope, error) {
	if env, ok := e.out.pop(); ok {
		return env, nil
	}
	return protocol.Envelope{}, io.EOF
}

// Close stops the executor. Queued requests are discarded, and a running
// Job has its Context cancelled. Close blocks until the running Job returns.
func (e *executor) Close() error {
	e.in.close()
	e.cancelFn()
	<-e.doneCh
	e.out.close()
	return nil
}

func (e *executor) serve() {
	defer close(e.doneCh)

	for {
		var env, ok = e.in.pop()
		if !ok {
			return
		}
		var result = e.run(*env.Job)
		e.out.push(protocol.Envelope{ID: env.ID, Kind: protocol.Response, Result: &result})
	}
}

// run |job|, recovering a panic into a failed Result.
func (e *executor) run(job protocol.Job) (result protocol.Result) {
	var started = time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{
				"kind":  job.Kind,
				"func":  job.Func,
				"file":  job.Target.File,
				"panic": r,
			}).Error("job panicked")

			result = protocol.FailedResult(errors.Errorf("job panicked: %v", r))
		}

		var status = metrics.Ok
		if !result.OK {
			status = metrics.Fail
		}
		metrics.JobsExecutedTotal.WithLabelValues(string(job.Kind), status).Inc()
		metrics.JobDurationSeconds.WithLabelValues(string(job.Kind)).Observe(time.Since(started).Seconds())
	}()

	var value, err = e.runner(e.ctx, job)
	if err != nil {
		return protocol.FailedResult(err)
	}
	return protocol.NewResult(value)
}

// queue is an unbounded FIFO of Envelopes. Pushes never block.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []protocol.Envelope
	closed bool
}

func newQueue() *queue {
	var q = new(queue)
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push |env|, returning false if the queue is closed.
func (q *queue) push(env protocol.Envelope) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, env)
	q.cond.Signal()
	return true
}

// pop blocks for the next Envelope, returning false once the queue is closed.
func (q *queue) pop() (protocol.Envelope, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return protocol.Envelope{}, false
	}
	var env = q.items[0]
	q.items[0] = protocol.Envelope{}
	q.items = q.items[1:]
	return env, true
}

// close the queue, discarding queued Envelopes.
func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.items = nil
	q.cond.Broadcast()
}
