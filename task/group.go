// Package task runs a group of long-lived, cancellable service loops.
package task

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Group is a group of tasks, such as a pump's receive loops or a diagnostics
// server, which run concurrently until all complete. The first task to
// return a non-nil error cancels the Group's Context, which every task should
// monitor. Group is not itself thread-safe.
type Group struct {
	ctx      context.Context
	cancelFn context.CancelFunc

	tasks   []task
	eg      *errgroup.Group
	started bool
}

type task struct {
	desc string
	fn   func() error
}

// NewGroup returns an empty Group deriving from |ctx|.
func NewGroup(ctx context.Context) *Group {
	ctx, cancel := context.WithCancel(ctx)
	eg, ctx := errgroup.WithContext(ctx)
	return &Group{ctx: ctx, eg: eg, cancelFn: cancel}
}

// Context of the Group. It's cancelled by the first failed task, by Cancel,
// or by cancellation of the parent Context.
func (g *Group) Context() context.Context { return g.ctx }

// Cancel the Group Context.
func (g *Group) Cancel() { g.cancelFn() }

// Queue |fn| for execution, described by |desc|. Queue panics if GoRun has
// already been called.
func (g *Group) Queue(desc string, fn func() error) {
	if g.started {
		panic("Queue called after GoRun")
	}
	g.tasks = append(g.tasks, task{desc: desc, fn: fn})
}

// GoRun all queued tasks. GoRun panics if called more than once.
func (g *Group) GoRun() {
	if g.started {
		panic("GoRun already called")
	}
	g.started = true

	for i := range g.tasks {
		var t = g.tasks[i]
		g.eg.Go(func() error {
			var err = t.fn()
			if err != nil && errors.Cause(err) != context.Canceled {
				log.WithFields(log.Fields{"task": t.desc, "err": err}).Warn("task failed")
			} else {
				log.WithField("task", t.desc).Debug("task completed")
			}
			return errors.WithMessage(err, t.desc)
		})
	}
}

// Wait for all tasks to complete, returning the first non-nil error.
// Wait panics if GoRun hasn't been called.
func (g *Group) Wait() error {
	if !g.started {
		panic("Wait called before GoRun")
	}
	return g.eg.Wait()
}
