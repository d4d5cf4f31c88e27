package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.sql3.dev/core/coordinator"
	mbp "go.sql3.dev/core/mainboilerplate"
	"go.sql3.dev/core/protocol"
	"go.sql3.dev/core/pump"
	"go.sql3.dev/core/sqlite"
	"go.sql3.dev/core/task"
)

type cmdDemo struct {
	DB        string `long:"db" default:"sql3-demo.db" description:"Database file into which rows are recorded"`
	Processes int    `long:"processes" default:"2" description:"Number of child processes started by the primary"`
	Workers   int    `long:"workers" default:"2" description:"Number of in-process workers of each process"`
	Rows      int    `long:"rows" default:"100" description:"Number of rows recorded by each execution context"`
}

var demoSchema = []protocol.Query{
	{Text: `CREATE TABLE IF NOT EXISTS events (
		id          TEXT PRIMARY KEY,
		context     TEXT NOT NULL,
		seq         INTEGER NOT NULL,
		recorded_at INTEGER NOT NULL
	)`},
	{Text: `CREATE TABLE IF NOT EXISTS contexts (
		id TEXT PRIMARY KEY,
		n  INTEGER NOT NULL
	)`},
}

func (cmd *cmdDemo) Execute([]string) error {
	defer mbp.InitDiagnosticsAndRecover(Config.Diagnostics)()
	var c, closeFn = startup()
	defer closeFn()

	var ctx = context.Background()
	var started = time.Now()
	var tasks = task.NewGroup(ctx)

	if c.Role() == pump.Primary {
		mbp.Must(c.ExecTransaction(ctx, cmd.DB, demoSchema), "failed to create schema")

		for i := 0; i != cmd.Processes; i++ {
			var proc, err = c.StartProcess(cmd.childCommand(fmt.Sprintf("%s/p%d", c.ID(), i)))
			mbp.Must(err, "failed to start child process")
			tasks.Queue(fmt.Sprintf("process %d", proc.Cmd.Process.Pid), proc.Wait)
		}
	}

	var contexts = []*coordinator.Coordinator{c}
	for i := 0; i != cmd.Workers; i++ {
		var w, err = c.NewWorker()
		mbp.Must(err, "failed to start worker")
		contexts = append(contexts, w)
	}
	for _, cc := range contexts {
		var cc = cc // Per-iteration capture under the go 1.21 directive.
		tasks.Queue("record "+cc.ID(), func() error {
			return cmd.record(tasks.Context(), cc)
		})
	}
	tasks.GoRun()
	mbp.Must(tasks.Wait(), "demo failed")

	if c.Role() == pump.Primary {
		mbp.Must(cmd.summarize(ctx, c, time.Since(started)), "failed to summarize")
	}
	return nil
}

// childCommand returns a Cmd which runs this program as a child context.
func (cmd *cmdDemo) childCommand(id string) *exec.Cmd {
	var path, err = os.Executable()
	mbp.Must(err, "failed to locate executable")

	var args = append([]string(nil), os.Args[1:]...)
	// Children don't serve diagnostics, and are named by their parent.
	args = append(args, "--context.id="+id, "--debug.address=")

	var out = exec.Command(path, args...)
	out.Stdout, out.Stderr = os.Stderr, os.Stderr
	return out
}

// record Rows from execution context |c|.
func (cmd *cmdDemo) record(ctx context.Context, c *coordinator.Coordinator) error {
	var db, err = c.Open(cmd.DB)
	if err != nil {
		return err
	}
	for i := 0; i != cmd.Rows; i++ {
		if err = ctx.Err(); err != nil {
			return err
		} else if err = db.CallTx(ctx, "record", nil, uuid.New().String(), c.ID(), i); err != nil {
			return errors.WithMessagef(err, "recording row %d", i)
		}
	}

	// Reads are served locally, and observe the context's own writes.
	n, err := db.Scalar(ctx, "SELECT n FROM contexts WHERE id = ?", c.ID())
	if err != nil {
		return errors.WithMessage(err, "reading count")
	}
	log.WithFields(log.Fields{"context": c.ID(), "rows": n}).Info("finished recording")
	return nil
}

func (cmd *cmdDemo) summarize(ctx context.Context, c *coordinator.Coordinator, elapsed time.Duration) error {
	var db, err = c.Open(cmd.DB)
	if err != nil {
		return err
	}
	rows, err := db.All(ctx, `SELECT context, COUNT(*) AS n FROM events
		WHERE recorded_at >= ? GROUP BY context ORDER BY context`,
		time.Now().Add(-elapsed).UnixNano())
	if err != nil {
		return err
	}

	var table = tablewriter.NewWriter(os.Stdout)
	table.Header("Context", "Rows", "Rate")

	var total int64
	for _, row := range rows {
		var n, _ = row["n"].(int64)
		total += n

		if err = table.Append([]string{
			fmt.Sprint(row["context"]),
			humanize.Comma(n),
			rate(n, elapsed),
		}); err != nil {
			return err
		}
	}
	if err = table.Append([]string{"TOTAL", humanize.Comma(total), rate(total, elapsed)}); err != nil {
		return err
	}
	if err = table.Render(); err != nil {
		return err
	}

	var size uint64
	if fi, err := os.Stat(db.Path()); err == nil {
		size = uint64(fi.Size())
	}
	fmt.Printf("Recorded %s rows in %s. %s is %s.\n",
		humanize.Comma(total), elapsed.Round(time.Millisecond), db.Path(), humanize.Bytes(size))

	return nil
}

func rate(n int64, elapsed time.Duration) string {
	if elapsed <= 0 {
		return "-"
	}
	return humanize.SIWithDigits(float64(n)/elapsed.Seconds(), 1, "rows/s")
}

// record is a registered function which records an event, having arguments
// id, context, and sequence number, and returns the context's updated count.
func record(ctx context.Context, q sqlite.Querier, args []interface{}) (interface{}, error) {
	if len(args) != 3 {
		return nil, errors.Errorf("expected id, context, and sequence (got %d args)", len(args))
	}
	if _, err := q.Exec(ctx,
		"INSERT INTO events (id, context, seq, recorded_at) VALUES (?, ?, ?, ?)",
		args[0], args[1], args[2], time.Now().UnixNano(),
	); err != nil {
		return nil, err
	}
	return q.Scalar(ctx, `INSERT INTO contexts (id, n) VALUES (?, 1)
		ON CONFLICT (id) DO UPDATE SET n = n + 1 RETURNING n`, args[1])
}
