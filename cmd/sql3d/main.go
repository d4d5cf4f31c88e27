package main

import (
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.sql3.dev/core/coordinator"
	"go.sql3.dev/core/jobs"
	mbp "go.sql3.dev/core/mainboilerplate"
	"go.sql3.dev/core/metrics"
)

const iniFilename = "sql3.ini"

// Config is the top-level configuration object of sql3d.
var Config = new(struct {
	Context     coordinator.Config    `group:"Context" namespace:"context" env-namespace:"CONTEXT"`
	Log         mbp.LogConfig         `group:"Logging" namespace:"log" env-namespace:"LOG"`
	Diagnostics mbp.DiagnosticsConfig `group:"Debug" namespace:"debug" env-namespace:"DEBUG"`
})

// startup initializes logging and metrics, and returns a Coordinator of
// this process's execution context and a closure which should be deferred.
func startup() (*coordinator.Coordinator, func()) {
	mbp.InitLog(Config.Log)
	prometheus.MustRegister(metrics.Collectors()...)

	var c, err = coordinator.NewFromEnv(Config.Context, newCodec(Config.Context.JobCacheSize))
	mbp.Must(err, "failed to start execution context")

	log.WithFields(log.Fields{
		"context": c.ID(),
		"role":    c.Role(),
	}).Info("started")

	return c, func() { mbp.Must(c.Close(), "failed to close execution context") }
}

// newCodec returns a Codec having the functions of sql3d registered.
// Every process of a tree must register the same functions.
func newCodec(size int) *jobs.Codec {
	var codec = jobs.NewCodec(size)
	codec.Register("record", record)
	return codec
}

func main() {
	var parser = flags.NewParser(Config, flags.Default)
	var reg = mbp.NewCommandRegistry()

	reg.AddCommand("", "demo", "Record rows from a tree of execution contexts", `
demo starts a primary execution context, which starts child processes of
itself as secondary contexts. Every process runs in-process workers, and
every context records rows into a shared database file. Writes of all
contexts are shipped to and run by the primary. When all contexts have
finished, the primary prints a summary of recorded rows.
`, &cmdDemo{})

	reg.AddCommand("", "exec", "Run a single statement", `
exec runs a single statement against a database file, and writes its result
to stdout as JSON. Arguments which parse as JSON are bound as their decoded
value, and are otherwise bound as strings.
`, &cmdExec{})

	mbp.Must(reg.AddCommands("", parser.Command, false), "failed to add commands")
	mbp.AddPrintConfigCmd(parser, iniFilename)
	mbp.MustParseConfig(parser, iniFilename)
}
