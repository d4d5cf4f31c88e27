package main

import (
	"context"
	"encoding/json"
	"os"

	mbp "go.sql3.dev/core/mainboilerplate"
	"go.sql3.dev/core/protocol"
)

type cmdExec struct {
	DB   string `long:"db" required:"true" description:"Database file against which the statement runs"`
	Mode string `long:"mode" default:"exec" choice:"exec" choice:"scalar" choice:"row" description:"Whether to return a change summary, a scalar, or a row"`

	Positional struct {
		Query string   `positional-arg-name:"query" required:"yes"`
		Args  []string `positional-arg-name:"args"`
	} `positional-args:"yes"`
}

func (cmd *cmdExec) Execute([]string) error {
	defer mbp.InitDiagnosticsAndRecover(Config.Diagnostics)()
	var c, closeFn = startup()
	defer closeFn()

	var ctx = context.Background()
	var args = parseArgs(cmd.Positional.Args)
	var out interface{}
	var err error

	switch cmd.Mode {
	case "exec":
		out, err = c.ExecStatement(ctx, cmd.DB, cmd.Positional.Query, args...)
	case "scalar":
		out, err = c.ExecScalar(ctx, cmd.DB, cmd.Positional.Query, args...)
	case "row":
		out, err = c.ExecRow(ctx, cmd.DB, cmd.Positional.Query, args...)
	}
	mbp.Must(err, "failed to run statement", "query", cmd.Positional.Query)

	var enc = json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// parseArgs binds each argument as its decoded JSON value if it parses as
// JSON, or as a string otherwise.
func parseArgs(in []string) []interface{} {
	var out = make([]interface{}, len(in))
	for i, arg := range in {
		var v interface{}
		if err := protocol.DecodeValue(json.RawMessage(arg), &v); err == nil {
			out[i] = protocol.NormalizeValue(v)
		} else {
			out[i] = arg
		}
	}
	return out
}
