package jobs

import (
	"github.com/pkg/errors"
	"go.sql3.dev/core/protocol"
)

// Exec returns a Job which runs |query| and returns its sqlite.ChangeSummary.
func Exec(file, query string, args ...interface{}) (protocol.Job, error) {
	return statementJob(protocol.JobExec, file, query, args)
}

// Scalar returns a Job which runs |query| and returns the first column of its
// first row, or nil if there are no rows.
func Scalar(file, query string, args ...interface{}) (protocol.Job, error) {
	return statementJob(protocol.JobScalar, file, query, args)
}

// Row returns a Job which runs |query| and returns its first row as a
// sqlite.Row, or nil if there are no rows.
func Row(file, query string, args ...interface{}) (protocol.Job, error) {
	return statementJob(protocol.JobRow, file, query, args)
}

// Transaction returns a Job which runs each of |queries| in order within a
// single transaction. The first failing statement rolls back the transaction.
func Transaction(file string, queries []protocol.Query) (protocol.Job, error) {
	var job = protocol.Job{
		Kind:   protocol.JobTx,
		Target: protocol.Target{File: file, Tx: true},
	}
	for i, q := range queries {
		var args, err = protocol.EncodeArgs(q.Args...)
		if err != nil {
			return protocol.Job{}, errors.WithMessagef(err, "queries[%d]", i)
		}
		job.Statements = append(job.Statements, protocol.Statement{Query: q.Text, Args: args})
	}
	return job, job.Validate()
}

// Func returns a Job which runs the registered function |name| with |args|,
// within a transaction if |tx|. It fails if |name| is not registered.
func (c *Codec) Func(file string, tx bool, name string, args ...interface{}) (protocol.Job, error) {
	if !c.Registered(name) {
		return protocol.Job{}, errors.Errorf("function %q is not registered", name)
	}
	var raw, err = protocol.EncodeArgs(args...)
	if err != nil {
		return protocol.Job{}, err
	}
	var job = protocol.Job{
		Kind:   protocol.JobFunc,
		Target: protocol.Target{File: file, Tx: tx},
		Func:   name,
		Args:   raw,
	}
	return job, job.Validate()
}

func statementJob(kind protocol.JobKind, file, query string, args []interface{}) (protocol.Job, error) {
	var raw, err = protocol.EncodeArgs(args...)
	if err != nil {
		return protocol.Job{}, err
	}
	var job = protocol.Job{
		Kind:       kind,
		Target:     protocol.Target{File: file},
		Statements: []protocol.Statement{{Query: query, Args: raw}},
	}
	return job, job.Validate()
}
