package protocol

import (
	"encoding/json"
	"strings"
)

// JobKind enumerates the closed set of Job shapes a primary knows how to run.
type JobKind string

const (
	// JobExec runs one statement and returns its ChangeSummary.
	JobExec JobKind = "exec"
	// JobScalar runs one statement and returns the first column of its first row.
	JobScalar JobKind = "scalar"
	// JobRow runs one statement and returns its first row.
	JobRow JobKind = "row"
	// JobTx runs one or more statements, in order, within a single transaction.
	JobTx JobKind = "tx"
	// JobFunc runs a function registered by name with every context of the tree.
	JobFunc JobKind = "func"
)

// Validate returns an error if the JobKind is not known.
func (k JobKind) Validate() error {
	switch k {
	case JobExec, JobScalar, JobRow, JobTx, JobFunc:
		return nil
	default:
		return NewValidationError("unknown JobKind (%q)", string(k))
	}
}

// Target describes the database a Job operates on.
type Target struct {
	// File is the database path. Senders make it absolute before shipping.
	File string `json:"file"`
	// Tx is true if the Job must run inside a transaction.
	Tx bool `json:"tx,omitempty"`
}

// Statement is a query text and its JSON-encoded positional arguments.
type Statement struct {
	Query string          `json:"query"`
	Args  json.RawMessage `json:"args,omitempty"`
}

// Query is a parameterized statement as produced by a query builder: the
// statement text and its positional arguments.
type Query struct {
	Text string
	Args []interface{}
}

// Job is a structured description of work to run at the primary.
type Job struct {
	Kind       JobKind         `json:"kind"`
	Target     Target          `json:"target"`
	Statements []Statement     `json:"statements,omitempty"`
	Func       string          `json:"func,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
}

// Validate returns an error if the Job is not well-formed for its Kind.
func (m *Job) Validate() error {
	if err := m.Kind.Validate(); err != nil {
		return ExtendContext(err, "Kind")
	} else if m.Target.File == "" {
		return ExtendContext(NewValidationError("expected File"), "Target")
	}

	switch m.Kind {
	case JobExec, JobScalar, JobRow:
		if l := len(m.Statements); l != 1 {
			return NewValidationError("expected exactly one Statement (got %d)", l)
		} else if m.Func != "" {
			return NewValidationError("unexpected Func of %s Job", m.Kind)
		}
	case JobTx:
		if len(m.Statements) == 0 {
			return NewValidationError("expected at least one Statement")
		} else if !m.Target.Tx {
			return ExtendContext(NewValidationError("expected Tx"), "Target")
		} else if m.Func != "" {
			return NewValidationError("unexpected Func of %s Job", m.Kind)
		}
	case JobFunc:
		if m.Func == "" {
			return NewValidationError("expected Func")
		} else if len(m.Statements) != 0 {
			return NewValidationError("unexpected Statements of %s Job", m.Kind)
		}
	}

	for i, s := range m.Statements {
		if strings.TrimSpace(s.Query) == "" {
			return ExtendContext(NewValidationError("expected Query"), "Statements[%d]", i)
		}
	}
	return nil
}

// Signature identifies the shape of a Job independent of its arguments and
// target: two Jobs having equal Signatures are run by the same reconstructed
// runner.
func (m *Job) Signature() string {
	var parts = []string{string(m.Kind)}

	if m.Kind == JobFunc {
		parts = append(parts, m.Func)
	}
	for _, s := range m.Statements {
		parts = append(parts, s.Query)
	}
	return strings.Join(parts, "\x1f")
}
