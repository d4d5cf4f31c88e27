// Package protocol defines the messages exchanged between execution contexts
// of a sql3 tree: Envelopes which correlate requests and responses across a
// single hop, Jobs which describe write work to be run by the primary, and
// Results which carry a Job's value or a flattened description of its error.
//
// Everything in this package crosses process boundaries as JSON. Arguments of
// Jobs are encoded by the sender, so that every context (including the
// primary itself) observes identical argument values after decoding:
//
//	var args, _ = protocol.EncodeArgs("alice@example.com", 42)
//	var job = protocol.Job{
//	    Kind:       protocol.JobExec,
//	    Target:     protocol.Target{File: "/var/lib/app.db"},
//	    Statements: []protocol.Statement{{Query: "INSERT INTO users (email, age) VALUES (?, ?)", Args: args}},
//	}
//
// Errors do not survive the trip with their types intact. A failed Job is
// reported as an ErrorDescriptor, which callers observe as a *RemoteError.
package protocol
