// Package jobs encodes database work as protocol.Jobs, and reconstructs
// runners of Jobs at the primary.
//
// A Job is a structured description of work: one of a closed set of kinds
// (a single statement, a transaction of statements, or a function registered
// by name). Every execution context of a tree runs the same binary, and
// registers the same named functions with its Codec before serving:
//
//	var codec = jobs.NewCodec(1024)
//	codec.Register("transfer", func(ctx context.Context, q sqlite.Querier, args []interface{}) (interface{}, error) {
//		if _, err := q.Exec(ctx, "UPDATE accounts SET balance = balance - ? WHERE id = ?", args[2], args[0]); err != nil {
//			return nil, err
//		}
//		return q.Exec(ctx, "UPDATE accounts SET balance = balance + ? WHERE id = ?", args[2], args[1])
//	})
//
// A non-primary context encodes a Job with Codec.Func (or Exec, Scalar, Row
// and Transaction) and ships it towards the primary. The primary decodes the
// Job into a Runner, which is memoized by the Job's shape Signature so that
// repeated Jobs of one shape are reconstructed only once.
package jobs
