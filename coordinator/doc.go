// Package coordinator is the write surface of an execution context. Every
// write of every context, for a given database file, is run by the primary
// against the single writable sqlite.Conn of that file.
//
// A program constructs one Coordinator per context, registering the same
// named functions with its jobs.Codec in every context of the tree:
//
//	var codec = jobs.NewCodec(cfg.JobCacheSize)
//	codec.Register("touch", touchUser)
//
//	var c, err = coordinator.NewFromEnv(cfg, codec) // Primary if there's no parent.
//	var db, _ = c.Open("users.db")
//
//	// Writes are shipped to the primary (or run by it directly).
//	var sum, _ = db.ExecStatement(ctx, "UPDATE users SET visits = visits + 1 WHERE id = ?", 5)
//	_ = db.Call(ctx, "touch", nil, "a@example.com")
//
//	// Reads use a local Conn of the context, and never leave it.
//	var n, _ = db.Scalar(ctx, "SELECT COUNT(*) FROM users")
//
// In-process workers (Coordinator.NewWorker) and child processes
// (Coordinator.StartProcess) join the tree as children of the Coordinator
// which created them.
package coordinator
