// Package sqlite wraps a SQLite database file opened through
// github.com/mattn/go-sqlite3 with the conveniences sql3 relies upon:
//
//   - Pragmas applied to every pooled connection through the DSN.
//   - A prepared statement cache, memoized by exact query text.
//   - A background maintenance loop running PRAGMA optimize on writable
//     handles.
//   - Exec, Scalar, Row and All shorthands, available both on a Conn and on
//     a Tx through the Querier interface.
//
// A Conn is either writable or read-only. Within a sql3 tree only the primary
// opens writable Conns; every other context opens read-only Conns for local
// reads. The exception is ":memory:", which is private to the context opening
// it and always writable.
package sqlite
