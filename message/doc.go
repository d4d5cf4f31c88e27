// Package message frames JSON-encodable messages onto byte streams, one
// message per newline-terminated line. It's used to carry protocol.Envelopes
// over process pipes and in-memory pipes between execution contexts.
package message
