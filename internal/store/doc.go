// Package store is the persistence collaborator for the argon core. It
// provides SQLite-backed document storage for principals, messages, agents,
// blobs, access tokens, and log entries. Principal-id filter values are
// normalized so native and string-serialized forms select the same rows, a
// property the message service's find semantics depend on.
package store
