// Package storage persists small keyed JSON documents.
//
// A Repository holds one map of key -> JSON value. Writes go through a single
// writer (Update), readers get the last committed snapshot. Drivers:
//   - "file": one indented JSON object, replaced atomically via temp file + rename
//   - "sqlite": a kv table in a SQLite database (modernc.org/sqlite, no cgo)
package storage
