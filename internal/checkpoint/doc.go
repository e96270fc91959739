// Package checkpoint persists the names of jobs that already finished so an
// interrupted run can resume without re-executing them.
//
// Drivers:
//   - "file": a JSON array of names, replaced atomically (tmp + rename)
//   - "sqlite": a single table in a SQLite database file
//   - "none": nothing is persisted
//
// A missing or empty checkpoint means "nothing to skip".
package checkpoint
