// Package history persists finished batches in a SQLite database under the
// state directory.
//
// Each run stores one row plus one row per cavity, including the raw
// instrument records, so reports and cycle-time statistics can be rebuilt
// without the daemon. The daemon owns the writable handle from Open; the CLI
// reads through OpenReadOnly while batches keep being recorded. The schema is
// versioned and a database written by a different version is refused rather
// than migrated.
package history
