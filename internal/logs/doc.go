// Package logs reads the daemon log for `hipot logs`.
//
// The daemon writes one file per start and repoints hipot.log at it, so
// Follow resolves the pointer on every poll and moves to the new file when the
// daemon restarts. Reads are line oriented with bounded memory.
package logs
