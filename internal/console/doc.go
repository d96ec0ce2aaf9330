// Package console implements the operator terminal: a bubbletea program that
// polls the daemon over IPC and renders the cavity grid, batch progress, and
// the fault report, and sends the three operator commands.
//
// Keys: s starts a batch, r resets the station, E triggers the emergency stop,
// and q leaves the console without touching the station.
package console
