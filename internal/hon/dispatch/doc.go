// Package dispatch turns a prepared command into the wire payload, sends it
// and applies the outcome.
//
// Outcome handling:
//
//   - result code "0": success; every cached read of the device is dropped
//   - any other code, or an unreadable response: failure, no retry
//   - transport failure: one forced re-authentication, then exactly one
//     more send; when the re-authentication itself fails the second send
//     is skipped
//
// Every attempt is written to an optional Recorder (the SQLite command log).
package dispatch
