// Package executor runs scripts against an engine adapter.
//
// A script runs in one session and one transaction. For each statement,
// in declaration order, the executor resolves every parameter name, binds
// the values, steps through the result rows and shapes them into the
// response accumulator. The accumulator is the first lookup source for the
// statements that follow, so a later statement can use a column produced
// by an earlier one.
//
// PARAMETER RESOLUTION:
//
// A name is looked up in the response accumulator first and in the request
// second. The first hit wins. A name found in neither is a
// MISSING_PARAMETER error; it is never bound as NULL. A key present with a
// null value binds SQL NULL.
//
// RESULT SHAPING:
//
//   - no rows: nothing changes
//   - one row: each column is written into the accumulator, overwriting
//   - two or more rows: a report (header from the first row, rows in fetch
//     order) is mounted under the script's child name, or replaces the
//     whole accumulator when the script has none
//
// ATOMICITY:
//
// Statements run against a private copy of the response. The copy is
// written back only after the transaction commits, so a failed execution
// leaves both the database and the caller's response untouched.
package executor
