// Package engine defines the contract between the script executor and a
// database engine.
//
// An Adapter opens Sessions. A Session prepares statements into Handles
// and runs them inside a transaction. Handles bind positional parameters,
// step through result rows and are always finalized.
//
// ARCHITECTURE:
//
// Two adapters implement the contract:
//   - embedded: an SQLite file driven at the driver level, serialized by a
//     process-wide lock (package engine/embedded)
//   - generic: a database/sql client selected by connection string scheme,
//     covering sqlite3, postgres and duckdb (package engine/generic)
//
// Values cross the boundary through Encode and Decode, so both adapters
// bind and fetch the same value types the same way.
//
// TRANSACTIONS:
//
// Begin wraps a Session transaction in a Guard. Guard.Close rolls back
// unless Commit succeeded, so the usual shape is:
//
//	guard, err := engine.Begin(ctx, sess)
//	if err != nil {
//		return err
//	}
//	defer guard.Close() // No-op if committed
package engine
