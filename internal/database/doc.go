// Package database provides SurrealDB connectivity for the progression
// engine's document store.
//
// The Database interface abstracts the driver so repositories can be
// exercised against a recording fake or a real server:
//
//	db := database.NewSurrealDB(database.Config{
//	    Host:      "localhost",
//	    Port:      "8000",
//	    User:      "root",
//	    Password:  "root",
//	    Namespace: "progression",
//	    Database:  "main",
//	})
//	if err := db.Connect(ctx); err != nil { ... }
//	defer db.Close()
//
// Query returns one {status, result} entry per statement. QueryOne
// unwraps the first record of the first statement and returns ErrNotFound
// when there is none. Execute discards results.
//
// Writes that must land together go through AtomicBatch, which wraps the
// statements in a single BEGIN/COMMIT TRANSACTION block.
//
// # Error Types
//
//   - ErrNotFound: Record does not exist
//   - ErrDuplicate: Unique index violation
//   - ErrConnection: Database connection failed
//   - ErrQuery: Statement failed on the server
package database
