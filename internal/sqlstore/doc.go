// Package sqlstore provides a SQLite-backed store for the progression
// engine.
//
// A single Store implements every storage interface used by the service and
// jobs packages: progression state, raw activities, the change log, badge
// unlocks, correlation insights, the run ledger, dimension snapshots, daily
// analytics and daily metrics. It backs the progressctl CLI and tests; the
// server can use it instead of SurrealDB.
//
// State documents are stored as JSON with a BLAKE2b-256 checksum; a document
// that fails verification is reported as model.ErrDataIntegrity. Times are
// stored in UTC.
//
//	store, err := sqlstore.Open("data/progression.db", logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
package sqlstore
