// Package testdb provides SurrealDB test environments for repository tests.
//
// Tests run real queries against a real server configured through
// TEST_DB_HOST, TEST_DB_PORT, TEST_DB_USER and TEST_DB_PASSWORD. When
// TEST_DB_HOST is unset, New skips the calling test.
//
//	func TestSomething(t *testing.T) {
//	    tdb := testdb.New(t)
//	    defer tdb.Close()
//
//	    repo := repository.NewStateRepository(tdb.DB, nil)
//	}
//
// Every TestDB gets its own namespace, so tests can run in parallel. The
// migrations under migrations/ are applied on setup; PROGRESSION_ROOT
// points at the repository root when the tests run from elsewhere.
package testdb
