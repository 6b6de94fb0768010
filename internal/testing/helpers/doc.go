// Package helpers provides test utility functions for the progression API.
//
// # Request Helpers
//
// Build and serve requests against a handler:
//
//	rec := helpers.NewRequest(t, http.MethodPost, "/v1/users/u1/xp").
//	    WithBody(map[string]interface{}{"dimension": "knowledge", "amount": 50}).
//	    Do(router)
//
// # Assertion Helpers
//
// Common response assertions:
//
//	helpers.AssertStatus(t, rec, http.StatusOK)
//	helpers.AssertProblemDetails(t, rec, http.StatusNotFound, model.ErrCodeNotFound)
//	helpers.AssertValidationError(t, rec, "dimension")
//
// Record checks against a SurrealDB test database:
//
//	helpers.AssertRecordExists(t, tdb.DB, "progression_state", "u1")
//
// # Time Helpers
//
//	now := helpers.FixedClock(time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC))
package helpers
