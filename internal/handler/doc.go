// Package handler provides HTTP request handlers for the progression API.
//
// Handlers are grouped by feature area (progression, badges, queries, the
// daily scheduler, correlations, change streaming). Each handler struct holds
// the services it needs and exposes one method per endpoint. NewRouter
// registers every route on a net/http ServeMux using method patterns.
//
// # Response Format
//
// Handlers use standardized response functions:
//
//   - WriteData: Single resource with optional HATEOAS links
//   - WriteCollection: List of resources
//   - WriteJSON: Raw JSON response
//   - WriteError: RFC 9457 Problem Details error response
//
// Service errors are translated by MapServiceError, which tests the model
// and service sentinels with errors.Is.
//
// # Example Usage
//
//	mux := handler.NewRouter(handler.RouterConfig{
//	    Progression: a.Progression,
//	    Badges:      a.Badges,
//	    Scheduler:   a.Scheduler,
//	    Hub:         a.Hub,
//	})
package handler
