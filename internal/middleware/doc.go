// Package middleware provides HTTP middleware for the progression API.
//
// # Available Middleware
//
//   - RequestID: assigns or propagates X-Request-ID
//   - Logger: one zap log line per request
//   - Recovery: converts panics into RFC 9457 500 responses
//   - Idempotency: replays POST responses for a repeated Idempotency-Key
//
// Compose them with Chain; the first middleware is the outermost:
//
//	wrapped := middleware.Chain(mux,
//	    middleware.RequestID,
//	    middleware.Logger(logger),
//	    middleware.Recovery(logger),
//	    middleware.Idempotency(store),
//	)
//
// # Context Values
//
//   - GetRequestID(ctx): Returns unique request identifier
package middleware
