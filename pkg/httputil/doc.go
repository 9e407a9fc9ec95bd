// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Errors
//
// Handlers return classified errors from pkg/apperr and write them with
// WriteAppError, which picks the status from the error kind:
//
//	unauthenticated 401, forbidden 403, not_found 404, validation 400,
//	invalid_state 409, conflict 409, anything else 500
//
// The body is {"error": "<kind>", "message": "..."}; internal causes are not echoed.
//
// # Request Parsing
//
//	var req CreateInvoiceRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)
package httputil
