// Package middleware groups the HTTP middleware of the Fiber application.
//
// # Components
//
//   - rayid: tags every request with a ray id, injected into the locals and the
//     response headers for tracing.
//   - auth: validates the API key and binds the caller to the request context
//     (see core/reqctx).
//   - metrics: records request counts and durations and serves the prometheus registry.
//
// They are registered globally in the serve command, ray id first.
package middleware
