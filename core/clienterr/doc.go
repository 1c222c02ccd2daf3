// Package clienterr defines the error taxonomy surfaced to API and CLI callers.
//
// Every failure that leaves a service is either a *Error carrying a Type and a list
// of human readable elements, or an unexpected error that maps to an internal failure.
//
// # Composite errors
//
// Bulk operations accumulate failures with a Collector and surface a single
// Reconciliation error. A Collector never yields an empty composite: Err returns nil
// when nothing was collected.
//
// # HTTP mapping
//
// Status maps a Type onto the HTTP status the fiber error handler responds with.
package clienterr
