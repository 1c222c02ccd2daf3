// Package integrity provides system health checks for the reconciliation service.
//
// Unlike the 'reconciliation' package, which compares entities with remote objects,
// this package validates the infrastructure the service runs on.
//
// # Checks Provided
//
//   - Schema: Compares the database schema with the persistent entities (missing tables and columns).
//   - Storage: Checks that the stream bucket exists and counts its objects.
//   - Connectors: Tests every connector instance (delegates to the connector package).
//
// # HTTP Endpoints
//
//   - GET /integrity : Runs all checks.
//   - GET /integrity/schema : Runs schema check (supports ?fix=true).
//   - GET /integrity/storage : Runs storage check (supports ?fix=true).
//   - GET /integrity/connectors : Runs connector checks.
package integrity
