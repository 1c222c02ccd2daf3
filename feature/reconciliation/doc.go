// Package reconciliation compares entities with the objects of their resources and
// runs push and pull on demand.
//
// Single push and pull resolve their target with a ReconQuery. Full reconciliation of a
// provision goes through the reconcile plan engine with a ProvisionAdapter: orphan
// objects can be pulled or purged, entities missing remotely are pushed and differing
// objects are overwritten. CSV streams can be read from or written to the object bucket.
package reconciliation
