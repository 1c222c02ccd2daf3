// Package connector manages connector instances: CRUD with realm-scoped authorization,
// bundle listing, live checks, cache reload and schema listing.
//
// Deleting a connector still bound to resources fails with AssociatedResources listing
// the resource keys.
package connector
