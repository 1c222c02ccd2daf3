// Package model defines the persistent entities of the identity store and the
// ephemeral DTOs exchanged by the reconciliation engines.
//
// Entities live in one arena per table keyed by stable string IDs. Relations are
// expressed as keys (Any.Resources, LinkedAccount.OwnerKey, ExternalResource.ConnectorKey)
// and never as pointers, so the graph can be loaded piecewise inside a transaction.
package model
