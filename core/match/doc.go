// Package match links external objects to internal entities and back.
//
// The inbound matcher answers "which internal entity does this remote object belong
// to": linked accounts on the resource are tried first for users, then entities whose
// mapped internal attribute carries the connObjectKey value. The outbound matcher asks
// the connector for objects whose connObjectKey attribute equals the value computed
// from an entity.
//
// Both return every candidate, nearest first (exact case before ignore-case). Callers
// take the first one; a warning is logged when more than one is found.
package match
