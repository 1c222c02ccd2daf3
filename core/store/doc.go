// Package store provides the gorm data access layer of the identity store.
//
// # Transactions
//
// InTx opens a transaction and carries it inside the context handed to the callback.
// Every DAO method resolves its connection from the context, so code running inside
// InTx joins the transaction without threading a *gorm.DB around. Nested InTx calls
// join the outer transaction.
//
// # Lookups
//
// Find* methods return (nil, nil) when the row does not exist; callers decide whether
// absence is a NotFound error. Plain attribute values are mirrored into an index table
// on every SaveAny so inbound matching can look entities up by value.
//
// # Realm scoping
//
// List methods accept the caller's effective realms and filter rows to those realms and
// their descendants. The root realm disables the filter.
package store
