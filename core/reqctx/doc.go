// Package reqctx carries the request-scoped identity of a caller through context.Context.
//
// A Context holds the domain, the caller's username and locale, and the entitlements the
// caller owns together with the realms each entitlement applies to. It is acquired once at
// the edge (HTTP middleware or CLI bootstrap) and released when the request ends.
//
// # Delegated administration
//
// Authorize checks that an entitlement is owned for a realm or any of its ancestors and
// fails with a DelegatedAdministration error otherwise.
//
// # Usage
//
//	ctx, release := reqctx.Acquire(ctx, reqctx.Admin("Master"))
//	defer release()
//	rc, err := reqctx.From(ctx)
package reqctx
