// Package reconcile compares internal entities with the objects of an external resource.
//
// # Status
//
// StatusEngine answers a single query: given a connObjectKey value or an entity key,
// which internal entity or linked account matches (onSyncope) and which remote object
// exists (onResource). The provision and its connObjectKey item are resolved before
// any connector call, so a missing mapping fails with NotFound without touching the
// resource. By default the two inputs are mutually exclusive; in legacy mode both
// branches run in order and the second one wins.
//
// # Full reconciliation
//
// The engine loads two indices concurrently, both keyed by connObjectKey value:
//
//  1. Internal: entities bound to the resource through the provision.
//  2. External: every object of the provision's object class on the resource.
//
// The union of keys yields one ReconcileResult per key with presence flags and
// attribute mismatches. ReconcileWithPlan turns results into actions:
//
//   - push_create: entity without remote object (DoPush)
//   - push_update: attributes differ (DoPush)
//   - pull_create: remote object without entity (DoPull)
//   - push_delete: remote object without entity (DoPurge, wins over DoPull)
//
// ApplyPlan runs them through a Mutator only when the options are confirmed and not a
// dry run.
//
// # Cache
//
// Indices can be cached per adapter with a TTL. Rebuilds are collapsed with singleflight.
//
// # Usage
//
//	spec := &reconcile.Spec{Adapter: adapter, CacheTTL: time.Minute}
//	plan, err := reconcile.ReconcileWithPlan(ctx, spec, reconcile.ReconcileOptions{DoPush: true})
//	executed, err := reconcile.ApplyPlan(ctx, spec, plan, opts)
package reconcile
