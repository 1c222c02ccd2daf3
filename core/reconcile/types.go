package reconcile

import "time"

// ReconcileResult is the full-resource reconciliation output for one connObjectKey value.
type ReconcileResult struct {
	// Key is the connObjectKey value.
	Key string `json:"key"`

	Name string `json:"name"`

	// InternalPresent tells whether an entity bound to the resource carries Key.
	InternalPresent bool `json:"internal_present"`

	// ExternalPresent tells whether the resource holds an object with Key.
	ExternalPresent bool `json:"external_present"`

	// Mismatch lists mapped attributes whose values differ on both sides.
	Mismatch []string `json:"mismatch"`

	Metadata map[string]string `json:"metadata"`
}

// Spec bundles the adapter and cache settings of a full reconciliation.
type Spec struct {
	Adapter Adapter

	// CacheTTL is the lifetime of cached indices. Zero disables caching.
	CacheTTL time.Duration
}

// CacheKey identifies the cached indices of the spec.
func (s *Spec) CacheKey() string {
	return s.Adapter.Name()
}

// ActionType is the kind of a planned mutation.
type ActionType string

const (
	// ActionPushCreate creates the remote object of an entity missing on the resource.
	ActionPushCreate ActionType = "push_create"
	// ActionPushUpdate updates a remote object whose attributes differ.
	ActionPushUpdate ActionType = "push_update"
	// ActionPullCreate creates the entity of a remote object without internal owner.
	ActionPullCreate ActionType = "pull_create"
	// ActionPushDelete deletes a remote object without internal owner.
	ActionPushDelete ActionType = "push_delete"
)

// Action is a planned mutation.
type Action struct {
	Type   ActionType `json:"type"`
	Key    string     `json:"key"`
	Reason string     `json:"reason"`
}

// ReconcilePlan holds results and planned actions.
type ReconcilePlan struct {
	Results []ReconcileResult `json:"results"`
	Actions []Action          `json:"actions"`
	Summary PlanSummary       `json:"summary"`

	cache *ReconcileCache
}

// PlanSummary aggregates a plan.
type PlanSummary struct {
	TotalItems      int `json:"total_items"`
	MissingExternal int `json:"missing_external"`
	MissingInternal int `json:"missing_internal"`
	Mismatches      int `json:"mismatches"`
	PushActions     int `json:"push_actions"`
	PullActions     int `json:"pull_actions"`
	PurgeActions    int `json:"purge_actions"`
}

// ReconcileOptions controls which actions are planned and whether they run.
type ReconcileOptions struct {
	// DryRun prevents execution of any mutation.
	DryRun bool

	// DoPush plans creation and update of remote objects from entities.
	DoPush bool

	// DoPull plans creation of entities from orphan remote objects.
	DoPull bool

	// DoPurge plans deletion of orphan remote objects. It wins over DoPull.
	DoPurge bool

	// Confirmed must be set for mutations to run.
	Confirmed bool
}
