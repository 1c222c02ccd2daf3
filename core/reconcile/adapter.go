package reconcile

import (
	"context"

	"idm-reconciler/core/connid"
	"idm-reconciler/core/model"
)

// Adapter loads and compares both sides of one provision.
type Adapter interface {
	// Name identifies the provision, e.g. "ws-target/USER".
	Name() string

	// LoadInternalIndex returns the entities bound to the provision keyed by
	// connObjectKey value.
	LoadInternalIndex(ctx context.Context) (map[string]*model.Any, error)

	// LoadExternalIndex returns the remote objects keyed by connObjectKey value.
	LoadExternalIndex(ctx context.Context) (map[string]*connid.ConnectorObject, error)

	// ResolveName returns a display name; either side may be nil.
	ResolveName(a *model.Any, obj *connid.ConnectorObject) string

	// CompareFields lists the mapped attributes whose values differ, e.g.
	// "mail: internal=[a] external=[b]". Both sides are non-nil.
	CompareFields(ctx context.Context, a *model.Any, obj *connid.ConnectorObject) ([]string, error)

	// GetMetadata returns extra data for the result, such as the entity key and remote uid.
	GetMetadata(a *model.Any, obj *connid.ConnectorObject) map[string]string
}

// Mutator executes plan actions.
type Mutator interface {
	PushCreate(ctx context.Context, a *model.Any) error
	PushUpdate(ctx context.Context, a *model.Any) error
	PushDelete(ctx context.Context, obj *connid.ConnectorObject) error
	PullCreate(ctx context.Context, obj *connid.ConnectorObject) error
}
