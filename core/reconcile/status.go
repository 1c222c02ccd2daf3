package reconcile

import (
	"context"

	"idm-reconciler/core/clienterr"
	"idm-reconciler/core/connid"
	"idm-reconciler/core/mapping"
	"idm-reconciler/core/match"
	"idm-reconciler/core/model"
	"idm-reconciler/core/store"

	"go.uber.org/zap"
)

// ReconQuery selects the entity/resource pair whose status is computed.
type ReconQuery struct {
	AnyTypeKey         string   `json:"anyTypeKey" query:"anyTypeKey"`
	ResourceKey        string   `json:"resourceKey" query:"resourceKey"`
	ConnObjectKeyValue string   `json:"connObjectKeyValue,omitempty" query:"connObjectKeyValue"`
	AnyKey             string   `json:"anyKey,omitempty" query:"anyKey"`
	MoreAttrsToGet     []string `json:"moreAttrsToGet,omitempty" query:"moreAttrsToGet"`
}

// StatusStore is the persistence needed by the status engine.
type StatusStore interface {
	match.Finder
	ResolveBinding(ctx context.Context, anyTypeKey, resourceKey string) (*store.Binding, error)
	FindConnInstance(ctx context.Context, key string) (*model.ConnInstance, error)
}

// ConnectorSource hands out the connector bound to a resource.
type ConnectorSource interface {
	GetConnector(ci *model.ConnInstance, res *model.ExternalResource) (connid.Connector, error)
}

// StatusEngine computes reconciliation status.
type StatusEngine struct {
	store      StatusStore
	connectors ConnectorSource
	mapping    *mapping.Engine
	inbound    *match.Inbound
	outbound   *match.Outbound
	logger     *zap.Logger

	// exclusive rejects queries carrying both or neither of connObjectKeyValue and anyKey.
	exclusive bool
}

// NewStatusEngine creates a status engine.
func NewStatusEngine(
	st StatusStore,
	connectors ConnectorSource,
	engine *mapping.Engine,
	inbound *match.Inbound,
	outbound *match.Outbound,
	exclusive bool,
	logger *zap.Logger,
) *StatusEngine {
	return &StatusEngine{
		store:      st,
		connectors: connectors,
		mapping:    engine,
		inbound:    inbound,
		outbound:   outbound,
		exclusive:  exclusive,
		logger:     logger,
	}
}

// Binding resolves the provision and connector of query. No connector I/O happens.
func (e *StatusEngine) Binding(ctx context.Context, anyTypeKey, resourceKey string) (*store.Binding, connid.Connector, error) {
	binding, err := e.store.ResolveBinding(ctx, anyTypeKey, resourceKey)
	if err != nil {
		return nil, nil, err
	}
	ci, err := e.store.FindConnInstance(ctx, binding.Resource.ConnectorKey)
	if err != nil {
		return nil, nil, err
	}
	if ci == nil {
		return nil, nil, clienterr.Newf(clienterr.NotFound, "Connector %s", binding.Resource.ConnectorKey)
	}
	conn, err := e.connectors.GetConnector(ci, binding.Resource)
	if err != nil {
		return nil, nil, err
	}
	return binding, conn, nil
}

// Status computes the three-way status of query.
func (e *StatusEngine) Status(ctx context.Context, query ReconQuery) (*model.ReconStatus, error) {
	byValue := query.ConnObjectKeyValue != ""
	byKey := query.AnyKey != ""
	if e.exclusive && byValue == byKey {
		return nil, clienterr.New(clienterr.InvalidValues,
			"exactly one of connObjectKeyValue and anyKey must be provided")
	}

	binding, conn, err := e.Binding(ctx, query.AnyTypeKey, query.ResourceKey)
	if err != nil {
		return nil, err
	}

	status := &model.ReconStatus{}
	if byValue {
		if err := e.statusByValue(ctx, binding, conn, query, status); err != nil {
			return nil, err
		}
	}
	if byKey {
		if err := e.statusByAnyKey(ctx, binding, conn, query, status); err != nil {
			return nil, err
		}
	}
	return status, nil
}

func (e *StatusEngine) statusByValue(
	ctx context.Context,
	b *store.Binding,
	conn connid.Connector,
	query ReconQuery,
	status *model.ReconStatus,
) error {
	matches, err := e.inbound.MatchByConnObjectKeyValue(ctx, b.KeyItem, query.ConnObjectKeyValue, b.AnyType.Kind, b.Provision)
	if err != nil {
		return err
	}

	var matched *model.Any
	if len(matches) > 0 {
		first := matches[0]
		status.MatchType = first.Type

		switch first.Type {
		case model.MatchAny:
			matched = first.Any
			status.AnyTypeKind = matched.Kind
			status.AnyKey = matched.Key
			status.RealmOrUnit = matched.RealmPath
			if status.OnSyncope, err = e.OnSyncope(ctx, matched, b); err != nil {
				return err
			}

		case model.MatchLinkedAccount:
			owner, err := e.store.FindAny(ctx, first.Account.OwnerKey)
			if err != nil {
				return err
			}
			if owner == nil {
				return clienterr.Newf(clienterr.NotFound, "User %s", first.Account.OwnerKey)
			}
			status.AnyTypeKind = model.KindUser
			status.AnyKey = owner.Key
			status.RealmOrUnit = owner.RealmPath
			if status.OnSyncope, err = e.onSyncopeAccount(ctx, owner, first.Account, b); err != nil {
				return err
			}
		}
	}

	objs, err := e.outbound.MatchByConnObjectKeyValue(ctx, conn, b.KeyItem, query.ConnObjectKeyValue, b.Provision, query.MoreAttrsToGet...)
	if err != nil {
		return err
	}
	if len(objs) > 0 {
		status.OnResource = mapping.SnapshotObject(b.KeyItem, objs[0])
		if matched != nil {
			if err := e.mapping.RefreshVirAttrs(ctx, matched, objs[0], b.Provision); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *StatusEngine) statusByAnyKey(
	ctx context.Context,
	b *store.Binding,
	conn connid.Connector,
	query ReconQuery,
	status *model.ReconStatus,
) error {
	a, err := e.store.FindAny(ctx, query.AnyKey)
	if err != nil {
		return err
	}
	if a == nil || a.Type != b.AnyType.Key {
		return clienterr.Newf(clienterr.NotFound, "%s %s", b.AnyType.Key, query.AnyKey)
	}

	status.MatchType = model.MatchAny
	status.AnyTypeKind = a.Kind
	status.AnyKey = a.Key
	status.RealmOrUnit = a.RealmPath
	if status.OnSyncope, err = e.OnSyncope(ctx, a, b); err != nil {
		return err
	}

	objs, err := e.outbound.Match(ctx, conn, a, b.Provision, query.MoreAttrsToGet...)
	if err != nil {
		return err
	}
	status.OnResource = nil
	if len(objs) > 0 {
		status.OnResource = mapping.SnapshotObject(b.KeyItem, objs[0])
	}
	return nil
}

// OnSyncope renders the outbound view of a as a snapshot.
func (e *StatusEngine) OnSyncope(ctx context.Context, a *model.Any, b *store.Binding) (*model.ConnObject, error) {
	prepared, err := e.mapping.PrepareAttrsFromAny(ctx, a, "", false, true, b.Provision)
	if err != nil {
		return nil, err
	}
	return mapping.Snapshot(b.KeyItem, prepared.ConnObjectKeyValue, prepared.Attrs), nil
}

func (e *StatusEngine) onSyncopeAccount(ctx context.Context, owner *model.Any, account *model.LinkedAccount, b *store.Binding) (*model.ConnObject, error) {
	prepared, err := e.mapping.PrepareAttrsFromLinkedAccount(ctx, owner, account, "", false, b.Provision)
	if err != nil {
		return nil, err
	}
	return mapping.Snapshot(b.KeyItem, prepared.ConnObjectKeyValue, prepared.Attrs), nil
}
