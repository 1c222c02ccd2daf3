package match

import (
	"context"
	"slices"

	"idm-reconciler/core/connid"
	"idm-reconciler/core/mapping"
	"idm-reconciler/core/model"

	"go.uber.org/zap"
)

// Outbound matches internal entities to external objects.
type Outbound struct {
	engine *mapping.Engine
	logger *zap.Logger
}

// NewOutbound creates an outbound matcher.
func NewOutbound(engine *mapping.Engine, logger *zap.Logger) *Outbound {
	return &Outbound{engine: engine, logger: logger}
}

// Match searches the objects of a on provision. An entity without connObjectKey
// value has no match.
func (m *Outbound) Match(
	ctx context.Context,
	conn connid.Connector,
	a *model.Any,
	provision *model.Provision,
	moreAttrsToGet ...string,
) ([]*connid.ConnectorObject, error) {
	keyItem, ok := provision.Mapping.ConnObjectKeyItem()
	if !ok {
		return nil, nil
	}
	value, ok, err := m.engine.ConnObjectKeyValue(ctx, a, provision)
	if err != nil || !ok {
		return nil, err
	}
	return m.MatchByConnObjectKeyValue(ctx, conn, keyItem, value, provision, moreAttrsToGet...)
}

// MatchLinkedAccount searches the object of a linked account.
func (m *Outbound) MatchLinkedAccount(
	ctx context.Context,
	conn connid.Connector,
	account *model.LinkedAccount,
	provision *model.Provision,
	moreAttrsToGet ...string,
) ([]*connid.ConnectorObject, error) {
	keyItem, ok := provision.Mapping.ConnObjectKeyItem()
	if !ok {
		return nil, nil
	}
	return m.MatchByConnObjectKeyValue(ctx, conn, keyItem, account.ConnObjectKeyValue, provision, moreAttrsToGet...)
}

// MatchByConnObjectKeyValue searches objects whose keyItem attribute equals value.
func (m *Outbound) MatchByConnObjectKeyValue(
	ctx context.Context,
	conn connid.Connector,
	keyItem model.Item,
	value string,
	provision *model.Provision,
	moreAttrsToGet ...string,
) ([]*connid.ConnectorObject, error) {
	filter := connid.Equals(keyItem.ExtAttrName, value)
	if provision.IgnoreCaseMatch {
		filter = connid.EqualsIgnoreCase(keyItem.ExtAttrName, value)
	}

	var objs []*connid.ConnectorObject
	_, err := conn.Search(ctx, connid.ObjectClass(provision.ObjectClass), filter,
		connid.Collector(&objs, 0), connid.OperationOptions{AttributesToGet: AttrsToGet(provision, moreAttrsToGet...)})
	if err != nil {
		return nil, err
	}
	exactFirst(objs, keyItem.ExtAttrName, value)

	if len(objs) > 1 {
		m.logger.Warn("More than one object found on resource, using the first",
			zap.String("resource", provision.ResourceKey),
			zap.String("filter", filter.String()),
			zap.Int("matches", len(objs)),
		)
	}
	return objs, nil
}

// AttrsToGet lists the external attributes read for provision: every mapped
// non-password attribute plus extra.
func AttrsToGet(provision *model.Provision, extra ...string) []string {
	names := provision.Mapping.ExtAttrNames(func(item model.Item) bool {
		return !item.Password && item.Purpose != model.PurposeNone
	})
	for _, name := range extra {
		if name != "" && !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	return names
}

func exactFirst(objs []*connid.ConnectorObject, extAttrName, value string) {
	rank := func(obj *connid.ConnectorObject) int {
		if slices.Contains(obj.Value(extAttrName), value) {
			return 0
		}
		return 1
	}
	slices.SortStableFunc(objs, func(a, b *connid.ConnectorObject) int {
		return rank(a) - rank(b)
	})
}
