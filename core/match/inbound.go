package match

import (
	"context"

	"idm-reconciler/core/connid"
	"idm-reconciler/core/mapping"
	"idm-reconciler/core/model"

	"go.uber.org/zap"
)

// Finder looks internal entities up.
type Finder interface {
	FindAny(ctx context.Context, key string) (*model.Any, error)
	FindAnysByName(ctx context.Context, anyType, name string, ignoreCase bool) ([]model.Any, error)
	FindAnysByPlainAttr(ctx context.Context, anyType, schema, value string, ignoreCase bool) ([]model.Any, error)
	FindLinkedAccounts(ctx context.Context, resourceKey, connObjectKeyValue string, ignoreCase bool) ([]model.LinkedAccount, error)
}

// Match is an internal candidate for an external object.
type Match struct {
	Type    model.MatchType
	Any     *model.Any
	Account *model.LinkedAccount
}

// Inbound matches external objects to internal entities.
type Inbound struct {
	finder Finder
	logger *zap.Logger
}

// NewInbound creates an inbound matcher.
func NewInbound(finder Finder, logger *zap.Logger) *Inbound {
	return &Inbound{finder: finder, logger: logger}
}

// KeyValue extracts the connObjectKey value of obj, falling back to __NAME__ and __UID__.
func KeyValue(obj *connid.ConnectorObject, keyItem model.Item) string {
	if obj == nil {
		return ""
	}
	for _, v := range obj.Value(keyItem.ExtAttrName) {
		if v != "" {
			return v
		}
	}
	if obj.Name != "" {
		return obj.Name
	}
	return obj.UID
}

// Match finds the candidates of a pulled delta.
func (m *Inbound) Match(ctx context.Context, delta *connid.SyncDelta, kind model.AnyTypeKind, provision *model.Provision) ([]Match, error) {
	keyItem, ok := provision.Mapping.ConnObjectKeyItem()
	if !ok {
		return nil, nil
	}
	value := KeyValue(delta.Object, keyItem)
	if value == "" {
		value = delta.UID
	}
	if value == "" {
		return nil, nil
	}
	return m.MatchByConnObjectKeyValue(ctx, keyItem, value, kind, provision)
}

// MatchByConnObjectKeyValue returns linked accounts (users only) then entities whose
// keyItem internal attribute equals value.
func (m *Inbound) MatchByConnObjectKeyValue(
	ctx context.Context,
	keyItem model.Item,
	value string,
	kind model.AnyTypeKind,
	provision *model.Provision,
) ([]Match, error) {
	var matches []Match

	if kind == model.KindUser {
		accounts, err := m.finder.FindLinkedAccounts(ctx, provision.ResourceKey, value, provision.IgnoreCaseMatch)
		if err != nil {
			return nil, err
		}
		for i := range accounts {
			matches = append(matches, Match{Type: model.MatchLinkedAccount, Account: &accounts[i]})
		}
	}

	anys, err := m.anys(ctx, keyItem.IntAttrName, value, provision)
	if err != nil {
		return nil, err
	}
	for i := range anys {
		matches = append(matches, Match{Type: model.MatchAny, Any: &anys[i]})
	}

	if len(matches) > 1 {
		m.logger.Warn("More than one match found, using the first",
			zap.String("resource", provision.ResourceKey),
			zap.String("anyType", provision.AnyType),
			zap.String("value", value),
			zap.Int("matches", len(matches)),
		)
	}
	return matches, nil
}

func (m *Inbound) anys(ctx context.Context, intAttrName, value string, provision *model.Provision) ([]model.Any, error) {
	switch intAttrName {
	case mapping.IntKey:
		a, err := m.finder.FindAny(ctx, value)
		if err != nil || a == nil || a.Type != provision.AnyType {
			return nil, err
		}
		return []model.Any{*a}, nil
	case mapping.IntUsername, mapping.IntName:
		return m.finder.FindAnysByName(ctx, provision.AnyType, value, provision.IgnoreCaseMatch)
	case mapping.IntRealm, mapping.IntStatus, mapping.IntPassword, "":
		return nil, nil
	default:
		return m.finder.FindAnysByPlainAttr(ctx, provision.AnyType, intAttrName, value, provision.IgnoreCaseMatch)
	}
}
