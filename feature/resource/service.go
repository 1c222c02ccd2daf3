package resource

import (
	"context"
	"strings"
	"time"

	"idm-reconciler/core/clienterr"
	"idm-reconciler/core/connid"
	"idm-reconciler/core/engine"
	"idm-reconciler/core/mapping"
	"idm-reconciler/core/match"
	"idm-reconciler/core/model"
	"idm-reconciler/core/reqctx"
	"idm-reconciler/core/store"

	"go.uber.org/zap"
)

// SearchOptions page a connector object search.
type SearchOptions struct {
	Size    int
	Cookie  string
	OrderBy []connid.SortKey
}

// ConnObjectPage is one page of connector objects.
type ConnObjectPage struct {
	Items                 []*model.ConnObject `json:"items"`
	PagedResultsCookie    string              `json:"pagedResultsCookie,omitempty"`
	RemainingPagedResults int                 `json:"remainingPagedResults"`
}

// Service manages external resources and reads their objects.
type Service struct {
	core   *engine.Core
	logger *zap.Logger
}

// NewService creates a new resource service.
func NewService(core *engine.Core) *Service {
	return &Service{core: core, logger: core.Logger}
}

// Create stores a new resource. The caller needs RESOURCE_CREATE on the admin realm
// of the bound connector.
func (s *Service) Create(ctx context.Context, res *model.ExternalResource) (*model.ExternalResource, error) {
	if strings.TrimSpace(res.Key) == "" {
		return nil, clienterr.New(clienterr.InvalidValues, "resource key is required")
	}

	err := s.core.Store.InTx(ctx, false, func(ctx context.Context) error {
		ci, err := s.connector(ctx, res.ConnectorKey)
		if err != nil {
			return err
		}
		if err := reqctx.Authorize(ctx, reqctx.ResourceCreate, ci.AdminRealm); err != nil {
			return err
		}
		existing, err := s.core.Store.FindResource(ctx, res.Key)
		if err != nil {
			return err
		}
		if existing != nil {
			return clienterr.Newf(clienterr.InvalidValues, "Resource %s already exists", res.Key)
		}
		if err := s.validate(ctx, res); err != nil {
			return err
		}
		return s.core.Store.SaveResource(ctx, res)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Resource created", zap.String("resource", res.Key), zap.String("connector", res.ConnectorKey))
	return res, nil
}

// Read loads a resource.
func (s *Service) Read(ctx context.Context, key string) (*model.ExternalResource, error) {
	var res *model.ExternalResource
	err := s.core.Store.InTx(ctx, true, func(ctx context.Context) error {
		var err error
		res, err = s.authorized(ctx, reqctx.ResourceRead, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// List returns the resources whose connector is visible to the caller.
func (s *Service) List(ctx context.Context) ([]model.ExternalResource, error) {
	rc, err := reqctx.From(ctx)
	if err != nil {
		return nil, err
	}
	var list []model.ExternalResource
	err = s.core.Store.InTx(ctx, true, func(ctx context.Context) error {
		connectors, err := s.core.Store.ListConnInstances(ctx, rc.EffectiveRealms(reqctx.ResourceRead))
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(connectors))
		for _, ci := range connectors {
			keys = append(keys, ci.Key)
		}
		list, err = s.core.Store.ListResources(ctx, keys)
		return err
	})
	return list, err
}

// Update replaces a resource. Sync tokens missing from res are kept from the stored
// provisions; when the connector changes they are refreshed from the new one.
func (s *Service) Update(ctx context.Context, res *model.ExternalResource) (*model.ExternalResource, error) {
	var connectorChanged bool
	err := s.core.Store.InTx(ctx, false, func(ctx context.Context) error {
		existing, err := s.authorized(ctx, reqctx.ResourceUpdate, res.Key)
		if err != nil {
			return err
		}
		if res.ConnectorKey == "" {
			res.ConnectorKey = existing.ConnectorKey
		}
		if res.ConnectorKey != existing.ConnectorKey {
			ci, err := s.connector(ctx, res.ConnectorKey)
			if err != nil {
				return err
			}
			if err := reqctx.Authorize(ctx, reqctx.ResourceUpdate, ci.AdminRealm); err != nil {
				return err
			}
			connectorChanged = true
		}
		if err := s.validate(ctx, res); err != nil {
			return err
		}
		for i := range res.Provisions {
			p := &res.Provisions[i]
			if old, ok := existing.Provision(p.AnyType); ok && p.SyncToken == "" && !connectorChanged {
				p.SyncToken = old.SyncToken
			}
		}
		return s.core.Store.SaveResource(ctx, res)
	})
	if err != nil {
		return nil, err
	}

	if connectorChanged {
		s.refreshSyncTokens(ctx, res)
	}
	s.logger.Info("Resource updated", zap.String("resource", res.Key))
	return res, nil
}

// refreshSyncTokens stores the latest token of every provision. Connector failures are
// logged and leave the token empty.
func (s *Service) refreshSyncTokens(ctx context.Context, res *model.ExternalResource) {
	conn, err := s.liveConnector(ctx, res)
	if err != nil {
		s.logger.Warn("Could not refresh sync tokens", zap.String("resource", res.Key), zap.Error(err))
		return
	}
	if !conn.Capabilities()[connid.CapSync] {
		return
	}
	for i := range res.Provisions {
		p := &res.Provisions[i]
		token, err := conn.LatestSyncToken(ctx, connid.ObjectClass(p.ObjectClass))
		if err != nil {
			s.logger.Warn("Could not refresh sync token",
				zap.String("resource", res.Key), zap.String("anyType", p.AnyType), zap.Error(err))
			continue
		}
		if err := s.core.Store.UpdateSyncToken(ctx, res.Key, p.AnyType, string(token)); err != nil {
			s.logger.Warn("Could not store sync token",
				zap.String("resource", res.Key), zap.String("anyType", p.AnyType), zap.Error(err))
			continue
		}
		p.SyncToken = string(token)
	}
}

// Delete removes a resource and drops its cached connector.
func (s *Service) Delete(ctx context.Context, key string) (*model.ExternalResource, error) {
	var res *model.ExternalResource
	err := s.core.Store.InTx(ctx, false, func(ctx context.Context) error {
		var err error
		if res, err = s.authorized(ctx, reqctx.ResourceDelete, key); err != nil {
			return err
		}
		return s.core.Store.DeleteResource(ctx, key)
	})
	if err != nil {
		return nil, err
	}

	s.core.Connectors.Unregister(key)
	s.logger.Info("Resource deleted", zap.String("resource", key))
	return res, nil
}

// Check builds the connector of res, with its configuration overrides, and tests it.
// Failures propagate.
func (s *Service) Check(ctx context.Context, res *model.ExternalResource) error {
	var ci *model.ConnInstance
	err := s.core.Store.InTx(ctx, true, func(ctx context.Context) error {
		var err error
		if ci, err = s.connector(ctx, res.ConnectorKey); err != nil {
			return err
		}
		return reqctx.Authorize(ctx, reqctx.ResourceRead, ci.AdminRealm)
	})
	if err != nil {
		return err
	}

	conn, err := s.core.Connectors.NewConnector(ci, res.ConfOverride)
	if err != nil {
		return connid.Classify(err)
	}
	return connid.Classify(conn.Test(ctx))
}

// SetLatestSyncToken stores the current sync token of the connector on the provision
// of anyType, so that the next incremental pull starts from now.
func (s *Service) SetLatestSyncToken(ctx context.Context, key, anyType string) (string, error) {
	b, conn, err := s.binding(ctx, reqctx.ResourceUpdate, key, anyType)
	if err != nil {
		return "", err
	}
	token, err := conn.LatestSyncToken(ctx, connid.ObjectClass(b.Provision.ObjectClass))
	if err != nil {
		return "", connid.Classify(err)
	}
	if err := s.core.Store.UpdateSyncToken(ctx, key, anyType, string(token)); err != nil {
		return "", err
	}

	s.logger.Info("Sync token set",
		zap.String("resource", key), zap.String("anyType", anyType), zap.String("token", string(token)))
	return string(token), nil
}

// RemoveSyncToken clears the sync token of the provision of anyType.
func (s *Service) RemoveSyncToken(ctx context.Context, key, anyType string) error {
	return s.core.Store.InTx(ctx, false, func(ctx context.Context) error {
		res, err := s.authorized(ctx, reqctx.ResourceUpdate, key)
		if err != nil {
			return err
		}
		if _, ok := res.Provision(anyType); !ok {
			return clienterr.Newf(clienterr.NotFound, "Provision for %s on Resource %s", anyType, key)
		}
		return s.core.Store.UpdateSyncToken(ctx, key, anyType, "")
	})
}

// ReadConnObjectByAny reads the object the any anyKey is bound to.
func (s *Service) ReadConnObjectByAny(ctx context.Context, key, anyType, anyKey string) (*model.ConnObject, error) {
	b, conn, err := s.binding(ctx, reqctx.ResourceGetConnObject, key, anyType)
	if err != nil {
		return nil, err
	}
	a, err := s.any(ctx, anyType, anyKey)
	if err != nil {
		return nil, err
	}

	objs, err := s.core.Outbound.Match(ctx, conn, a, b.Provision)
	if err != nil {
		return nil, connid.Classify(err)
	}
	if len(objs) == 0 {
		return nil, clienterr.Newf(clienterr.NotFound, "Object for %s %s on Resource %s", anyType, anyKey, key)
	}
	return mapping.SnapshotObject(b.KeyItem, objs[0]), nil
}

// ReadConnObjectByKeyValue reads the object whose connObjectKey equals value.
func (s *Service) ReadConnObjectByKeyValue(ctx context.Context, key, anyType, value string) (*model.ConnObject, error) {
	b, conn, err := s.binding(ctx, reqctx.ResourceGetConnObject, key, anyType)
	if err != nil {
		return nil, err
	}

	objs, err := s.core.Outbound.MatchByConnObjectKeyValue(ctx, conn, b.KeyItem, value, b.Provision)
	if err != nil {
		return nil, connid.Classify(err)
	}
	if len(objs) == 0 {
		return nil, clienterr.Newf(clienterr.NotFound, "Object %s on Resource %s", value, key)
	}
	return mapping.SnapshotObject(b.KeyItem, objs[0]), nil
}

// SearchConnObjects pages through the objects of anyType on the resource. The page
// size is capped by the configured search cap.
func (s *Service) SearchConnObjects(ctx context.Context, key, anyType string, opts SearchOptions) (*ConnObjectPage, error) {
	b, conn, err := s.binding(ctx, reqctx.ResourceListConnObj, key, anyType)
	if err != nil {
		return nil, err
	}

	size := opts.Size
	if limit := s.core.Provisioning.SearchCap; limit > 0 && (size <= 0 || size > limit) {
		size = limit
	}

	var objs []*connid.ConnectorObject
	result, err := conn.Search(ctx, connid.ObjectClass(b.Provision.ObjectClass), nil,
		connid.Collector(&objs, size), connid.OperationOptions{
			AttributesToGet:    match.AttrsToGet(b.Provision),
			PageSize:           size,
			PagedResultsCookie: opts.Cookie,
			SortKeys:           opts.OrderBy,
		})
	if err != nil {
		return nil, connid.Classify(err)
	}

	page := &ConnObjectPage{
		Items:                 make([]*model.ConnObject, 0, len(objs)),
		PagedResultsCookie:    result.PagedResultsCookie,
		RemainingPagedResults: result.RemainingPagedResults,
	}
	for _, obj := range objs {
		page.Items = append(page.Items, mapping.SnapshotObject(b.KeyItem, obj))
	}
	return page, nil
}

// ConnObjectKeyValue computes the connObjectKey value of the any anyKey on the resource.
func (s *Service) ConnObjectKeyValue(ctx context.Context, key, anyType, anyKey string) (string, error) {
	var value string
	err := s.core.Store.InTx(ctx, true, func(ctx context.Context) error {
		res, err := s.authorized(ctx, reqctx.ResourceRead, key)
		if err != nil {
			return err
		}
		provision, ok := res.Provision(anyType)
		if !ok {
			return clienterr.Newf(clienterr.NotFound, "Provision for %s on Resource %s", anyType, key)
		}
		a, err := s.any(ctx, anyType, anyKey)
		if err != nil {
			return err
		}
		v, found, err := s.core.Mapping.ConnObjectKeyValue(ctx, a, provision)
		if err != nil {
			return err
		}
		if !found {
			return clienterr.Newf(clienterr.NotFound, "ConnObjectKey value for %s %s on Resource %s", anyType, anyKey, key)
		}
		value = v
		return nil
	})
	return value, err
}

// binding authorizes entitlement, resolves the provision of anyType and returns the
// connector of the resource.
func (s *Service) binding(ctx context.Context, entitlement, key, anyType string) (*store.Binding, connid.Connector, error) {
	var (
		b    *store.Binding
		conn connid.Connector
	)
	err := s.core.Store.InTx(ctx, true, func(ctx context.Context) error {
		if _, err := s.authorized(ctx, entitlement, key); err != nil {
			return err
		}
		var err error
		b, conn, err = s.core.Status.Binding(ctx, anyType, key)
		return err
	})
	if err != nil {
		return nil, nil, connid.Classify(err)
	}
	return b, conn, nil
}

func (s *Service) liveConnector(ctx context.Context, res *model.ExternalResource) (connid.Connector, error) {
	ci, err := s.connector(ctx, res.ConnectorKey)
	if err != nil {
		return nil, err
	}
	conn, err := s.core.Connectors.GetConnector(ci, res)
	if err != nil {
		return nil, connid.Classify(err)
	}
	return conn, nil
}

// authorized loads the resource key and checks entitlement on its connector's realm.
func (s *Service) authorized(ctx context.Context, entitlement, key string) (*model.ExternalResource, error) {
	res, err := s.core.Store.FindResource(ctx, key)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, clienterr.Newf(clienterr.NotFound, "Resource %s", key)
	}
	ci, err := s.connector(ctx, res.ConnectorKey)
	if err != nil {
		return nil, err
	}
	if err := reqctx.Authorize(ctx, entitlement, ci.AdminRealm); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) connector(ctx context.Context, key string) (*model.ConnInstance, error) {
	ci, err := s.core.Store.FindConnInstance(ctx, key)
	if err != nil {
		return nil, err
	}
	if ci == nil {
		return nil, clienterr.Newf(clienterr.NotFound, "Connector %s", key)
	}
	return ci, nil
}

func (s *Service) any(ctx context.Context, anyType, anyKey string) (*model.Any, error) {
	a, err := s.core.Store.FindAny(ctx, anyKey)
	if err != nil {
		return nil, err
	}
	if a == nil || a.Type != anyType {
		return nil, clienterr.Newf(clienterr.NotFound, "%s %s", anyType, anyKey)
	}
	if err := reqctx.Authorize(ctx, reqctx.AnyTypeEntitlement(anyType, "READ"), a.RealmPath); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) validate(ctx context.Context, res *model.ExternalResource) error {
	seen := make(map[string]bool, len(res.Provisions))
	for i := range res.Provisions {
		p := &res.Provisions[i]
		if seen[p.AnyType] {
			return clienterr.Newf(clienterr.InvalidValues, "more than one provision for %s", p.AnyType)
		}
		seen[p.AnyType] = true

		anyType, err := s.core.Store.FindAnyType(ctx, p.AnyType)
		if err != nil {
			return err
		}
		if anyType == nil {
			return clienterr.Newf(clienterr.NotFound, "AnyType %s", p.AnyType)
		}
		if p.ObjectClass == "" {
			switch anyType.Kind {
			case model.KindUser:
				p.ObjectClass = string(connid.ObjectClassAccount)
			case model.KindGroup:
				p.ObjectClass = string(connid.ObjectClassGroup)
			default:
				return clienterr.Newf(clienterr.InvalidValues, "objectClass is required for %s", p.AnyType)
			}
		}
		if err := s.validateMapping(p); err != nil {
			return err
		}
	}
	res.LastChange = time.Now()
	return nil
}

func (s *Service) validateMapping(p *model.Provision) error {
	if p.Mapping == nil {
		return nil
	}
	switch n := p.Mapping.KeyItemCount(); {
	case n == 0 && len(p.Mapping.Items) > 0:
		return clienterr.Newf(clienterr.InvalidValues, "no connObjectKey item for %s", p.AnyType)
	case n > 1:
		return clienterr.Newf(clienterr.InvalidValues, "more than one connObjectKey item for %s", p.AnyType)
	}

	var errs []string
	eval := s.core.Mapping.Evaluator()
	for i := range p.Mapping.Items {
		item := &p.Mapping.Items[i]
		if item.IntAttrName == "" || item.ExtAttrName == "" {
			errs = append(errs, "items need both intAttrName and extAttrName")
			continue
		}
		if item.Purpose == "" {
			item.Purpose = model.PurposeBoth
		}
		for _, src := range []string{item.MandatoryCondition, item.PropagationTransformer, item.PullTransformer} {
			if src == "" {
				continue
			}
			if err := eval.Validate(src); err != nil {
				errs = append(errs, item.ExtAttrName+": "+err.Error())
			}
		}
	}
	if p.Mapping.ConnObjectLink != "" {
		if err := eval.Validate(p.Mapping.ConnObjectLink); err != nil {
			errs = append(errs, "connObjectLink: "+err.Error())
		}
	}
	if len(errs) > 0 {
		return clienterr.New(clienterr.InvalidValues, errs...)
	}
	return nil
}
