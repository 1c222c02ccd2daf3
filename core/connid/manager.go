package connid

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"idm-reconciler/core/model"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// cachedConnector is a connector built for one resource at one configuration version.
type cachedConnector struct {
	version   string
	connector Connector
}

// Manager builds and caches connectors per resource.
type Manager struct {
	registry *Registry
	logger   *zap.Logger

	mu    sync.RWMutex
	cache map[string]cachedConnector
	sf    singleflight.Group
}

// NewManager creates a manager over registry.
func NewManager(registry *Registry, logger *zap.Logger) *Manager {
	return &Manager{
		registry: registry,
		logger:   logger,
		cache:    make(map[string]cachedConnector),
	}
}

// Registry returns the bundle registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// version changes whenever the connector or the resource is saved.
func version(ci *model.ConnInstance, res *model.ExternalResource) string {
	return ci.Key + "@" + strconv.FormatInt(ci.LastChange.UnixNano(), 10) + "|" +
		res.Key + "@" + strconv.FormatInt(res.LastChange.UnixNano(), 10)
}

// GetConnector returns the connector of res, building it when absent or stale.
// Uses singleflight so concurrent callers share one build.
func (m *Manager) GetConnector(ci *model.ConnInstance, res *model.ExternalResource) (Connector, error) {
	v := version(ci, res)

	// Fast path: cached and current
	m.mu.RLock()
	cached, exists := m.cache[res.Key]
	m.mu.RUnlock()
	if exists && cached.version == v {
		return cached.connector, nil
	}

	result, err, _ := m.sf.Do(res.Key, func() (interface{}, error) {
		m.mu.RLock()
		cached, exists := m.cache[res.Key]
		m.mu.RUnlock()
		if exists && cached.version == v {
			return cached.connector, nil
		}

		conn, err := m.build(ci, res.ConfOverride)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		if exists {
			m.close(res.Key, cached.connector)
		}
		m.cache[res.Key] = cachedConnector{version: v, connector: conn}
		m.mu.Unlock()

		m.logger.Debug("Connector built",
			zap.String("resource", res.Key),
			zap.String("connector", ci.Key),
			zap.String("bundle", ci.BundleName))
		return conn, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(Connector), nil
}

// NewConnector builds an uncached connector, e.g. to check a configuration before saving it.
func (m *Manager) NewConnector(ci *model.ConnInstance, override []model.ConfProperty) (Connector, error) {
	return m.build(ci, override)
}

func (m *Manager) build(ci *model.ConnInstance, override []model.ConfProperty) (Connector, error) {
	raw, err := m.registry.Build(ci.BundleName, NewConfiguration(ci.Conf, override))
	if err != nil {
		return nil, err
	}

	caps := raw.Capabilities()
	if len(ci.Capabilities) > 0 {
		caps = ParseCapabilities(ci.Capabilities)
	}

	return &guardedConnector{
		Connector: raw,
		caps:      caps,
		timeout:   time.Duration(ci.ConnRequestTimeout) * time.Second,
	}, nil
}

// Unregister drops the cached connector of a resource.
func (m *Manager) Unregister(resourceKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cached, ok := m.cache[resourceKey]; ok {
		m.close(resourceKey, cached.connector)
		delete(m.cache, resourceKey)
	}
}

// Reload drops every cached connector; the next access rebuilds from configuration.
func (m *Manager) Reload() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.cache)
	for key, cached := range m.cache {
		m.close(key, cached.connector)
	}
	m.cache = make(map[string]cachedConnector)
	m.logger.Info("Connectors reloaded", zap.Int("dropped", n))
	return n
}

func (m *Manager) close(resourceKey string, conn Connector) {
	if g, ok := conn.(*guardedConnector); ok {
		conn = g.Connector
	}
	if c, ok := conn.(Closer); ok {
		if err := c.Close(); err != nil {
			m.logger.Warn("Failed to close connector", zap.String("resource", resourceKey), zap.Error(err))
		}
	}
}

// guardedConnector enforces enabled capabilities and the request timeout.
type guardedConnector struct {
	Connector
	caps    Capabilities
	timeout time.Duration
}

func (g *guardedConnector) Capabilities() Capabilities {
	return g.caps
}

func (g *guardedConnector) check(ctx context.Context, cap Capability) (context.Context, context.CancelFunc, error) {
	if !g.caps[cap] {
		return nil, nil, &ConnectorError{Op: string(cap), Err: fmt.Errorf("capability %s not enabled", cap)}
	}
	if g.timeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		return ctx, cancel, nil
	}
	return ctx, func() {}, nil
}

func (g *guardedConnector) Test(ctx context.Context) error {
	ctx, cancel, err := g.check(ctx, CapTest)
	if err != nil {
		return err
	}
	defer cancel()
	return Wrap("test", g.Connector.Test(ctx))
}

func (g *guardedConnector) Search(ctx context.Context, oc ObjectClass, filter *Filter, handler ResultsHandler, opts OperationOptions) (SearchResult, error) {
	ctx, cancel, err := g.check(ctx, CapSearch)
	if err != nil {
		return SearchResult{}, err
	}
	defer cancel()
	res, err := g.Connector.Search(ctx, oc, filter, handler, opts)
	return res, Wrap("search", err)
}

func (g *guardedConnector) GetObject(ctx context.Context, oc ObjectClass, uid string, opts OperationOptions) (*ConnectorObject, error) {
	ctx, cancel, err := g.check(ctx, CapSearch)
	if err != nil {
		return nil, err
	}
	defer cancel()
	obj, err := g.Connector.GetObject(ctx, oc, uid, opts)
	return obj, Wrap("get", err)
}

func (g *guardedConnector) Create(ctx context.Context, oc ObjectClass, attrs AttributeSet, opts OperationOptions) (string, error) {
	ctx, cancel, err := g.check(ctx, CapCreate)
	if err != nil {
		return "", err
	}
	defer cancel()
	uid, err := g.Connector.Create(ctx, oc, attrs, opts)
	return uid, Wrap("create", err)
}

func (g *guardedConnector) Update(ctx context.Context, oc ObjectClass, uid string, attrs AttributeSet, opts OperationOptions) (string, error) {
	ctx, cancel, err := g.check(ctx, CapUpdate)
	if err != nil {
		return "", err
	}
	defer cancel()
	newUID, err := g.Connector.Update(ctx, oc, uid, attrs, opts)
	return newUID, Wrap("update", err)
}

func (g *guardedConnector) Delete(ctx context.Context, oc ObjectClass, uid string, opts OperationOptions) error {
	ctx, cancel, err := g.check(ctx, CapDelete)
	if err != nil {
		return err
	}
	defer cancel()
	return Wrap("delete", g.Connector.Delete(ctx, oc, uid, opts))
}

func (g *guardedConnector) Sync(ctx context.Context, oc ObjectClass, token SyncToken, handler SyncResultsHandler, opts OperationOptions) (SyncToken, error) {
	ctx, cancel, err := g.check(ctx, CapSync)
	if err != nil {
		return "", err
	}
	defer cancel()
	next, err := g.Connector.Sync(ctx, oc, token, handler, opts)
	return next, Wrap("sync", err)
}

func (g *guardedConnector) LatestSyncToken(ctx context.Context, oc ObjectClass) (SyncToken, error) {
	ctx, cancel, err := g.check(ctx, CapSync)
	if err != nil {
		return "", err
	}
	defer cancel()
	token, err := g.Connector.LatestSyncToken(ctx, oc)
	return token, Wrap("latest sync token", err)
}

// Schema delegates to the wrapped connector when it can describe itself.
func (g *guardedConnector) Schema(ctx context.Context) ([]ObjectClassInfo, error) {
	sp, ok := g.Connector.(SchemaProvider)
	if !ok {
		return nil, &ConnectorError{Op: "schema", Err: fmt.Errorf("capability %s not enabled", CapSchema)}
	}
	infos, err := sp.Schema(ctx)
	return infos, Wrap("schema", err)
}
