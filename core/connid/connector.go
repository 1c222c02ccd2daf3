package connid

import (
	"context"

	"idm-reconciler/core/model"
	"idm-reconciler/core/utils"
)

// ResultsHandler receives search results; returning false stops the search.
type ResultsHandler func(obj *ConnectorObject) bool

// SyncResultsHandler receives sync deltas; returning false stops the sync.
type SyncResultsHandler func(delta *SyncDelta) bool

// Connector is a live binding to an external system.
type Connector interface {
	Test(ctx context.Context) error
	Search(ctx context.Context, oc ObjectClass, filter *Filter, handler ResultsHandler, opts OperationOptions) (SearchResult, error)
	// GetObject returns (nil, nil) when uid does not exist.
	GetObject(ctx context.Context, oc ObjectClass, uid string, opts OperationOptions) (*ConnectorObject, error)
	Create(ctx context.Context, oc ObjectClass, attrs AttributeSet, opts OperationOptions) (string, error)
	Update(ctx context.Context, oc ObjectClass, uid string, attrs AttributeSet, opts OperationOptions) (string, error)
	Delete(ctx context.Context, oc ObjectClass, uid string, opts OperationOptions) error
	Sync(ctx context.Context, oc ObjectClass, token SyncToken, handler SyncResultsHandler, opts OperationOptions) (SyncToken, error)
	LatestSyncToken(ctx context.Context, oc ObjectClass) (SyncToken, error)
	Capabilities() Capabilities
}

// SchemaProvider is implemented by connectors able to describe their object classes.
type SchemaProvider interface {
	Schema(ctx context.Context) ([]ObjectClassInfo, error)
}

// Closer is implemented by connectors holding resources such as network connections.
type Closer interface {
	Close() error
}

// Collector returns a handler appending into dst and stopping after max objects
// (max <= 0 means unbounded).
func Collector(dst *[]*ConnectorObject, max int) ResultsHandler {
	return func(obj *ConnectorObject) bool {
		*dst = append(*dst, obj)
		return max <= 0 || len(*dst) < max
	}
}

// Configuration is the effective property set a bundle is built from.
type Configuration map[string][]any

// NewConfiguration merges conf with override; override wins property by property.
func NewConfiguration(conf []model.ConfProperty, override []model.ConfProperty) Configuration {
	c := make(Configuration, len(conf)+len(override))
	for _, p := range conf {
		c[p.Name] = p.Values
	}
	for _, p := range override {
		c[p.Name] = p.Values
	}
	return c
}

func (c Configuration) String(name, def string) string {
	if values := c[name]; len(values) > 0 && values[0] != nil {
		return utils.ToString(values[0])
	}
	return def
}

func (c Configuration) Strings(name string) []string {
	return utils.ToStrings(c[name])
}

func (c Configuration) Bool(name string) bool {
	if values := c[name]; len(values) > 0 {
		return utils.ToBool(values[0])
	}
	return false
}

func (c Configuration) Int(name string, def int) int {
	if values := c[name]; len(values) > 0 && values[0] != nil {
		return utils.ToInt(values[0])
	}
	return def
}
