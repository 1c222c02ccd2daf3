package connid

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a connector from its configuration.
type Factory func(conf Configuration) (Connector, error)

// BundleInfo describes a registered bundle.
type BundleInfo struct {
	Name          string   `json:"bundleName"`
	Version       string   `json:"version"`
	ConnectorName string   `json:"connectorName"`
	Properties    []string `json:"properties"`
}

type bundle struct {
	info    BundleInfo
	factory Factory
}

// Registry holds the available bundles keyed by bundle name.
type Registry struct {
	mu      sync.RWMutex
	bundles map[string]bundle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{bundles: make(map[string]bundle)}
}

// Register adds a bundle, replacing any previous one with the same name.
func (r *Registry) Register(info BundleInfo, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bundles[info.Name] = bundle{info: info, factory: factory}
}

// Bundles lists the registered bundles sorted by name.
func (r *Registry) Bundles() []BundleInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]BundleInfo, 0, len(r.bundles))
	for _, b := range r.bundles {
		infos = append(infos, b.info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Build instantiates a connector of bundleName.
func (r *Registry) Build(bundleName string, conf Configuration) (Connector, error) {
	r.mu.RLock()
	b, ok := r.bundles[bundleName]
	r.mu.RUnlock()
	if !ok {
		return nil, &ConfigurationError{Bundle: bundleName, Err: fmt.Errorf("bundle not registered")}
	}
	conn, err := b.factory(conf)
	if err != nil {
		return nil, &ConfigurationError{Bundle: bundleName, Err: err}
	}
	return conn, nil
}
