package provisioning

import "time"

// Config holds the provisioning settings.
type Config struct {
	// ExclusiveReconQuery rejects status queries carrying both or neither of
	// connObjectKeyValue and anyKey. Disabled, both branches run and the last one wins.
	ExclusiveReconQuery bool `mapstructure:"exclusive_recon_query" default:"true"`
	// StreamWorkers bounds the parallel pushes of a CSV export.
	StreamWorkers int `mapstructure:"stream_workers" default:"1"`
	// SearchCap is the hard limit of objects returned by a connector object search.
	SearchCap int `mapstructure:"search_cap" default:"1000"`
	// VirAttrCacheSize is the capacity of the virtual attribute cache.
	VirAttrCacheSize int `mapstructure:"vir_attr_cache_size" default:"5000"`
	// VirAttrCacheTTLSeconds is the lifetime of cached virtual attribute values.
	VirAttrCacheTTLSeconds int `mapstructure:"vir_attr_cache_ttl_seconds" default:"300"`
	// IndexCacheTTLSeconds is the lifetime of full reconciliation indices; 0 disables caching.
	IndexCacheTTLSeconds int `mapstructure:"index_cache_ttl_seconds" default:"60"`
}

// VirAttrCacheTTL returns the virtual attribute lifetime.
func (c Config) VirAttrCacheTTL() time.Duration {
	return time.Duration(c.VirAttrCacheTTLSeconds) * time.Second
}

// IndexCacheTTL returns the reconciliation index lifetime.
func (c Config) IndexCacheTTL() time.Duration {
	return time.Duration(c.IndexCacheTTLSeconds) * time.Second
}
