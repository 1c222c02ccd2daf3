package connid

import "time"

// Config holds the connector check settings.
type Config struct {
	// CheckPoolSize bounds the concurrent checks of check-all.
	CheckPoolSize int `mapstructure:"check_pool_size" default:"4"`
	// CheckTimeoutSeconds time-boxes each check; 0 means no limit.
	CheckTimeoutSeconds int `mapstructure:"check_timeout_seconds" default:"10"`
}

// CheckTimeout returns the per-check limit.
func (c Config) CheckTimeout() time.Duration {
	return time.Duration(c.CheckTimeoutSeconds) * time.Second
}
