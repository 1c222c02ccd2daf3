package server

import "strings"

// Config holds configuration for the HTTP server.
type Config struct {
	// Port is the port where the server will listen.
	Port string `mapstructure:"port" default:"8080"`
	// ApiKey is the secret key required to access the API.
	ApiKey string `mapstructure:"api_key" default:""`
	// Domain is the tenant every request is served for.
	Domain string `mapstructure:"domain" default:"Master"`
	// AdminUser is the caller name recorded for API-key authenticated requests.
	AdminUser string `mapstructure:"admin_user" default:"admin"`
	// BodyLimitMB caps request bodies, CSV uploads included.
	BodyLimitMB int `mapstructure:"body_limit_mb" default:"16"`
}

// Address returns the listen address, accepting both "8080" and ":8080".
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
