// Package server holds the HTTP server configuration and the fiber application factory.
//
// # Configuration
//
// The Config struct defines the HTTP port, the API key, the served domain and the
// request body limit.
//
// # Errors
//
// NewApp installs ErrorHandler, which maps typed errors from core/clienterr to HTTP
// statuses. Handlers answering an error themselves use Error to produce the same body.
package server
