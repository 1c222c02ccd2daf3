// Package metrics declares the prometheus collectors of the reconciler.
//
// Collectors register on the default registry through promauto and are exposed by
// the HTTP server at /metrics. Label values are bounded: operation, status, resource
// key, connector outcome and HTTP route pattern.
package metrics
