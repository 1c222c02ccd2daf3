// Package engine wires the store, the connector manager, the mapping engine, the
// matchers and the provisioning executors into one Core shared by the HTTP features
// and the CLI commands.
package engine
