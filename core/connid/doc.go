// Package connid is the connector abstraction between the identity store and external
// systems.
//
// A Connector exposes a small, uniform set of operations (search, get, create, update,
// delete, sync, test) over object classes whose objects carry multi-valued attributes.
// Concrete systems are provided by bundles registered in a Registry under a bundle name.
//
// # Special attributes
//
// __UID__ identifies an object on its system, __NAME__ is its naming attribute,
// __PASSWORD__ and __ENABLE__ carry credentials and status for account objects.
//
// # Manager
//
// The Manager builds connectors from ConnInstance configuration (plus resource level
// overrides), caches them per resource, wraps them with a request timeout and a
// capability guard, and clears the cache on Reload.
package connid
