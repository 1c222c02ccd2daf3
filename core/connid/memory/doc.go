// Package memory provides an in-memory connector bundle backed by go-memdb.
//
// Objects live in one table per object class with an "id" index on the uid and a
// "name" index on the naming attribute. Every create, update and delete also appends
// to a change log whose sequence number is the sync token.
//
// Connectors built from the same "instance" property share one Store, so several
// resources can point at the same fake system and tests can seed it through Shared.
//
// # Configuration
//
//   - instance: store name (default "default")
//   - objectClasses: object classes to create (default __ACCOUNT__, __GROUP__)
//   - failTest: make Test fail, to exercise connector checks
package memory
