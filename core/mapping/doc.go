// Package mapping translates between internal entities and connector attributes.
//
// Outbound, PrepareAttrsFromAny walks the provision's mapping items, resolves each
// internal attribute (built-in fields, plain, derived or virtual attributes), applies
// propagation transformers and mandatory conditions, and produces the attribute set a
// connector create or update receives. Inbound, ApplyPull turns a connector object into
// the changes to apply to an internal entity.
//
// # Expressions
//
// Mandatory conditions, connObjectLink, derived schemas and transformers are expr
// programs. They are compiled once and cached by source text. The environment exposes
// the entity fields (key, name, username, realm, status, type, kind), every plain
// attribute by name (a string when single valued) and the full attrs map.
//
// # Virtual attributes
//
// Values read from resources for virtual schemas are kept in an expirable LRU keyed by
// entity and schema.
package mapping
