// Package ldap provides a connector bundle for LDAP directories built on go-ldap.
//
// __NAME__ is the entry DN and __UID__ the value of the configured uid attribute
// (entryUUID by default). Each operation dials, binds, and closes its own connection;
// the request deadline from the context bounds every LDAP call.
//
// # Configuration
//
//   - url: ldap:// or ldaps:// URL
//   - bindDn, bindPassword: credentials
//   - baseContexts: search bases
//   - uidAttribute: attribute holding the stable id (default entryUUID)
//   - accountObjectClasses, groupObjectClasses: objectClass values written on create
//   - pageSize: simple paged results size (default 500)
package ldap
