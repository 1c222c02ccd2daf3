// Package resource manages external resources and reads the objects they hold.
//
// Resources are authorized against the admin realm of their connector. Reading a single
// object by any or by connObjectKey value fails with NotFound when nothing matches;
// paged searches are capped by provisioning.search_cap.
package resource
