// Package utils provides value conversion helpers shared by the connector bundles,
// the mapping engine and the CSV stream connector.
//
// Connector attributes carry loosely typed values ([]any) while the internal store keeps
// strings, so most of the helpers here normalize between the two.
package utils
