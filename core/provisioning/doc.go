// Package provisioning propagates entities between the internal store and external
// resources.
//
// Pusher sends one entity (or linked account) to a resource: it looks the remote
// object up with the outbound matcher, lets the task's matching or unmatching rule
// decide what to do, and runs the connector create, update or delete with attributes
// prepared by the mapping engine. Puller does the opposite for remote objects fetched
// by key, by full search or by sync token.
//
// Every outcome is a ProvisioningReport. A failure never aborts a bulk run: it is
// captured in a FAILURE report, optionally saved as a Remediation, and callers turn
// the failed reports into one Reconciliation error with Failures.
//
// # Rules
//
//	matching:   IGNORE UPDATE DEPROVISION UNASSIGN LINK UNLINK
//	unmatching: IGNORE ASSIGN PROVISION UNLINK
//
// Assignment changes go through the per-kind logic table (users, groups, any objects).
//
// # Streams
//
// PushStream and PullStream bind a transient provision to a CSV writer or reader
// connector, one mapping item per column, and reuse the same executors.
package provisioning
