// Package remediation exposes the pull failures saved for later replay.
//
// Remedy decodes the stored entity, runs the failed create, update or delete through
// the kind logic and drops the record in the same transaction.
package remediation
