// Package csvstream adapts CSV streams to the connector interface so push and pull
// executors can run against a file instead of a live system.
//
// A Reader exposes every data row as a connector object through Search and Sync; a
// Writer turns Create and Update calls into rows. Both honour a Spec describing the
// separators, the null value and the columns.
//
// Multi-valued attributes are joined with the array element separator. Readers strip a
// leading byte order mark.
package csvstream
