// Package checks holds the individual integrity checks and their fixes.
package checks
