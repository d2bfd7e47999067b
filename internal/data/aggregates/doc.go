// Package aggregates owns transaction boundaries for writes that span the
// notice tables.
//
// It composes the table repos from internal/data/repos/notices, maps driver
// failures onto ErrorCode values and reports each write through Hooks.
package aggregates
