// Package store defines interfaces for persistence dependencies (team webhook
// and secret lookups). Implementations live in other packages; this package
// must not import database drivers or concrete clients.
package store
