// Package drivers groups the database/sql driver registrations so the
// embedded engines are linked only into binaries that import this package.
package drivers

// Ready is a no-op that makes the import explicit at the call site.
func Ready() {}
