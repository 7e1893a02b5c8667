// Package database provides connection pool management for PostgreSQL.
//
// The relay keeps devices and messages in a single database; the schema is
// owned by internal/store/postgres.
package database
