// Package store defines the persistence contracts for devices and messages.
//
// Two implementations exist:
//   - Memory: process-local, used for development and tests
//   - postgres.Store: pgx-backed, used in production
//
// Both return ErrNotFound for point lookups that miss.
package store
