// Package model defines shared data types used across the relay.
//
// Conventions:
//   - Device IDs are client-chosen strings and survive reconnects.
//   - Session IDs are server-generated UUID strings, one per connection.
//   - Timestamps are UTC time.Time.
package model
