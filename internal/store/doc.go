// Package store provides the storage backends behind cart.Storage.
//
// Store keeps carts in SQLite:
//   - carts: one row per (identifier, instance) with items and conditions
//     as JSON documents and a revision counter bumped on every write
//   - cart_metadata: one row per metadata key, value as JSON
//
// Memory keeps the same shape in process memory for tests.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// SwapIdentifier runs in a single transaction, so an observer never sees a
// cart under both identifiers.
package store
