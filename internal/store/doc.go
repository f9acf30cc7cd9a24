// Package store provides SQLite-backed key-value collections for duewatch.
//
// The database holds a catalog table plus one table per collection:
//   - collections: name, created_version (the catalog)
//   - kv_<name>: key, value (JSON bytes), updated_at (epoch ms)
//
// # Schema Versioning
//
// PRAGMA user_version counts schema upgrades. Every upgrade adds collections
// only; existing collections and their rows are never touched. Open creates
// every missing required collection in a single upgrade.
//
// # Self-Healing Operations
//
// Get, Put, Delete and ListKeys detect a missing collection table, run an
// upgrade that creates it, and retry the operation once. Callers never see
// "no such table" errors, whether the table was never created (an ad-hoc
// collection) or lost from a partially-written database.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// Each operation runs in its own transaction. No cross-operation atomicity is
// provided.
package store
