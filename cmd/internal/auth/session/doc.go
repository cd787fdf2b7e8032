// Package session implements the refresh credential lifecycle.
//
// A Manager issues a short-lived access credential and a long-lived refresh
// credential on login. Every refresh rotates: the presented credential is
// revoked and a successor in the same lineage is issued, all inside one
// Store.Rotate call. Presenting a revoked credential again is reported as
// ReusedToken and counted separately.
//
// Refresh records are persisted by a Store. PostgresStore is the production
// backend, RedisStore serves deployments that keep sessions in Redis and
// MemoryStore backs dev mode and tests. Records are only ever deleted by the
// retention sweeper.
package session
