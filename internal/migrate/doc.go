// Package migrate applies directories of SQL migrations to a PostgreSQL
// database.
//
// The on-disk layout and the history table are compatible with the sqlx
// migrator, so databases migrated by either tool can be migrated by the
// other:
//
//	migrations/
//	  20240101120000_create_users.sql
//	  20240102090000_add_index.up.sql
//	  20240102090000_add_index.down.sql   (ignored)
//
// A file whose content starts with "-- no-transaction" runs outside a
// transaction, for statements such as CREATE INDEX CONCURRENTLY.
//
// Applied migrations are recorded in _sqlx_migrations with a SHA-384
// checksum of their content. Editing an applied migration, removing it from
// the source, or leaving a failed migration behind stops further migrations
// until an operator intervenes.
package migrate
