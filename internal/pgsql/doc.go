// Package pgsql is the PostgreSQL client used by the lifecycle core.
//
// It wraps database/sql with the lib/pq driver and offers the few
// primitives the core needs: fetch rows, check/create/drop/list databases and
// terminate the backends of a database before it is dropped. Connection pools
// are cached per URI and evicted when their database goes away.
package pgsql
