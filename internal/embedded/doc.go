// Package embedded runs a PostgreSQL server from binaries downloaded on
// demand.
//
// Binaries are fetched once from a Maven-layout repository (Maven Central by
// default) into a cache directory below the engine root and extracted into
// the runtime directory. Initialization of the data directory and process
// supervision are delegated to github.com/fergusstrange/embedded-postgres.
package embedded
