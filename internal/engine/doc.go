// Package engine defines the boundary between the lifecycle core and the
// PostgreSQL server processes it owns.
//
// An Engine is set up once (binaries fetched or located, data directory
// initialised), then started and stopped any number of times. Two
// implementations exist: package embedded downloads a PostgreSQL
// distribution and runs it, package postgres runs binaries already installed
// on the host. Both lock their root directory with LockDataDir so that two
// OS processes never run a server over the same files.
package engine
