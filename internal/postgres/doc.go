// Package postgres runs a PostgreSQL server from locally installed binaries.
//
// The engine initializes a data directory with initdb on first use, launches
// the postgres server as a supervised child process bound to the loopback
// interface and waits until it accepts connections. Its Unix socket, pid file
// and process logs live in the engine's runtime directory.
//
// Stop sends SIGINT, which PostgreSQL treats as a fast shutdown: open
// transactions are rolled back and clients are disconnected.
package postgres
