// Package core implements the PostgreSQL instance lifecycle: the connection
// handle owning an engine, the manager enforcing the start-before-use
// policies and the actor serializing every request through one goroutine.
package core
