// Package catalog keeps a local SQLite ledger of the logical databases
// created through pgenv.
//
// Each entry records the server the database lives on, its name, its
// connection URI and when it was created. The ledger lets a later process
// find and reap databases that an earlier one left behind.
package catalog
