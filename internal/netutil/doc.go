// Package netutil allocates TCP ports for local database engines.
//
// PortRegistry hands out free loopback ports obtained from the kernel and
// remembers every port it has given out, so that two engines created by the
// same process never receive the same port even though the probing listener
// is closed before the engine binds it.
package netutil
