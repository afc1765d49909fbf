// Package metrics exposes Prometheus collectors for the lifecycle actor.
//
// A nil *Metrics is valid and records nothing, so components take an
// optional *Metrics without nil checks at every call site.
package metrics
