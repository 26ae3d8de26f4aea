// Package ingest turns one device reading into a persisted history row and a
// set of per-destination notification outcomes.
//
// The pipeline runs persist, display-name lookup, time gate, subscription
// lookup and fan-out, in that order. Only the persist step is fatal; every
// later step degrades to a safe default and the run always ends with a
// result summary.
package ingest
