// Package storage keeps the local audit log of ingestions and registrations.
//
// Readings, configs and subscriptions live in the upstream store; this
// package only records compact summaries (counts, never per-destination
// results) for operators, and prunes them after a retention window.
package storage
