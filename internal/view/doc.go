// Package view builds the read-side models rendered by the status and
// history pages: the per-destination device roster and the paginated,
// chart-ready history of one device.
//
// Every function here is a pure transformation of one upstream response.
// Upstream failures produce empty but well-formed results; they are never
// returned as errors because the reader of these pages cannot retry.
package view
