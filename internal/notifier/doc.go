// Package notifier fans a composed message out to chat destinations.
//
// Every destination is an independent unit of work: it gets exactly one send
// attempt, its failure (error, timeout or panic) is recorded as that
// destination's outcome, and siblings are never blocked or rolled back.
//
// # Transport
//
// Delivery is delegated to a Sink. Router picks the platform sink for a
// destination by prefix so the pipeline never depends on a specific
// messaging platform.
//
// # Throttling
//
// A shared token bucket bounds the push rate across concurrent ingestions and
// a worker limit bounds fan-out within one ingestion.
package notifier
