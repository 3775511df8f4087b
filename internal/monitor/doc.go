// Package monitor implements the collector half of Sentinel: the state
// model, the ingest contracts for incoming reports, the pure transition and
// liveness detectors, and the supervisor loop that drains them through a
// notifier set.
package monitor
