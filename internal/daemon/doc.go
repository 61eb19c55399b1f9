// Package daemon coordinates the long-running tubefront process.
//
// It wires the download orchestrator, catalog fetcher, credential provisioner,
// scratch manager, progress tracker and job ledger behind a single HTTP
// surface, with flock-based locking to prevent multiple instances. A
// background loop sweeps leaked scratch files, expired progress snapshots and
// old ledger rows.
//
// Keep orchestration logic here: negotiation and download steps live in their
// respective packages while the daemon focuses on startup, shutdown, request
// routing and error-to-status mapping.
package daemon
