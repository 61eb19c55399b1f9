// Package progress stores per-job progress snapshots.
//
// Snapshots are keyed by job id and expire after a configurable TTL. Latest
// still answers "what happened most recently" across all jobs for pollers that
// do not know a job id. Two backends exist: an in-process map for single-node
// deployments and Redis for daemons that share progress across processes.
package progress
