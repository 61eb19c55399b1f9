// Package services defines shared utilities consumed by the download pipeline
// and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so the HTTP layer and the
//     job ledger classify failures consistently.
//
// Engine integrations live in subpackages (see services/ytdlp).
package services
