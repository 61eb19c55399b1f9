// Package api defines wire-format types and converters for the HTTP API and
// the CLI client that talks to it. It translates catalog, ledger, progress and
// credential models into transport-friendly DTOs so consumers never couple to
// internal types.
//
// # Key Types
//
// FormatsRequest/FormatsResponse: the catalog probe exchange, including the
// virtual extraction entry.
//
// DownloadRequest: a download ask. AudioAsMP3 or a format id ending in ".mp3"
// selects audio extraction.
//
// Job, Progress, ActiveJob: ledger rows, progress snapshots and in-flight jobs.
//
// DaemonStatus: aggregated runtime information including dependencies and the
// credential diagnostic.
//
// # Design Notes
//
// JSON keys are snake_case to stay compatible with the existing web client's
// /formats and /download payloads. Timestamps use RFC3339 with milliseconds.
// Every failure is an ErrorResponse with a single "error" key.
package api
