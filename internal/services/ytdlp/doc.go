// Package ytdlp mediates access to the yt-dlp extraction engine.
//
// The Client issues two kinds of invocations: a metadata-only probe that
// returns the rendition catalog as JSON, and a fetch that downloads, merges,
// or extracts audio into a caller-chosen output template while streaming
// progress. Invocations are described by the Invocation struct and executed
// through an Executor; the default Executor drives the binary through
// github.com/lrstanley/go-ytdlp.
//
// Prefer this package over ad-hoc exec.Command usage so flag wiring, timeout
// handling, and error classification stay consistent.
package ytdlp
