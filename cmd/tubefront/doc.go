// Package main hosts the tubefront CLI entrypoint and command graph.
//
// The Cobra command tree runs the HTTP daemon in the foreground or detached,
// queries it for status and progress, and drives the download pipeline
// locally for one-off format listings and downloads. Configuration
// resolution and logger setup live in the shared command context so
// subcommands only deal with presentation.
package main
