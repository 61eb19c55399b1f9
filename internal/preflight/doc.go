// Package preflight provides readiness checks for filesystem paths and
// services tubefront depends on.
//
// The daemon runs RunAll at startup and logs failures; the CLI status command
// renders the same results. Credential checks are informational because a
// missing cookie bundle only degrades requests to unauthenticated mode.
package preflight
