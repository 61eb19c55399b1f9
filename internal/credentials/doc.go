// Package credentials provisions the cookie bundle handed to the extraction
// engine.
//
// The source bundle is typically mounted read-only, while the engine rewrites
// its cookie file during a run. Provision therefore copies the source into a
// writable per-job location and returns a Lease whose Release removes that
// copy. Provisioning never fails: when the copy cannot be made the lease falls
// back to the source path, and when the source is missing the lease is empty
// and the engine runs unauthenticated.
package credentials
