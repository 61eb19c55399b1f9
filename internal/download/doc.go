// Package download orchestrates one download job end to end.
//
// A job provisions a credential lease, probes the catalog, negotiates a format
// plan, allocates a scratch output, and drives the engine with a progress sink
// attached. After the engine returns, the presence of the output file on disk
// decides success; a clean engine exit with no file is still a failure.
//
// Serve wraps Run with delivery: the caller streams the file and the service
// releases the output exactly once afterwards, including when delivery fails
// or panics. A semaphore bounds how many engine processes run at once.
package download
