// Package logs reads the daemon's log files for `tubefront logs`.
//
// The daemon writes one file per run and repoints tubefront.log at the
// newest one. Last reads the trailing lines of the current file with
// bounded memory; Follow polls for appended lines and starts over from the
// top when the pointer moves to a new run or the file is truncated.
//
// Filters narrow output to a single job by matching the job_id field in
// either the JSON or the console encoding.
package logs
