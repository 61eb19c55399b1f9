// Package jobs keeps a transient SQLite ledger of download jobs.
//
// Each row records what a caller asked for, the format plan that was
// negotiated, and how the attempt ended. Output files are never tracked here;
// they are gone by the time a job reaches a terminal status. The ledger exists
// for operators (recent history, failure reasons) and is pruned after the
// configured retention window.
//
// The database is transient storage rather than an archive. Schema changes
// bump schemaVersion in schema.go, and a ledger written under any other
// version is dropped and recreated on open.
package jobs
