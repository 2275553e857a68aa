// Package audit keeps a local trail of zkdrive operations.
//
// Every account and transfer operation (signup, unlock, lock, logout,
// mkdir, upload, download) is appended to a JSON Lines file at:
//
//	$XDG_DATA_HOME/zkdrive/audit.jsonl
//
// Each entry contains:
//   - Timestamp (RFC3339 with microseconds, UTC)
//   - Account email and user ID
//   - Operation name
//   - Operation-specific details (file ID, chunk count, bytes)
//
// Entries never contain keys, passwords or file names.
//
// # Failure Handling
//
// Audit logging is best-effort. If logging fails (permissions, disk full,
// etc.), the operation continues without error.
//
// # Reading Logs
//
// Use ReadEntries() to parse the audit log for display.
// Malformed entries are silently skipped to handle partial writes.
package audit
