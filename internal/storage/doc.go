// Package storage persists the alert store between restarts and keeps an
// audit trail of operator commands.
//
// Drivers:
//   - file: <prefix>.alerts.json snapshot (atomic replace) and <prefix>.audit.jsonl
//   - sqlite: modernc.org/sqlite database with an alert_state row and an audit table
package storage
