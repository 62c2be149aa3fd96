package audit

import "database/sql"

// Schema is the DDL for the audit journal. Apply it with Init or pass it to
// dbopen.WithSchema.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_log (
    entry_id    TEXT PRIMARY KEY,
    timestamp   INTEGER NOT NULL,
    operation   TEXT NOT NULL,
    transport   TEXT NOT NULL DEFAULT '',
    request_id  TEXT NOT NULL DEFAULT '',
    username    TEXT NOT NULL DEFAULT '',
    filename    TEXT NOT NULL DEFAULT '',
    bytes       INTEGER NOT NULL DEFAULT 0,
    sections    TEXT NOT NULL DEFAULT '{}',
    duration_ms INTEGER NOT NULL DEFAULT 0,
    status      TEXT NOT NULL,
    error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_operation ON audit_log(operation, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_status ON audit_log(status);
`

// Init creates the audit tables if they do not exist.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
