package migrations

import (
	"database/sql"
)

// getAllMigrations returns every audit schema migration
func getAllMigrations() []Migration {
	return []Migration{
		migration1_AuditEvents(),
		migration2_RunOrigin(),
	}
}

// migration1_AuditEvents creates the change audit table
func migration1_AuditEvents() Migration {
	return Migration{
		Version:     1,
		Description: "Create audit_events table",
		Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS audit_events (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					timestamp INTEGER NOT NULL,
					run_id TEXT NOT NULL,
					operation TEXT NOT NULL,
					setting_key TEXT,
					old_value TEXT,
					new_value TEXT,
					status TEXT NOT NULL,
					detail TEXT
				)
			`); err != nil {
				return err
			}

			if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp DESC)`); err != nil {
				return err
			}
			if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_events_key ON audit_events(setting_key)`); err != nil {
				return err
			}
			return nil
		},
	}
}

// migration2_RunOrigin records which host ran each change and indexes runs
func migration2_RunOrigin() Migration {
	return Migration{
		Version:     2,
		Description: "Add origin column and run index to audit_events",
		Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec(`ALTER TABLE audit_events ADD COLUMN origin TEXT NOT NULL DEFAULT ''`); err != nil {
				return err
			}
			if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_events_run ON audit_events(run_id)`); err != nil {
				return err
			}
			return nil
		},
	}
}
