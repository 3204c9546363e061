package migrations

import (
	"log"

	"github.com/jmoiron/sqlx"
)

// Run creates the database schema required for the dispensing backend.
func Run(db *sqlx.DB) {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            username TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE,
            password TEXT NOT NULL,
            role TEXT NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS drug_stock (
            name TEXT PRIMARY KEY,
            stock INTEGER NOT NULL CHECK (stock >= 0),
            form TEXT,
            strength TEXT,
            category TEXT
        );`,
		`CREATE TABLE IF NOT EXISTS requests (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            patient_name TEXT NOT NULL,
            age INTEGER,
            gender TEXT,
            status TEXT NOT NULL DEFAULT 'requested',
            remarks TEXT NOT NULL DEFAULT '',
            requested_at TEXT NOT NULL,
            issued_at TEXT
        );`,
		`CREATE TABLE IF NOT EXISTS request_lines (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            request_id INTEGER NOT NULL,
            line_no INTEGER NOT NULL,
            drug TEXT NOT NULL,
            dose REAL NOT NULL,
            times_per_day INTEGER NOT NULL,
            duration_days INTEGER NOT NULL,
            form_type TEXT,
            dispensed INTEGER NOT NULL DEFAULT 0,
            UNIQUE(request_id, line_no),
            FOREIGN KEY(request_id) REFERENCES requests(id)
        );`,
		`CREATE TABLE IF NOT EXISTS invoice_payloads (
            id TEXT PRIMARY KEY,
            prescription_id TEXT,
            payload TEXT NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status);`,
		`CREATE INDEX IF NOT EXISTS idx_invoice_payloads_prescription ON invoice_payloads(prescription_id);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
	}
}
