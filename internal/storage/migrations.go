package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a fatal
// error.
const ExpectedSchemaVersion = 5

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema: bank accounts and transactions",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS bank_accounts (
					iban TEXT PRIMARY KEY,
					bic TEXT,
					hibiscus_id TEXT,
					account_holder TEXT,
					description TEXT,
					account_number TEXT,
					bank_code TEXT,
					sub_account TEXT,
					customer_number TEXT,
					currency TEXT DEFAULT 'EUR',
					receivable_target TEXT,
					comment TEXT,
					balance REAL DEFAULT 0,
					available_balance REAL DEFAULT 0,
					balance_date DATETIME,
					auto_fetch BOOLEAN DEFAULT 1
				)`,

				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					bank_account TEXT NOT NULL,
					transaction_date DATETIME NOT NULL,
					value_date DATETIME,
					purpose TEXT,
					purpose_raw TEXT,
					counterparty_name TEXT,
					counterparty_iban TEXT,
					counterparty_bic TEXT,
					transaction_type TEXT,
					end_to_end_id TEXT,
					primanota TEXT,
					customer_ref TEXT,
					gv_code TEXT,
					comment TEXT,
					currency TEXT DEFAULT 'EUR',
					status TEXT NOT NULL DEFAULT 'new',
					customer TEXT,
					log TEXT,
					amount REAL NOT NULL,
					balance REAL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (bank_account) REFERENCES bank_accounts(iban)
				)`,
				`CREATE INDEX idx_transactions_account_date ON transactions(bank_account, transaction_date)`,
				`CREATE INDEX idx_transactions_status ON transactions(status)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Records system mirror: invoices, customers, banks",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS invoices (
					id TEXT PRIMARY KEY,
					customer TEXT NOT NULL,
					receivable_account TEXT,
					status TEXT NOT NULL,
					grand_total REAL NOT NULL,
					outstanding REAL NOT NULL,
					due_date DATETIME
				)`,
				`CREATE INDEX idx_invoices_status ON invoices(status)`,
				`CREATE INDEX idx_invoices_customer ON invoices(customer)`,

				`CREATE TABLE IF NOT EXISTS customers (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL
				)`,

				`CREATE TABLE IF NOT EXISTS banks (
					bic TEXT PRIMARY KEY,
					name TEXT NOT NULL
				)`,

				`CREATE TABLE IF NOT EXISTS customer_bank_accounts (
					id TEXT PRIMARY KEY,
					account_name TEXT,
					bank TEXT,
					customer TEXT NOT NULL,
					iban TEXT UNIQUE NOT NULL,
					FOREIGN KEY (customer) REFERENCES customers(id)
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Payment entries and allocations",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS payment_entries (
					id TEXT PRIMARY KEY,
					transaction_id TEXT UNIQUE NOT NULL,
					customer TEXT,
					customer_name TEXT,
					paid_from TEXT,
					paid_to TEXT,
					remarks TEXT,
					skipped_invoices TEXT,
					paid_amount REAL NOT NULL,
					submitted BOOLEAN DEFAULT 0,
					reference_date DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (transaction_id) REFERENCES transactions(id)
				)`,

				`CREATE TABLE IF NOT EXISTS payment_allocations (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					entry_id TEXT NOT NULL,
					invoice_id TEXT NOT NULL,
					total_amount REAL NOT NULL,
					outstanding REAL NOT NULL,
					allocated REAL NOT NULL,
					due_date DATETIME,
					UNIQUE (entry_id, invoice_id),
					FOREIGN KEY (entry_id) REFERENCES payment_entries(id)
				)`,
				`CREATE INDEX idx_allocations_entry ON payment_allocations(entry_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
	{
		Version:     4,
		Description: "Ledger match audit trail",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS ledger_matches (
					transaction_id TEXT PRIMARY KEY,
					status TEXT NOT NULL,
					quality_score INTEGER NOT NULL DEFAULT 0,
					ledger_total REAL NOT NULL DEFAULT 0,
					matched_at DATETIME NOT NULL,
					snapshot TEXT NOT NULL,
					FOREIGN KEY (transaction_id) REFERENCES transactions(id)
				)`,
				`CREATE INDEX idx_ledger_matches_status ON ledger_matches(status)`,
				`CREATE INDEX idx_ledger_matches_matched_at ON ledger_matches(matched_at)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
	{
		Version:     5,
		Description: "Job status store and sync logs",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS job_status (
					key TEXT PRIMARY KEY,
					value TEXT NOT NULL,
					expires_at DATETIME,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS sync_logs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					trigger_type TEXT NOT NULL,
					status TEXT NOT NULL,
					error_log TEXT,
					accounts_processed INTEGER DEFAULT 0,
					transactions_fetched INTEGER DEFAULT 0,
					errors_count INTEGER DEFAULT 0,
					started_at DATETIME NOT NULL,
					completed_at DATETIME
				)`,
				`CREATE INDEX idx_sync_logs_started_at ON sync_logs(started_at)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("schema version mismatch: have %d, expected %d", finalVersion, ExpectedSchemaVersion)
	}

	return nil
}
