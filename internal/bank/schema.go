package bank

import (
	"context"
	"fmt"
)

// Column types per dialect. Dates are text in every dialect.
var schemas = map[string][]string{
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS user_accounts (
			user_id              TEXT PRIMARY KEY,
			account_number       TEXT NOT NULL,
			account_type         TEXT NOT NULL,
			account_status       TEXT NOT NULL DEFAULT 'Active',
			annual_income        REAL,
			credit_score         INTEGER,
			debt_to_income_ratio REAL,
			email                TEXT,
			last_updated         TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS user_loans (
			loan_number         TEXT PRIMARY KEY,
			user_id             TEXT NOT NULL,
			loan_type           TEXT NOT NULL,
			original_amount     REAL NOT NULL,
			outstanding_balance REAL NOT NULL,
			interest_rate       REAL NOT NULL,
			monthly_payment     REAL NOT NULL,
			next_payment_date   TEXT,
			loan_term_months    INTEGER NOT NULL,
			payments_made       INTEGER NOT NULL DEFAULT 0,
			offer_rate          REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_loans_user ON user_loans(user_id)`,
	},
	DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS user_accounts (
			user_id              TEXT PRIMARY KEY,
			account_number       TEXT NOT NULL,
			account_type         TEXT NOT NULL,
			account_status       TEXT NOT NULL DEFAULT 'Active',
			annual_income        DOUBLE PRECISION,
			credit_score         INTEGER,
			debt_to_income_ratio DOUBLE PRECISION,
			email                TEXT,
			last_updated         TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS user_loans (
			loan_number         TEXT PRIMARY KEY,
			user_id             TEXT NOT NULL,
			loan_type           TEXT NOT NULL,
			original_amount     DOUBLE PRECISION NOT NULL,
			outstanding_balance DOUBLE PRECISION NOT NULL,
			interest_rate       DOUBLE PRECISION NOT NULL,
			monthly_payment     DOUBLE PRECISION NOT NULL,
			next_payment_date   TEXT,
			loan_term_months    INTEGER NOT NULL,
			payments_made       INTEGER NOT NULL DEFAULT 0,
			offer_rate          DOUBLE PRECISION
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_loans_user ON user_loans(user_id)`,
	},
	DriverMySQL: {
		"CREATE TABLE IF NOT EXISTS `user_accounts` (" +
			"`user_id` VARCHAR(128) NOT NULL PRIMARY KEY," +
			"`account_number` VARCHAR(64) NOT NULL," +
			"`account_type` VARCHAR(64) NOT NULL," +
			"`account_status` VARCHAR(32) NOT NULL DEFAULT 'Active'," +
			"`annual_income` DOUBLE," +
			"`credit_score` INT," +
			"`debt_to_income_ratio` DOUBLE," +
			"`email` VARCHAR(256)," +
			"`last_updated` VARCHAR(40))",
		"CREATE TABLE IF NOT EXISTS `user_loans` (" +
			"`loan_number` VARCHAR(64) NOT NULL PRIMARY KEY," +
			"`user_id` VARCHAR(128) NOT NULL," +
			"`loan_type` VARCHAR(64) NOT NULL," +
			"`original_amount` DOUBLE NOT NULL," +
			"`outstanding_balance` DOUBLE NOT NULL," +
			"`interest_rate` DOUBLE NOT NULL," +
			"`monthly_payment` DOUBLE NOT NULL," +
			"`next_payment_date` VARCHAR(10)," +
			"`loan_term_months` INT NOT NULL," +
			"`payments_made` INT NOT NULL DEFAULT 0," +
			"`offer_rate` DOUBLE," +
			"INDEX `idx_user_loans_user` (`user_id`))",
	},
}

// Migrate creates the user_accounts and user_loans tables if they do
// not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schemas[s.driver] {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s schema: %w", s.driver, err)
		}
	}
	return nil
}
