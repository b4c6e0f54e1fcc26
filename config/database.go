package config

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// InitDB opens and pings the Postgres database named by the config.
func InitDB(cfg *Config) (*sql.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url is required (BUDGET_DATABASE_URL)")
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return db, nil
}

// RunMigrations creates the schema. Every statement is idempotent, so the
// binaries run this on every start.
func RunMigrations(db *sql.DB) error {
	migrations := []string{
		`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,

		`CREATE TABLE IF NOT EXISTS homes (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			name VARCHAR(50) NOT NULL,
			currency VARCHAR(3) NOT NULL DEFAULT 'USD',
			admin_id UUID,
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS accounts (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			home_id UUID NOT NULL REFERENCES homes(id) ON DELETE CASCADE,
			name VARCHAR(150) NOT NULL,
			role VARCHAR(16) NOT NULL DEFAULT 'user',
			extra_perms JSONB NOT NULL DEFAULT '[]',
			current_amount NUMERIC(8,2) NOT NULL DEFAULT 0,
			final_amount NUMERIC(8,2) NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS labels (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			name VARCHAR(32) NOT NULL,
			home_id UUID REFERENCES homes(id) ON DELETE CASCADE,
			account_id UUID REFERENCES accounts(id) ON DELETE CASCADE,
			is_default BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT NOW()
		)`,

		// Name uniqueness is per scope: global, home or personal.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_labels_global_name
			ON labels(name) WHERE home_id IS NULL AND account_id IS NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_labels_home_name
			ON labels(home_id, name) WHERE home_id IS NOT NULL AND account_id IS NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_labels_personal_name
			ON labels(account_id, name) WHERE account_id IS NOT NULL`,

		`CREATE TABLE IF NOT EXISTS operation_plans (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			label_id UUID REFERENCES labels(id) ON DELETE SET NULL,
			amount NUMERIC(8,2) NOT NULL,
			description TEXT,
			period CHAR(1) NOT NULL,
			period_count INTEGER NOT NULL CHECK (period_count BETWEEN 1 AND 20),
			next_date DATE NOT NULL,
			created_at TIMESTAMP DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS operations (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			label_id UUID REFERENCES labels(id) ON DELETE SET NULL,
			amount NUMERIC(8,2) NOT NULL,
			description TEXT,
			creation_date DATE NOT NULL DEFAULT CURRENT_DATE,
			final_date DATE,
			plan_id UUID REFERENCES operation_plans(id) ON DELETE SET NULL,
			source_id UUID REFERENCES operations(id) ON DELETE SET NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_accounts_home_id ON accounts(home_id)`,
		`CREATE INDEX IF NOT EXISTS idx_labels_home_id ON labels(home_id)`,
		`CREATE INDEX IF NOT EXISTS idx_labels_account_id ON labels(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_operations_account_id ON operations(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_operations_source_id ON operations(source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_plans_account_id ON operation_plans(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_plans_next_date ON operation_plans(next_date)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	return nil
}
