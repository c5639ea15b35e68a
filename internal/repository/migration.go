package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// schema uses column type tokens that are expanded per dialect.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		id {{id}},
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		billing_currency CHAR(3) NOT NULL,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS registrars (
		id {{id}},
		name TEXT NOT NULL,
		adapter_key TEXT NOT NULL,
		currency CHAR(3) NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS services (
		id {{id}},
		customer_id BIGINT NOT NULL REFERENCES customers(id),
		service_type TEXT NOT NULL,
		reference TEXT NOT NULL,
		created_at {{ts}} NOT NULL,
		UNIQUE (customer_id, service_type, reference)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id {{id}},
		order_number TEXT NOT NULL UNIQUE,
		customer_id BIGINT NOT NULL REFERENCES customers(id),
		service_id BIGINT NOT NULL REFERENCES services(id),
		service_type TEXT NOT NULL,
		registrar_id BIGINT REFERENCES registrars(id),
		auto_renew BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL,
		start_date {{ts}},
		next_billing_date {{ts}},
		billing_cycle_months INTEGER NOT NULL DEFAULT 12,
		recurring_amount {{money}} NOT NULL,
		currency CHAR(3) NOT NULL,
		suspend_reason TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS domains (
		id {{id}},
		name TEXT NOT NULL UNIQUE,
		customer_id BIGINT NOT NULL REFERENCES customers(id),
		registrar_id BIGINT NOT NULL REFERENCES registrars(id),
		order_id BIGINT REFERENCES orders(id),
		status TEXT NOT NULL,
		registration_date {{ts}},
		expiration_date {{ts}} NOT NULL,
		auto_renew BOOLEAN NOT NULL DEFAULT FALSE,
		renewal_price {{money}} NOT NULL,
		currency CHAR(3) NOT NULL,
		renewal_years INTEGER NOT NULL DEFAULT 1,
		version INTEGER NOT NULL DEFAULT 1,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS invoices (
		id {{id}},
		invoice_number TEXT NOT NULL UNIQUE,
		customer_id BIGINT NOT NULL REFERENCES customers(id),
		order_id BIGINT REFERENCES orders(id),
		domain_id BIGINT REFERENCES domains(id),
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		currency CHAR(3) NOT NULL,
		total_amount {{money}} NOT NULL,
		due_date {{ts}} NOT NULL,
		period_start {{ts}},
		payment_reference TEXT NOT NULL DEFAULT '',
		paid_at {{ts}},
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS exchange_rates (
		id {{id}},
		base_currency CHAR(3) NOT NULL,
		target_currency CHAR(3) NOT NULL,
		rate {{money}} NOT NULL,
		markup_percentage {{money}} NOT NULL,
		effective_date {{ts}} NOT NULL,
		expiry_date {{ts}},
		source TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		seq {{id}},
		id {{uuid}} NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id BIGINT NOT NULL,
		correlation_id TEXT NOT NULL,
		payload {{json}} NOT NULL,
		occurred_at {{ts}} NOT NULL,
		created_at {{ts}} NOT NULL,
		processed_at {{ts}},
		retry_count INTEGER NOT NULL DEFAULT 0,
		next_attempt_at {{ts}} NOT NULL,
		last_error TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_leases (
		aggregate_type TEXT NOT NULL,
		aggregate_id BIGINT NOT NULL,
		owner TEXT NOT NULL,
		locked_until {{ts}} NOT NULL,
		PRIMARY KEY (aggregate_type, aggregate_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox_events (processed_at, next_attempt_at)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_stream ON outbox_events (aggregate_type, aggregate_id, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_domain_period ON invoices (domain_id, kind, period_start)`,
	`CREATE INDEX IF NOT EXISTS idx_domains_expiration ON domains (status, expiration_date)`,
	`CREATE INDEX IF NOT EXISTS idx_rates_pair ON exchange_rates (base_currency, target_currency, is_active, effective_date)`,
}

func columnTypes(d Dialect) *strings.Replacer {
	if d == DialectSQLite {
		return strings.NewReplacer(
			"{{id}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
			"{{ts}}", "DATETIME",
			"{{money}}", "TEXT",
			"{{json}}", "TEXT",
			"{{uuid}}", "TEXT",
		)
	}
	return strings.NewReplacer(
		"{{id}}", "BIGSERIAL PRIMARY KEY",
		"{{ts}}", "TIMESTAMPTZ",
		"{{money}}", "NUMERIC(20,8)",
		"{{json}}", "JSONB",
		"{{uuid}}", "UUID",
	)
}

// SchemaStatements returns the DDL for a dialect, in execution order.
func SchemaStatements(d Dialect) []string {
	r := columnTypes(d)
	out := make([]string, len(schema))
	for i, stmt := range schema {
		out[i] = r.Replace(stmt)
	}
	return out
}

// InitSchema creates every table and index. It is safe to run repeatedly.
func InitSchema(ctx context.Context, db *sql.DB, d Dialect) error {
	for _, stmt := range SchemaStatements(d) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
