package sqlstore

import (
	"context"
	"fmt"
	"strings"
)

// columnTypes differ per dialect; the statements below are otherwise shared.
type columnTypes struct {
	id        string
	money     string
	date      string
	timestamp string
	boolean   string
}

var dialectTypes = map[Dialect]columnTypes{
	Postgres: {id: "UUID", money: "NUMERIC(14,2)", date: "DATE", timestamp: "TIMESTAMPTZ", boolean: "BOOLEAN"},
	SQLite:   {id: "TEXT", money: "TEXT", date: "DATE", timestamp: "DATETIME", boolean: "BOOLEAN"},
}

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS products (
	id {id} PRIMARY KEY,
	name TEXT NOT NULL,
	generic_name TEXT NOT NULL DEFAULT '',
	requires_prescription {bool} NOT NULL DEFAULT FALSE,
	expiry_date_required {bool} NOT NULL DEFAULT FALSE,
	price {money} NOT NULL
);

CREATE TABLE IF NOT EXISTS inventory (
	id {id} PRIMARY KEY,
	product_id {id} NOT NULL REFERENCES products(id),
	quantity INTEGER NOT NULL CHECK (quantity >= 0),
	reorder_level INTEGER NOT NULL DEFAULT 0,
	location TEXT NOT NULL DEFAULT '',
	expiry_date {date},
	batch_label TEXT NOT NULL DEFAULT '',
	updated_at {ts} NOT NULL
);

CREATE INDEX IF NOT EXISTS inventory_product_idx ON inventory (product_id);

CREATE TABLE IF NOT EXISTS product_batches (
	id {id} PRIMARY KEY,
	product_id {id} NOT NULL REFERENCES products(id),
	batch_number TEXT NOT NULL,
	quantity INTEGER NOT NULL CHECK (quantity >= 0),
	selling_price {money} NOT NULL,
	expiry_date {date} NOT NULL,
	status TEXT NOT NULL,
	updated_at {ts} NOT NULL
);

CREATE TABLE IF NOT EXISTS customers (
	id {id} PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL DEFAULT '',
	created_at {ts} NOT NULL,
	updated_at {ts} NOT NULL
);

CREATE TABLE IF NOT EXISTS sales (
	id {id} PRIMARY KEY,
	customer_id {id} REFERENCES customers(id),
	total_amount {money} NOT NULL,
	payment_method TEXT NOT NULL,
	has_prescription {bool} NOT NULL DEFAULT FALSE,
	prescription TEXT,
	processed_by TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at {ts} NOT NULL
);

CREATE INDEX IF NOT EXISTS sales_created_at_idx ON sales (created_at);

CREATE TABLE IF NOT EXISTS sale_items (
	sale_id {id} NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
	line_no INTEGER NOT NULL,
	product_id {id} NOT NULL,
	inventory_id {id} NOT NULL,
	quantity INTEGER NOT NULL CHECK (quantity > 0),
	unit_price {money} NOT NULL,
	discount {money} NOT NULL,
	batch_id {id},
	batch_number TEXT,
	batch_expiry_date {date},
	PRIMARY KEY (sale_id, line_no)
);

CREATE TABLE IF NOT EXISTS app_users (
	username TEXT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL,
	active {bool} NOT NULL DEFAULT TRUE,
	created_at {ts} NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_logs (
	id {id} PRIMARY KEY,
	actor_username TEXT NOT NULL,
	actor_role TEXT NOT NULL,
	action TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	created_at {ts} NOT NULL
);

CREATE INDEX IF NOT EXISTS audit_logs_created_at_idx ON audit_logs (created_at);
`

// schema renders the statements for one dialect.
func schema(d Dialect) []string {
	types := dialectTypes[d]
	rendered := strings.NewReplacer(
		"{id}", types.id,
		"{money}", types.money,
		"{date}", types.date,
		"{ts}", types.timestamp,
		"{bool}", types.boolean,
	).Replace(schemaTemplate)

	var stmts []string
	for _, stmt := range strings.Split(rendered, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema(s.dialect) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i]
	}
	return stmt
}
