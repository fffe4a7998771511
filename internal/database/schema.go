package database

import (
	"context"
	"fmt"
	"strings"
)

// Plugin tables, without the company prefix.
const (
	TableInvoices = "amazon_invoices_staging"
	TableItems    = "amazon_invoice_items_staging"
	TablePayments = "amazon_payment_staging"
	TableRules    = "amazon_item_matching_rules"
	TableLog      = "amazon_processing_log"

	// TableStock belongs to FrontAccounting; it is only created for SQLite.
	TableStock = "stock_master"
)

type index struct {
	name    string
	columns string
	unique  bool
}

type tableDef struct {
	name    string
	columns []string
	indexes []index
	// hostOwned tables exist already in a FrontAccounting database.
	hostOwned bool
}

// $PK and $INV are replaced per dialect and prefix.
var tables = []tableDef{
	{
		name: TableInvoices,
		columns: []string{
			"id $PK",
			"invoice_number VARCHAR(50) NOT NULL",
			"order_number VARCHAR(50) NOT NULL DEFAULT ''",
			"invoice_date DATE NOT NULL",
			"invoice_total DECIMAL(15,2) NOT NULL DEFAULT 0",
			"tax_amount DECIMAL(15,2) NOT NULL DEFAULT 0",
			"shipping_amount DECIMAL(15,2) NOT NULL DEFAULT 0",
			"currency CHAR(3) NOT NULL DEFAULT 'USD'",
			"pdf_path VARCHAR(255) NULL",
			"raw_data TEXT NULL",
			"status VARCHAR(20) NOT NULL DEFAULT 'pending'",
			"notes TEXT NULL",
			"created_at DATETIME NOT NULL",
			"processed_at DATETIME NULL",
			"fa_trans_no INT NULL",
		},
		indexes: []index{
			{name: "uk_invoice_number", columns: "invoice_number", unique: true},
			{name: "idx_order_number", columns: "order_number"},
			{name: "idx_status", columns: "status"},
			{name: "idx_invoice_date", columns: "invoice_date"},
		},
	},
	{
		name: TableItems,
		columns: []string{
			"id $PK",
			"staging_invoice_id INT NOT NULL REFERENCES $INV(id)",
			"line_number INT NOT NULL",
			"product_name VARCHAR(500) NOT NULL",
			"asin VARCHAR(20) NULL",
			"sku VARCHAR(50) NULL",
			"quantity INT NOT NULL DEFAULT 1",
			"unit_price DECIMAL(15,2) NOT NULL DEFAULT 0",
			"total_price DECIMAL(15,2) NOT NULL DEFAULT 0",
			"tax_amount DECIMAL(15,2) NOT NULL DEFAULT 0",
			"fa_stock_id VARCHAR(20) NULL",
			"fa_item_matched TINYINT(1) NOT NULL DEFAULT 0",
			"item_match_type VARCHAR(10) NULL",
			"supplier_item_code VARCHAR(50) NULL",
			"category_suggestion VARCHAR(100) NULL",
			"notes TEXT NULL",
		},
		indexes: []index{
			{name: "idx_items_invoice", columns: "staging_invoice_id, line_number"},
			{name: "idx_items_asin", columns: "asin"},
		},
	},
	{
		name: TablePayments,
		columns: []string{
			"id $PK",
			"staging_invoice_id INT NOT NULL REFERENCES $INV(id)",
			"payment_method VARCHAR(20) NOT NULL",
			"payment_reference VARCHAR(100) NULL",
			"amount DECIMAL(15,2) NOT NULL DEFAULT 0",
			"fa_bank_account INT NULL",
			"fa_payment_type INT NULL",
			"allocation_complete TINYINT(1) NOT NULL DEFAULT 0",
			"notes TEXT NULL",
		},
		indexes: []index{
			{name: "idx_payments_invoice", columns: "staging_invoice_id"},
		},
	},
	{
		name: TableRules,
		columns: []string{
			"id $PK",
			"match_type VARCHAR(20) NOT NULL",
			"match_value VARCHAR(255) NOT NULL",
			"fa_stock_id VARCHAR(20) NOT NULL",
			"priority INT NOT NULL DEFAULT 1",
			"active TINYINT(1) NOT NULL DEFAULT 1",
			"created_by VARCHAR(60) NULL",
			"created_at DATETIME NOT NULL",
		},
		indexes: []index{
			{name: "idx_rules_lookup", columns: "match_type, match_value"},
			{name: "idx_rules_priority", columns: "priority"},
		},
	},
	{
		name: TableLog,
		columns: []string{
			"id $PK",
			"staging_invoice_id INT NOT NULL",
			"action VARCHAR(50) NOT NULL",
			"details TEXT NULL",
			"created_by VARCHAR(60) NULL",
			"created_at DATETIME NOT NULL",
		},
		indexes: []index{
			{name: "idx_log_invoice", columns: "staging_invoice_id"},
		},
	},
	{
		name:      TableStock,
		hostOwned: true,
		columns: []string{
			"stock_id VARCHAR(20) NOT NULL PRIMARY KEY",
			"description VARCHAR(200) NOT NULL DEFAULT ''",
			"long_description TEXT NULL",
			"units VARCHAR(20) NOT NULL DEFAULT 'each'",
			"inactive TINYINT(1) NOT NULL DEFAULT 0",
		},
	},
}

// Statements returns the DDL creating every plugin table for the gateway's dialect.
func Statements(gw Gateway) []string {
	var pk, suffix string
	switch gw.Dialect() {
	case MySQL:
		pk = "INT AUTO_INCREMENT PRIMARY KEY"
		suffix = " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4"
	default:
		pk = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	r := strings.NewReplacer("$PK", pk, "$INV", gw.Table(TableInvoices))

	var stmts []string
	for _, t := range tables {
		if t.hostOwned && gw.Dialect() == MySQL {
			continue
		}
		name := gw.Table(t.name)
		defs := make([]string, 0, len(t.columns)+len(t.indexes))
		for _, c := range t.columns {
			defs = append(defs, r.Replace(c))
		}

		// MySQL has no CREATE INDEX IF NOT EXISTS, so its keys go inline.
		if gw.Dialect() == MySQL {
			for _, ix := range t.indexes {
				kind := "KEY"
				if ix.unique {
					kind = "UNIQUE KEY"
				}
				defs = append(defs, fmt.Sprintf("%s %s (%s)", kind, ix.name, ix.columns))
			}
		}

		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)%s",
			name, strings.Join(defs, ",\n  "), suffix))

		if gw.Dialect() != MySQL {
			for _, ix := range t.indexes {
				unique := ""
				if ix.unique {
					unique = "UNIQUE "
				}
				stmts = append(stmts, fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
					unique, gw.Table(ix.name), name, ix.columns))
			}
		}
	}
	return stmts
}

// Migrate creates the plugin tables if they do not exist.
func Migrate(ctx context.Context, gw Gateway) error {
	const op = "Migrate"
	for _, stmt := range Statements(gw) {
		if _, err := gw.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}
