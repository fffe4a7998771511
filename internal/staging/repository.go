// Package staging persists imported invoices, their items and payments in the plugin's staging
// tables, together with the append-only processing log.
package staging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"faimport/internal/database"
	"faimport/internal/logger"
	"faimport/internal/metrics"
	"faimport/pkg/models"
)

const invoiceColumns = `id, invoice_number, order_number, invoice_date, invoice_total, tax_amount,
	shipping_amount, currency, pdf_path, raw_data, status, notes, created_at, processed_at, fa_trans_no`

const itemColumns = `id, staging_invoice_id, line_number, product_name, asin, sku, quantity, unit_price,
	total_price, tax_amount, fa_stock_id, fa_item_matched, item_match_type, supplier_item_code,
	category_suggestion, notes`

const paymentColumns = `id, staging_invoice_id, payment_method, payment_reference, amount,
	fa_bank_account, fa_payment_type, allocation_complete, notes`

// Repository stores Invoice aggregates across the header, item and payment tables.
type Repository struct {
	db  database.Gateway
	log zerolog.Logger
}

func NewRepository(db database.Gateway) *Repository {
	return &Repository{db: db, log: logger.WithComponent("staging")}
}

type scanner interface {
	Scan(dest ...any) error
}

// Save inserts a new invoice or updates an existing one, then replaces all of its items and
// payments. Everything happens in one transaction; on failure nothing is written and the
// invoice, its items and its payments keep the ids they had before the call.
func (r *Repository) Save(ctx context.Context, inv *models.Invoice) (*models.Invoice, error) {
	if inv == nil {
		return nil, &RepositoryError{Op: "save invoice", Err: ErrNilInvoice}
	}

	wasNew := !inv.IsPersisted()
	ids := snapshotIDs(inv)
	err := r.db.InTx(ctx, func(tx database.Gateway) error {
		if wasNew {
			if err := r.insertHeader(ctx, tx, inv); err != nil {
				return err
			}
		} else if err := r.updateHeader(ctx, tx, inv); err != nil {
			return err
		}
		return r.replaceChildren(ctx, tx, inv)
	})
	if err != nil {
		ids.restore(inv)
		metrics.RepositoryFailures.WithLabelValues("save").Inc()
		r.log.Error().Err(err).Str("invoice_number", inv.InvoiceNumber).Msg("Invoice save rolled back")
		return nil, &RepositoryError{Op: "save invoice", Err: err}
	}

	r.log.Debug().
		Int64("invoice_id", inv.ID).
		Int("items", len(inv.Items)).
		Int("payments", len(inv.Payments)).
		Msg("Invoice saved")
	return inv, nil
}

// savedIDs remembers the identity of an aggregate so a rolled-back save can undo the ids
// assigned inside the transaction.
type savedIDs struct {
	invoice  int64
	items    [][2]int64 // id, invoice id
	payments [][2]int64
}

func snapshotIDs(inv *models.Invoice) savedIDs {
	s := savedIDs{invoice: inv.ID}
	for _, it := range inv.Items {
		s.items = append(s.items, [2]int64{it.ID, it.InvoiceID})
	}
	for _, p := range inv.Payments {
		s.payments = append(s.payments, [2]int64{p.ID, p.InvoiceID})
	}
	return s
}

func (s savedIDs) restore(inv *models.Invoice) {
	inv.ID = s.invoice
	for i, it := range inv.Items {
		it.ID, it.InvoiceID = s.items[i][0], s.items[i][1]
	}
	for i, p := range inv.Payments {
		p.ID, p.InvoiceID = s.payments[i][0], s.payments[i][1]
	}
}

func (r *Repository) insertHeader(ctx context.Context, tx database.Gateway, inv *models.Invoice) error {
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = database.Now()
	}
	if inv.Status == "" {
		inv.Status = models.StatusPending
	}
	res, err := tx.Exec(ctx, "INSERT INTO "+tx.Table(database.TableInvoices)+` (
		invoice_number, order_number, invoice_date, invoice_total, tax_amount, shipping_amount,
		currency, pdf_path, raw_data, status, notes, created_at, processed_at, fa_trans_no
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.InvoiceNumber, inv.OrderNumber, database.Date(inv.InvoiceDate),
		inv.TotalAmount, inv.TaxAmount, inv.ShippingAmount, inv.Currency,
		database.NullString(inv.PDFPath), database.NullString(inv.RawData),
		string(inv.Status), database.NullString(inv.Notes),
		database.Timestamp(inv.CreatedAt), database.NullTimePtr(inv.ProcessedAt), database.NullInt64(inv.FATransNo),
	)
	if err != nil {
		return fmt.Errorf("insert header: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert header: %w", err)
	}
	inv.ID = id
	return nil
}

func (r *Repository) updateHeader(ctx context.Context, tx database.Gateway, inv *models.Invoice) error {
	res, err := tx.Exec(ctx, "UPDATE "+tx.Table(database.TableInvoices)+` SET
		invoice_number = ?, order_number = ?, invoice_date = ?, invoice_total = ?, tax_amount = ?,
		shipping_amount = ?, currency = ?, pdf_path = ?, raw_data = ?, status = ?, notes = ?,
		processed_at = ?, fa_trans_no = ?
	WHERE id = ?`,
		inv.InvoiceNumber, inv.OrderNumber, database.Date(inv.InvoiceDate),
		inv.TotalAmount, inv.TaxAmount, inv.ShippingAmount, inv.Currency,
		database.NullString(inv.PDFPath), database.NullString(inv.RawData),
		string(inv.Status), database.NullString(inv.Notes),
		database.NullTimePtr(inv.ProcessedAt), database.NullInt64(inv.FATransNo),
		inv.ID,
	)
	if err != nil {
		return fmt.Errorf("update header: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update header %d: %w", inv.ID, ErrInvoiceNotFound)
	}
	return nil
}

// replaceChildren drops every stored item and payment and writes the in-memory collections.
func (r *Repository) replaceChildren(ctx context.Context, tx database.Gateway, inv *models.Invoice) error {
	if _, err := tx.Exec(ctx, "DELETE FROM "+tx.Table(database.TableItems)+" WHERE staging_invoice_id = ?", inv.ID); err != nil {
		return fmt.Errorf("delete items: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM "+tx.Table(database.TablePayments)+" WHERE staging_invoice_id = ?", inv.ID); err != nil {
		return fmt.Errorf("delete payments: %w", err)
	}

	insertItem := "INSERT INTO " + tx.Table(database.TableItems) + ` (
		staging_invoice_id, line_number, product_name, asin, sku, quantity, unit_price, total_price,
		tax_amount, fa_stock_id, fa_item_matched, item_match_type, supplier_item_code,
		category_suggestion, notes
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, it := range inv.Items {
		res, err := tx.Exec(ctx, insertItem,
			inv.ID, it.LineNumber, it.ProductName, database.NullString(it.ASIN), database.NullString(it.SKU),
			it.Quantity, it.UnitPrice, it.TotalPrice, it.TaxAmount,
			database.NullString(it.FAStockID), it.Matched, database.NullString(string(it.MatchType)),
			database.NullString(it.SupplierItemCode), database.NullString(it.CategorySuggestion),
			database.NullString(it.Notes),
		)
		if err != nil {
			return fmt.Errorf("insert item %d: %w", it.LineNumber, err)
		}
		if it.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("insert item %d: %w", it.LineNumber, err)
		}
		it.InvoiceID = inv.ID
	}

	insertPayment := "INSERT INTO " + tx.Table(database.TablePayments) + ` (
		staging_invoice_id, payment_method, payment_reference, amount, fa_bank_account,
		fa_payment_type, allocation_complete, notes
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	for i, p := range inv.Payments {
		res, err := tx.Exec(ctx, insertPayment,
			inv.ID, string(p.Method), database.NullString(p.Reference), p.Amount,
			database.NullInt64(p.FABankAccount), database.NullInt64(p.FAPaymentType),
			p.AllocationComplete, database.NullString(p.Notes),
		)
		if err != nil {
			return fmt.Errorf("insert payment %d: %w", i+1, err)
		}
		if p.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("insert payment %d: %w", i+1, err)
		}
		p.InvoiceID = inv.ID
	}
	return nil
}

// FindByID loads the invoice with its items and payments, or returns nil when it does not exist.
func (r *Repository) FindByID(ctx context.Context, id int64) (*models.Invoice, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByInvoiceNumber loads the invoice with the given Amazon invoice number, or nil.
func (r *Repository) FindByInvoiceNumber(ctx context.Context, invoiceNumber string) (*models.Invoice, error) {
	return r.findOne(ctx, "invoice_number = ?", invoiceNumber)
}

func (r *Repository) findOne(ctx context.Context, where string, args ...any) (*models.Invoice, error) {
	row := r.db.QueryRow(ctx, "SELECT "+invoiceColumns+" FROM "+r.db.Table(database.TableInvoices)+" WHERE "+where, args...)
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// FindByStatus lists invoices in a status, newest first. A limit of zero means no limit.
func (r *Repository) FindByStatus(ctx context.Context, status models.Status, limit int) ([]*models.Invoice, error) {
	return r.FindAll(ctx, Filter{Status: status}, limit, 0)
}

// FindByDateRange lists invoices dated within [start, end], latest invoice date first.
func (r *Repository) FindByDateRange(ctx context.Context, start, end time.Time, limit int) ([]*models.Invoice, error) {
	f := Filter{DateFrom: start, DateTo: end}
	where, args := f.where()
	q := "SELECT " + invoiceColumns + " FROM " + r.db.Table(database.TableInvoices) + where +
		" ORDER BY invoice_date DESC, id DESC" + limitClause(limit, 0)
	return r.findMany(ctx, q, args...)
}

// FindAll lists invoices matching f, newest first.
func (r *Repository) FindAll(ctx context.Context, f Filter, limit, offset int) ([]*models.Invoice, error) {
	where, args := f.where()
	q := "SELECT " + invoiceColumns + " FROM " + r.db.Table(database.TableInvoices) + where +
		" ORDER BY created_at DESC, id DESC" + limitClause(limit, offset)
	return r.findMany(ctx, q, args...)
}

// Count returns how many invoices match f.
func (r *Repository) Count(ctx context.Context, f Filter) (int, error) {
	where, args := f.where()
	var n int
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM "+r.db.Table(database.TableInvoices)+where, args...).Scan(&n)
	return n, err
}

// findMany reads all headers before loading children so no result set stays open while the
// child queries run.
func (r *Repository) findMany(ctx context.Context, query string, args ...any) ([]*models.Invoice, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var invoices []*models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, inv := range invoices {
		if err := r.loadChildren(ctx, inv); err != nil {
			return nil, err
		}
	}
	return invoices, nil
}

func (r *Repository) loadChildren(ctx context.Context, inv *models.Invoice) error {
	items, err := r.queryItems(ctx, "staging_invoice_id = ?", inv.ID)
	if err != nil {
		return err
	}
	inv.Items = items

	rows, err := r.db.Query(ctx, "SELECT "+paymentColumns+" FROM "+r.db.Table(database.TablePayments)+
		" WHERE staging_invoice_id = ? ORDER BY id", inv.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	inv.Payments = nil
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return err
		}
		inv.Payments = append(inv.Payments, p)
	}
	return rows.Err()
}

func (r *Repository) queryItems(ctx context.Context, where string, args ...any) ([]*models.InvoiceItem, error) {
	rows, err := r.db.Query(ctx, "SELECT "+itemColumns+" FROM "+r.db.Table(database.TableItems)+
		" WHERE "+where+" ORDER BY line_number, id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.InvoiceItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// UpdateStatus changes the status and stamps processed_at. Empty notes and a nil transaction
// number leave the stored values untouched. It reports whether the invoice exists.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status models.Status, notes string, transNo *int64) (bool, error) {
	if _, err := models.ParseStatus(string(status)); err != nil {
		return false, err
	}
	res, err := r.db.Exec(ctx, "UPDATE "+r.db.Table(database.TableInvoices)+
		" SET status = ?, processed_at = ?, notes = COALESCE(?, notes), fa_trans_no = COALESCE(?, fa_trans_no) WHERE id = ?",
		string(status), database.Now(), database.NullString(notes), database.NullInt64(transNo), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Delete removes the invoice and its payments and items in one transaction. It reports whether
// the invoice existed.
func (r *Repository) Delete(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := r.db.InTx(ctx, func(tx database.Gateway) error {
		if _, err := tx.Exec(ctx, "DELETE FROM "+tx.Table(database.TablePayments)+" WHERE staging_invoice_id = ?", id); err != nil {
			return fmt.Errorf("delete payments: %w", err)
		}
		if _, err := tx.Exec(ctx, "DELETE FROM "+tx.Table(database.TableItems)+" WHERE staging_invoice_id = ?", id); err != nil {
			return fmt.Errorf("delete items: %w", err)
		}
		res, err := tx.Exec(ctx, "DELETE FROM "+tx.Table(database.TableInvoices)+" WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("delete header: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete header: %w", err)
		}
		deleted = n > 0
		return nil
	})
	if err != nil {
		metrics.RepositoryFailures.WithLabelValues("delete").Inc()
		r.log.Error().Err(err).Int64("invoice_id", id).Msg("Invoice delete rolled back")
		return false, &RepositoryError{Op: "delete invoice", Err: err}
	}
	return deleted, nil
}

// ExistsByInvoiceNumber reports whether an invoice with the number is staged.
func (r *Repository) ExistsByInvoiceNumber(ctx context.Context, invoiceNumber string) (bool, error) {
	var n int
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM "+r.db.Table(database.TableInvoices)+
		" WHERE invoice_number = ?", invoiceNumber).Scan(&n)
	return n > 0, err
}

func limitClause(limit, offset int) string {
	if limit <= 0 && offset <= 0 {
		return ""
	}
	if limit <= 0 {
		limit = 1<<31 - 1
	}
	if offset < 0 {
		offset = 0
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
}

func scanInvoice(s scanner) (*models.Invoice, error) {
	var (
		inv                      models.Invoice
		date, created, processed database.NullTime
		pdfPath, rawData, notes  sql.NullString
		status                   string
		transNo                  sql.NullInt64
	)
	err := s.Scan(
		&inv.ID, &inv.InvoiceNumber, &inv.OrderNumber, &date, &inv.TotalAmount, &inv.TaxAmount,
		&inv.ShippingAmount, &inv.Currency, &pdfPath, &rawData, &status, &notes,
		&created, &processed, &transNo,
	)
	if err != nil {
		return nil, err
	}
	inv.InvoiceDate = date.Time
	inv.CreatedAt = created.Time
	inv.ProcessedAt = processed.Ptr()
	inv.PDFPath = pdfPath.String
	inv.RawData = rawData.String
	inv.Notes = notes.String
	inv.Status = models.Status(status)
	if transNo.Valid {
		n := transNo.Int64
		inv.FATransNo = &n
	}
	return &inv, nil
}

func scanItem(s scanner) (*models.InvoiceItem, error) {
	var (
		it                                   models.InvoiceItem
		asin, sku, stockID, matchType        sql.NullString
		supplierCode, categorySuggest, notes sql.NullString
	)
	err := s.Scan(
		&it.ID, &it.InvoiceID, &it.LineNumber, &it.ProductName, &asin, &sku, &it.Quantity,
		&it.UnitPrice, &it.TotalPrice, &it.TaxAmount, &stockID, &it.Matched, &matchType,
		&supplierCode, &categorySuggest, &notes,
	)
	if err != nil {
		return nil, err
	}
	it.ASIN = asin.String
	it.SKU = sku.String
	it.FAStockID = stockID.String
	it.MatchType = models.MatchType(matchType.String)
	it.SupplierItemCode = supplierCode.String
	it.CategorySuggestion = categorySuggest.String
	it.Notes = notes.String
	return &it, nil
}

func scanPayment(s scanner) (*models.Payment, error) {
	var (
		p                 models.Payment
		method            string
		reference, notes  sql.NullString
		bank, paymentType sql.NullInt64
	)
	err := s.Scan(
		&p.ID, &p.InvoiceID, &method, &reference, &p.Amount, &bank, &paymentType,
		&p.AllocationComplete, &notes,
	)
	if err != nil {
		return nil, err
	}
	p.Method = models.PaymentMethod(method)
	p.Reference = reference.String
	p.Notes = notes.String
	if bank.Valid {
		n := bank.Int64
		p.FABankAccount = &n
	}
	if paymentType.Valid {
		n := paymentType.Int64
		p.FAPaymentType = &n
	}
	return &p, nil
}
