package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"faimport/internal/database"
	"faimport/pkg/models"
)

// Duplicate points at a staged invoice that looks like the candidate.
type Duplicate struct {
	InvoiceID     int64
	InvoiceNumber string
	Confidence    float64
}

// DuplicateFinder looks for a staged invoice that is the same purchase under another number.
type DuplicateFinder interface {
	FindDuplicate(ctx context.Context, inv *models.Invoice) (*Duplicate, error)
}

const (
	confidenceExact     = 1.0  // order, total and date agree
	confidenceOtherDate = 0.75 // order and total agree, date differs
)

// SQLDuplicateFinder fingerprints invoices by order number, total and date.
type SQLDuplicateFinder struct {
	gw database.Gateway
}

func NewSQLDuplicateFinder(gw database.Gateway) *SQLDuplicateFinder {
	return &SQLDuplicateFinder{gw: gw}
}

// FindDuplicate returns the best fingerprint hit, or nil. Invoices without an order number
// are never fingerprinted.
func (f *SQLDuplicateFinder) FindDuplicate(ctx context.Context, inv *models.Invoice) (*Duplicate, error) {
	const op = "FindDuplicate"

	order := normalizeOrder(inv.OrderNumber)
	if order == "" {
		return nil, nil
	}

	rows, err := f.gw.Query(ctx,
		"SELECT id, invoice_number, invoice_date, invoice_total FROM "+f.gw.Table(database.TableInvoices)+
			" WHERE UPPER(TRIM(order_number)) = ? ORDER BY id", order)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var best *Duplicate
	for rows.Next() {
		var (
			id     int64
			number string
			date   database.NullTime
			total  decimal.Decimal
		)
		if err := rows.Scan(&id, &number, &date, &total); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if !total.Equal(inv.TotalAmount) {
			continue
		}

		confidence := confidenceOtherDate
		if date.Valid && database.Date(date.Time) == database.Date(inv.InvoiceDate) {
			confidence = confidenceExact
		}
		if best == nil || confidence > best.Confidence {
			best = &Duplicate{InvoiceID: id, InvoiceNumber: number, Confidence: confidence}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return best, nil
}

func normalizeOrder(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
