package staging

import (
	"context"
	"database/sql"
	"errors"

	"faimport/internal/database"
	"faimport/pkg/models"
)

// UnmatchedItems lists the invoice's items without a stock match, in line order.
func (r *Repository) UnmatchedItems(ctx context.Context, invoiceID int64) ([]*models.InvoiceItem, error) {
	return r.queryItems(ctx, "staging_invoice_id = ? AND fa_item_matched = 0", invoiceID)
}

// FindItem loads one item, or returns nil when it does not exist.
func (r *Repository) FindItem(ctx context.Context, itemID int64) (*models.InvoiceItem, error) {
	row := r.db.QueryRow(ctx, "SELECT "+itemColumns+" FROM "+r.db.Table(database.TableItems)+" WHERE id = ?", itemID)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return it, err
}

// MarkItemMatched ties an unmatched item to a stock record. Items that are already matched are
// left alone and false is returned.
func (r *Repository) MarkItemMatched(ctx context.Context, itemID int64, stockID string, matchType models.MatchType) (bool, error) {
	res, err := r.db.Exec(ctx, "UPDATE "+r.db.Table(database.TableItems)+
		" SET fa_stock_id = ?, item_match_type = ?, fa_item_matched = 1 WHERE id = ? AND fa_item_matched = 0",
		stockID, string(matchType), itemID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// AllocatePayment records the bank account and payment type for a payment and completes its
// allocation.
func (r *Repository) AllocatePayment(ctx context.Context, paymentID, bankAccount, paymentType int64, notes string) (bool, error) {
	res, err := r.db.Exec(ctx, "UPDATE "+r.db.Table(database.TablePayments)+
		" SET fa_bank_account = ?, fa_payment_type = ?, notes = ?, allocation_complete = 1 WHERE id = ?",
		bankAccount, paymentType, database.NullString(notes), paymentID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
