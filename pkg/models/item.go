package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// InvoiceItem is one line of an Amazon invoice.
type InvoiceItem struct {
	ID         int64 `json:"id"`
	InvoiceID  int64 `json:"staging_invoice_id"`
	LineNumber int   `json:"line_number"` // 1-based, unique within the invoice

	ProductName string `json:"product_name"`
	ASIN        string `json:"asin,omitempty"`
	SKU         string `json:"sku,omitempty"`

	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
	TaxAmount  decimal.Decimal `json:"tax_amount"`

	// Stock matching
	FAStockID string    `json:"fa_stock_id,omitempty"`
	Matched   bool      `json:"fa_item_matched"`
	MatchType MatchType `json:"item_match_type,omitempty"`

	SupplierItemCode   string `json:"supplier_item_code,omitempty"`
	CategorySuggestion string `json:"category_suggestion,omitempty"`
	Notes              string `json:"notes,omitempty"`
}

// NewInvoiceItem builds an unmatched item whose total is quantity times unit price.
func NewInvoiceItem(productName string, quantity int, unitPrice decimal.Decimal) *InvoiceItem {
	return &InvoiceItem{
		ProductName: productName,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		TotalPrice:  unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
	}
}

// MatchToStock ties the item to a stock record.
func (it *InvoiceItem) MatchToStock(stockID string, matchType MatchType) {
	it.FAStockID = stockID
	it.MatchType = matchType
	it.Matched = true
}

// Validate reports every violated line rule; an empty result means the line is consistent.
func (it *InvoiceItem) Validate() []string {
	var errs []string
	if it.ProductName == "" {
		errs = append(errs, fmt.Sprintf("Line %d: product name is required", it.LineNumber))
	}
	if it.Quantity <= 0 {
		errs = append(errs, fmt.Sprintf("Line %d: quantity must be greater than zero", it.LineNumber))
	}
	if it.UnitPrice.IsNegative() {
		errs = append(errs, fmt.Sprintf("Line %d: unit price cannot be negative", it.LineNumber))
	}
	if it.TotalPrice.IsNegative() {
		errs = append(errs, fmt.Sprintf("Line %d: total price cannot be negative", it.LineNumber))
	}
	if it.TaxAmount.IsNegative() {
		errs = append(errs, fmt.Sprintf("Line %d: tax amount cannot be negative", it.LineNumber))
	}
	expected := it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
	if !withinTolerance(expected, it.TotalPrice) {
		errs = append(errs, fmt.Sprintf("Line %d: quantity x unit price (%s) does not match total price (%s)",
			it.LineNumber, expected.StringFixed(2), it.TotalPrice.StringFixed(2)))
	}
	return errs
}
