package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// ToMap flattens the invoice, its items and payments into column-keyed maps.
func (inv *Invoice) ToMap() map[string]any {
	items := make([]map[string]any, 0, len(inv.Items))
	for _, it := range inv.Items {
		items = append(items, it.ToMap())
	}
	payments := make([]map[string]any, 0, len(inv.Payments))
	for _, p := range inv.Payments {
		payments = append(payments, p.ToMap())
	}

	m := map[string]any{
		"id":              inv.ID,
		"invoice_number":  inv.InvoiceNumber,
		"order_number":    inv.OrderNumber,
		"invoice_date":    inv.InvoiceDate.Format(dateLayout),
		"invoice_total":   inv.TotalAmount.String(),
		"tax_amount":      inv.TaxAmount.String(),
		"shipping_amount": inv.ShippingAmount.String(),
		"currency":        inv.Currency,
		"pdf_path":        inv.PDFPath,
		"raw_data":        inv.RawData,
		"status":          string(inv.Status),
		"notes":           inv.Notes,
		"created_at":      inv.CreatedAt.Format(time.RFC3339),
		"items":           items,
		"payments":        payments,
	}
	if inv.ProcessedAt != nil {
		m["processed_at"] = inv.ProcessedAt.Format(time.RFC3339)
	}
	if inv.FATransNo != nil {
		m["fa_trans_no"] = *inv.FATransNo
	}
	return m
}

// ToMap flattens the item into a column-keyed map.
func (it *InvoiceItem) ToMap() map[string]any {
	return map[string]any{
		"id":                  it.ID,
		"staging_invoice_id":  it.InvoiceID,
		"line_number":         it.LineNumber,
		"product_name":        it.ProductName,
		"asin":                it.ASIN,
		"sku":                 it.SKU,
		"quantity":            it.Quantity,
		"unit_price":          it.UnitPrice.String(),
		"total_price":         it.TotalPrice.String(),
		"tax_amount":          it.TaxAmount.String(),
		"fa_stock_id":         it.FAStockID,
		"fa_item_matched":     it.Matched,
		"item_match_type":     string(it.MatchType),
		"supplier_item_code":  it.SupplierItemCode,
		"category_suggestion": it.CategorySuggestion,
		"notes":               it.Notes,
	}
}

// ToMap flattens the payment into a column-keyed map.
func (p *Payment) ToMap() map[string]any {
	m := map[string]any{
		"id":                  p.ID,
		"staging_invoice_id":  p.InvoiceID,
		"payment_method":      string(p.Method),
		"payment_reference":   p.Reference,
		"amount":              p.Amount.String(),
		"allocation_complete": p.AllocationComplete,
		"notes":               p.Notes,
	}
	if p.FABankAccount != nil {
		m["fa_bank_account"] = *p.FABankAccount
	}
	if p.FAPaymentType != nil {
		m["fa_payment_type"] = *p.FAPaymentType
	}
	return m
}

// InvoiceFromMap rebuilds an invoice from the shape produced by ToMap. Values may arrive as
// strings, JSON numbers or native Go types. Unknown status, payment method or match type values
// are rejected.
func InvoiceFromMap(m map[string]any) (*Invoice, error) {
	inv := &Invoice{
		ID:            asInt64(m["id"]),
		InvoiceNumber: asString(m["invoice_number"]),
		OrderNumber:   asString(m["order_number"]),
		Currency:      asString(m["currency"]),
		PDFPath:       asString(m["pdf_path"]),
		RawData:       asString(m["raw_data"]),
		Notes:         asString(m["notes"]),
		Status:        StatusPending,
	}

	var err error
	if inv.TotalAmount, err = asDecimal(m["invoice_total"]); err != nil {
		return nil, fmt.Errorf("invoice_total: %w", err)
	}
	if inv.TaxAmount, err = asDecimal(m["tax_amount"]); err != nil {
		return nil, fmt.Errorf("tax_amount: %w", err)
	}
	if inv.ShippingAmount, err = asDecimal(m["shipping_amount"]); err != nil {
		return nil, fmt.Errorf("shipping_amount: %w", err)
	}
	if inv.InvoiceDate, err = asTime(m["invoice_date"]); err != nil {
		return nil, fmt.Errorf("invoice_date: %w", err)
	}
	if s := asString(m["status"]); s != "" {
		if inv.Status, err = ParseStatus(s); err != nil {
			return nil, err
		}
	}
	if inv.CreatedAt, err = asTime(m["created_at"]); err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	if v, ok := m["processed_at"]; ok && v != nil {
		t, err := asTime(v)
		if err != nil {
			return nil, fmt.Errorf("processed_at: %w", err)
		}
		if !t.IsZero() {
			inv.ProcessedAt = &t
		}
	}
	if v, ok := m["fa_trans_no"]; ok && v != nil {
		n := asInt64(v)
		inv.FATransNo = &n
	}

	for i, raw := range asMapSlice(m["items"]) {
		it, err := itemFromMap(raw)
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, err)
		}
		inv.Items = append(inv.Items, it)
	}
	for i, raw := range asMapSlice(m["payments"]) {
		p, err := paymentFromMap(raw)
		if err != nil {
			return nil, fmt.Errorf("payments[%d]: %w", i, err)
		}
		inv.Payments = append(inv.Payments, p)
	}
	return inv, nil
}

func itemFromMap(m map[string]any) (*InvoiceItem, error) {
	it := &InvoiceItem{
		ID:                 asInt64(m["id"]),
		InvoiceID:          asInt64(m["staging_invoice_id"]),
		LineNumber:         int(asInt64(m["line_number"])),
		ProductName:        asString(m["product_name"]),
		ASIN:               asString(m["asin"]),
		SKU:                asString(m["sku"]),
		Quantity:           int(asInt64(m["quantity"])),
		FAStockID:          asString(m["fa_stock_id"]),
		Matched:            asBool(m["fa_item_matched"]),
		SupplierItemCode:   asString(m["supplier_item_code"]),
		CategorySuggestion: asString(m["category_suggestion"]),
		Notes:              asString(m["notes"]),
	}
	var err error
	if it.UnitPrice, err = asDecimal(m["unit_price"]); err != nil {
		return nil, fmt.Errorf("unit_price: %w", err)
	}
	if it.TotalPrice, err = asDecimal(m["total_price"]); err != nil {
		return nil, fmt.Errorf("total_price: %w", err)
	}
	if it.TaxAmount, err = asDecimal(m["tax_amount"]); err != nil {
		return nil, fmt.Errorf("tax_amount: %w", err)
	}
	if s := asString(m["item_match_type"]); s != "" {
		if it.MatchType, err = ParseMatchType(s); err != nil {
			return nil, err
		}
	}
	return it, nil
}

func paymentFromMap(m map[string]any) (*Payment, error) {
	method, err := ParsePaymentMethod(asString(m["payment_method"]))
	if err != nil {
		return nil, err
	}
	p := &Payment{
		ID:                 asInt64(m["id"]),
		InvoiceID:          asInt64(m["staging_invoice_id"]),
		Method:             method,
		Reference:          asString(m["payment_reference"]),
		AllocationComplete: asBool(m["allocation_complete"]),
		Notes:              asString(m["notes"]),
	}
	if p.Amount, err = asDecimal(m["amount"]); err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	if v, ok := m["fa_bank_account"]; ok && v != nil {
		n := asInt64(v)
		p.FABankAccount = &n
	}
	if v, ok := m["fa_payment_type"]; ok && v != nil {
		n := asInt64(v)
		p.FAPaymentType = &n
	}
	return p, nil
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int64:
		return t
	case int32:
		return int64(t)
	case float64:
		return int64(t)
	case json.Number:
		n, _ := t.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	}
	return 0
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int, int64, float64:
		return asInt64(t) != 0
	case string:
		b, _ := strconv.ParseBool(t)
		return b || t == "1"
	}
	return false
}

func asDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return t, nil
	case float64:
		return decimal.NewFromFloat(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case json.Number:
		return decimal.NewFromString(t.String())
	case string:
		if t == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(t)
	}
	return decimal.Zero, fmt.Errorf("unsupported amount type %T", v)
}

func asTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t, nil
	case string:
		if t == "" {
			return time.Time{}, nil
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", dateLayout} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("unable to parse time: %s", t)
	}
	return time.Time{}, fmt.Errorf("unsupported time type %T", v)
}

func asMapSlice(v any) []map[string]any {
	switch t := v.(type) {
	case []map[string]any:
		return t
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, e := range t {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}
