package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice is one imported Amazon purchase invoice held in staging.
type Invoice struct {
	// Identity
	ID            int64  `json:"id"`             // Staging id, 0 until first save
	InvoiceNumber string `json:"invoice_number"` // Amazon invoice number (unique business key)
	OrderNumber   string `json:"order_number"`   // Amazon order number

	InvoiceDate time.Time `json:"invoice_date"`

	// Amounts
	TotalAmount    decimal.Decimal `json:"invoice_total"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	ShippingAmount decimal.Decimal `json:"shipping_amount"`
	Currency       string          `json:"currency"` // ISO 4217 code

	// Source
	PDFPath string `json:"pdf_path,omitempty"`
	RawData string `json:"raw_data,omitempty"` // Original JSON/HTML/text payload

	// Processing
	Status      Status     `json:"status"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	FATransNo   *int64     `json:"fa_trans_no,omitempty"` // Ledger transaction once posted

	Items    []*InvoiceItem `json:"items"`
	Payments []*Payment     `json:"payments"`
}

// NewInvoice creates a pending invoice with no lines.
func NewInvoice(invoiceNumber, orderNumber string, invoiceDate time.Time, total decimal.Decimal, currency string) *Invoice {
	return &Invoice{
		InvoiceNumber: invoiceNumber,
		OrderNumber:   orderNumber,
		InvoiceDate:   invoiceDate,
		TotalAmount:   total,
		Currency:      currency,
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
}

// IsPersisted reports whether the invoice has been assigned a staging id.
func (inv *Invoice) IsPersisted() bool {
	return inv.ID > 0
}

// AddItem appends an item, numbering it after the current last line.
func (inv *Invoice) AddItem(item *InvoiceItem) {
	next := 1
	for _, it := range inv.Items {
		if it.LineNumber >= next {
			next = it.LineNumber + 1
		}
	}
	item.LineNumber = next
	item.InvoiceID = inv.ID
	inv.Items = append(inv.Items, item)
}

// AddPayment appends a payment.
func (inv *Invoice) AddPayment(p *Payment) {
	p.InvoiceID = inv.ID
	inv.Payments = append(inv.Payments, p)
}

// ItemsTotal sums the total price of every item.
func (inv *Invoice) ItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range inv.Items {
		sum = sum.Add(it.TotalPrice)
	}
	return sum
}

// PaymentsTotal sums the amount of every payment.
func (inv *Invoice) PaymentsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range inv.Payments {
		sum = sum.Add(p.Amount)
	}
	return sum
}

// UnmatchedItemCount counts items without a stock match.
func (inv *Invoice) UnmatchedItemCount() int {
	n := 0
	for _, it := range inv.Items {
		if !it.Matched {
			n++
		}
	}
	return n
}

// UnallocatedPaymentCount counts payments not yet allocated to a bank account.
func (inv *Invoice) UnallocatedPaymentCount() int {
	n := 0
	for _, p := range inv.Payments {
		if !p.AllocationComplete {
			n++
		}
	}
	return n
}

// Duplicate returns a deep copy with a fresh identity: the invoice, its items and its
// payments carry no ids and the copy has not been processed or posted.
func (inv *Invoice) Duplicate() *Invoice {
	cp := *inv
	cp.ID = 0
	cp.ProcessedAt = nil
	cp.FATransNo = nil
	cp.CreatedAt = time.Now().UTC()

	cp.Items = make([]*InvoiceItem, 0, len(inv.Items))
	for _, it := range inv.Items {
		c := *it
		c.ID = 0
		c.InvoiceID = 0
		cp.Items = append(cp.Items, &c)
	}

	cp.Payments = make([]*Payment, 0, len(inv.Payments))
	for _, p := range inv.Payments {
		c := *p
		c.ID = 0
		c.InvoiceID = 0
		if p.FABankAccount != nil {
			v := *p.FABankAccount
			c.FABankAccount = &v
		}
		if p.FAPaymentType != nil {
			v := *p.FAPaymentType
			c.FAPaymentType = &v
		}
		cp.Payments = append(cp.Payments, &c)
	}
	return &cp
}
