package models

import "github.com/shopspring/decimal"

// Payment is one payment instrument applied to an invoice.
type Payment struct {
	ID        int64 `json:"id"`
	InvoiceID int64 `json:"staging_invoice_id"`

	Method    PaymentMethod   `json:"payment_method"`
	Reference string          `json:"payment_reference,omitempty"` // e.g. "Visa ending in 1234"
	Amount    decimal.Decimal `json:"amount"`

	// Allocation into the ledger
	FABankAccount      *int64 `json:"fa_bank_account,omitempty"`
	FAPaymentType      *int64 `json:"fa_payment_type,omitempty"`
	AllocationComplete bool   `json:"allocation_complete"`
	Notes              string `json:"notes,omitempty"`
}

// NewPayment validates the method string before building the payment.
func NewPayment(method string, amount decimal.Decimal, reference string) (*Payment, error) {
	m, err := ParsePaymentMethod(method)
	if err != nil {
		return nil, err
	}
	return &Payment{Method: m, Amount: amount, Reference: reference}, nil
}

// Allocate assigns the bank account and payment type and marks the allocation complete.
func (p *Payment) Allocate(bankAccount, paymentType int64, notes string) {
	p.FABankAccount = &bankAccount
	p.FAPaymentType = &paymentType
	p.Notes = notes
	p.AllocationComplete = true
}
