package models

import "fmt"

// Status is the processing state of a staged invoice.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusMatched    Status = "matched"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Statuses lists every valid status in lifecycle order.
var Statuses = []Status{StatusPending, StatusProcessing, StatusMatched, StatusCompleted, StatusError}

// ParseStatus rejects anything that is not a known status.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid invoice status: %q", s)
}

// PaymentMethod is the instrument used to pay an Amazon order.
type PaymentMethod string

const (
	PaymentCreditCard   PaymentMethod = "credit_card"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentPayPal       PaymentMethod = "paypal"
	PaymentGiftCard     PaymentMethod = "gift_card"
	PaymentPoints       PaymentMethod = "points"
	PaymentSplit        PaymentMethod = "split"
)

var paymentMethods = []PaymentMethod{
	PaymentCreditCard, PaymentBankTransfer, PaymentPayPal, PaymentGiftCard, PaymentPoints, PaymentSplit,
}

// ParsePaymentMethod rejects anything that is not a known payment method.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	for _, m := range paymentMethods {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("invalid payment method: %q", s)
}

// MatchType records how an item was tied to a stock record.
type MatchType string

const (
	MatchAuto   MatchType = "auto"
	MatchManual MatchType = "manual"
	MatchNew    MatchType = "new"
)

// ParseMatchType rejects anything that is not a known match type.
func ParseMatchType(s string) (MatchType, error) {
	switch MatchType(s) {
	case MatchAuto, MatchManual, MatchNew:
		return MatchType(s), nil
	}
	return "", fmt.Errorf("invalid match type: %q", s)
}

// Actor identifies who performed a mutating operation (audit "created_by").
type Actor string

// SystemActor is used when no user is attached to the call.
const SystemActor Actor = "system"

// OrSystem returns the actor, falling back to SystemActor when empty.
func (a Actor) OrSystem() Actor {
	if a == "" {
		return SystemActor
	}
	return a
}
