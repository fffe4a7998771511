package models

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

// Tolerance is the largest difference between two amounts still treated as equal.
var Tolerance = decimal.RequireFromString("0.01")

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

func withinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// Validate reports every violated invoice rule. The result is advisory: callers decide
// whether a non-empty list blocks anything.
func (inv *Invoice) Validate() []string {
	var errs []string

	if inv.InvoiceNumber == "" {
		errs = append(errs, "Invoice number is required")
	}
	if !inv.TotalAmount.IsPositive() {
		errs = append(errs, "Invoice total must be greater than zero")
	}
	if !currencyPattern.MatchString(inv.Currency) {
		errs = append(errs, fmt.Sprintf("Invalid currency code: %q", inv.Currency))
	}
	if len(inv.Items) > 0 {
		if sum := inv.ItemsTotal(); !withinTolerance(sum, inv.TotalAmount) {
			errs = append(errs, fmt.Sprintf("Item totals (%s) do not match invoice total (%s)",
				sum.StringFixed(2), inv.TotalAmount.StringFixed(2)))
		}
	}
	if len(inv.Payments) > 0 {
		if sum := inv.PaymentsTotal(); !withinTolerance(sum, inv.TotalAmount) {
			errs = append(errs, fmt.Sprintf("Payment totals (%s) do not match invoice total (%s)",
				sum.StringFixed(2), inv.TotalAmount.StringFixed(2)))
		}
	}
	return errs
}

// ReviewIssues lists what still blocks an invoice from being posted: unmatched items,
// unallocated payments and total mismatches.
func (inv *Invoice) ReviewIssues() []string {
	var issues []string
	if n := inv.UnmatchedItemCount(); n > 0 {
		issues = append(issues, fmt.Sprintf("%d item(s) not matched to stock", n))
	}
	if n := inv.UnallocatedPaymentCount(); n > 0 {
		issues = append(issues, fmt.Sprintf("%d payment(s) not allocated", n))
	}
	if len(inv.Items) > 0 {
		if sum := inv.ItemsTotal(); !withinTolerance(sum, inv.TotalAmount) {
			issues = append(issues, fmt.Sprintf("Item total %s differs from invoice total %s",
				sum.StringFixed(2), inv.TotalAmount.StringFixed(2)))
		}
	}
	if len(inv.Payments) > 0 {
		if sum := inv.PaymentsTotal(); !withinTolerance(sum, inv.TotalAmount) {
			issues = append(issues, fmt.Sprintf("Payment total %s differs from invoice total %s",
				sum.StringFixed(2), inv.TotalAmount.StringFixed(2)))
		}
	}
	return issues
}
