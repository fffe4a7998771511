package extraction

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"faimport/pkg/models"
)

const amountPattern = `(-?\(?-?[$€£]?\s?\d[\d.,]*\)?(?:\s?[$€£])?)`

var (
	reInvoiceNumber = regexp.MustCompile(`(?im)^\s*invoice\s*(?:number|no\.?|#)\s*[:#]?\s*([A-Za-z0-9][A-Za-z0-9-]*)`)
	reOrderNumber   = regexp.MustCompile(`(?im)order\s*(?:number|no\.?|#|id)\s*[:#]?\s*([A-Za-z0-9][A-Za-z0-9-]*)`)
	reAmazonOrderID = regexp.MustCompile(`\b\d{3}-\d{7}-\d{7}\b`)
	reDate          = regexp.MustCompile(`(?im)^\s*(?:invoice date|order date|order placed|date)\s*:?\s*(.+?)\s*$`)
	reCurrency      = regexp.MustCompile(`(?im)^\s*currency\s*:?\s*([A-Za-z]{3})\b`)
	reShipping      = regexp.MustCompile(`(?im)^\s*shipping(?:\s*(?:&|and)\s*handling)?\s*:?\s*` + amountPattern + `\s*$`)
	reTax           = regexp.MustCompile(`(?im)^\s*(?:estimated tax(?: to be collected)?|sales tax|tax|vat)\s*:?\s*` + amountPattern + `\s*$`)
	reItem          = regexp.MustCompile(`(?i)^\s*(\d+)\s+of:\s+(.+?)\s+` + amountPattern + `\s*$`)
	reASIN          = regexp.MustCompile(`(?i)^\s*ASIN\s*:\s*([A-Z0-9]{10})\b`)
	reSKU           = regexp.MustCompile(`(?i)^\s*SKU\s*:\s*(\S+)`)
	reCard          = regexp.MustCompile(`(?i)\b(visa|mastercard|american express|amex|discover)\s+ending in\s+(\d{4})`)
	reGiftCard      = regexp.MustCompile(`(?im)^\s*gift card(?: amount| balance)?\s*:?\s*` + amountPattern + `\s*$`)
	rePayPal        = regexp.MustCompile(`(?i)\bpaypal\b`)

	// Checked in order; the first label present wins.
	totalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?im)^\s*grand total\s*:?\s*` + amountPattern + `\s*$`),
		regexp.MustCompile(`(?im)^\s*invoice total\s*:?\s*` + amountPattern + `\s*$`),
		regexp.MustCompile(`(?im)^\s*order total\s*:?\s*` + amountPattern + `\s*$`),
		regexp.MustCompile(`(?im)^\s*total\s*:?\s*` + amountPattern + `\s*$`),
	}
)

// TextParser reads Amazon invoices and order confirmations laid out as plain text:
//
//	Invoice Number: AMZ-2024-0001
//	Order Number: 112-1234567-1234567
//	Invoice Date: January 15, 2024
//	2 of: Anker USB Cable 2m   $9.99
//	  ASIN: B00TEST001
//	Shipping & Handling: $5.99
//	Grand Total: $54.03
//	Payment Method: Visa ending in 1234
//
// Item prices are unit prices. Order confirmations carry no invoice number, so the order
// number stands in for it.
type TextParser struct{}

func NewTextParser() *TextParser {
	return &TextParser{}
}

func (p *TextParser) Name() string { return "text" }

func (p *TextParser) Extract(ctx context.Context, doc Document) (*models.Invoice, error) {
	const op = "Extract"

	if strings.TrimSpace(doc.Text) == "" {
		return nil, WrapExtractionError(op, p.Name(), ErrNoText, doc.Source)
	}
	inv, err := p.Parse(doc.Text)
	if err != nil {
		return nil, WrapExtractionError(op, p.Name(), err, doc.Source)
	}
	inv, err = finish(inv, doc)
	if err != nil {
		return nil, WrapExtractionError(op, p.Name(), err, doc.Source)
	}
	return inv, nil
}

// Parse reads whatever fields are present; missing fields stay zero.
func (p *TextParser) Parse(text string) (*models.Invoice, error) {
	inv := &models.Invoice{Status: models.StatusPending}

	inv.InvoiceNumber = firstGroup(reInvoiceNumber, text)
	inv.OrderNumber = firstGroup(reOrderNumber, text)
	if id := reAmazonOrderID.FindString(text); id != "" && !reAmazonOrderID.MatchString(inv.OrderNumber) {
		inv.OrderNumber = id
	}
	if inv.InvoiceNumber == "" {
		inv.InvoiceNumber = inv.OrderNumber
	}

	if raw := firstGroup(reDate, text); raw != "" {
		date, err := parseDate(raw)
		if err != nil {
			return nil, err
		}
		inv.InvoiceDate = date
	}

	inv.Currency = normalizeCurrency(firstGroup(reCurrency, text))
	if inv.Currency == "" {
		inv.Currency = currencyFromSymbol(text)
	}

	var err error
	if inv.ShippingAmount, err = optionalAmount(reShipping, text); err != nil {
		return nil, err
	}
	if inv.TaxAmount, err = optionalAmount(reTax, text); err != nil {
		return nil, err
	}

	if err := p.parseItems(inv, text); err != nil {
		return nil, err
	}

	totalFound := false
	for _, re := range totalPatterns {
		if raw := firstGroup(re, text); raw != "" {
			if inv.TotalAmount, err = parseAmount(raw); err != nil {
				return nil, err
			}
			totalFound = true
			break
		}
	}
	if !totalFound {
		inv.TotalAmount = inv.ItemsTotal().Add(inv.ShippingAmount).Add(inv.TaxAmount)
	}

	if err := p.parsePayments(inv, text); err != nil {
		return nil, err
	}
	return inv, nil
}

func (p *TextParser) parseItems(inv *models.Invoice, text string) error {
	var last *models.InvoiceItem
	for _, line := range strings.Split(text, "\n") {
		if m := reItem.FindStringSubmatch(line); m != nil {
			qty, err := strconv.Atoi(m[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q: %w", m[1], err)
			}
			price, err := parseAmount(m[3])
			if err != nil {
				return err
			}
			last = models.NewInvoiceItem(strings.TrimSpace(m[2]), qty, price)
			inv.AddItem(last)
			continue
		}
		if last == nil {
			continue
		}
		if m := reASIN.FindStringSubmatch(line); m != nil {
			last.ASIN = strings.ToUpper(m[1])
		} else if m := reSKU.FindStringSubmatch(line); m != nil {
			last.SKU = m[1]
		}
	}
	return nil
}

// parsePayments records gift card amounts and charges the remainder to the card or PayPal.
func (p *TextParser) parsePayments(inv *models.Invoice, text string) error {
	remaining := inv.TotalAmount

	for _, m := range reGiftCard.FindAllStringSubmatch(text, -1) {
		amount, err := parseAmount(m[1])
		if err != nil {
			return err
		}
		amount = amount.Abs()
		inv.AddPayment(&models.Payment{Method: models.PaymentGiftCard, Amount: amount, Reference: "Gift card"})
		remaining = remaining.Sub(amount)
	}

	if !remaining.IsPositive() {
		return nil
	}
	if m := reCard.FindStringSubmatch(text); m != nil {
		ref := fmt.Sprintf("%s ending in %s", cardBrand(m[1]), m[2])
		inv.AddPayment(&models.Payment{Method: models.PaymentCreditCard, Amount: remaining, Reference: ref})
	} else if rePayPal.MatchString(text) {
		inv.AddPayment(&models.Payment{Method: models.PaymentPayPal, Amount: remaining, Reference: "PayPal"})
	}
	return nil
}

func cardBrand(s string) string {
	switch strings.ToLower(s) {
	case "visa":
		return "Visa"
	case "mastercard":
		return "Mastercard"
	case "amex", "american express":
		return "American Express"
	default:
		return "Discover"
	}
}

func firstGroup(re *regexp.Regexp, text string) string {
	if m := re.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func optionalAmount(re *regexp.Regexp, text string) (decimal.Decimal, error) {
	raw := firstGroup(re, text)
	if raw == "" {
		return decimal.Zero, nil
	}
	return parseAmount(raw)
}
