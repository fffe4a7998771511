package extraction

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var dateFormats = []string{
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"January 2 2006",
	"01/02/2006",
	"02.01.2006",
	"2006/01/02",
}

// parseDate accepts the layouts Amazon uses on its invoices and confirmations.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "."))
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date value")
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", s)
}

// parseAmount reads money in English (1,234.56) or German (1.234,56) notation.
func parseAmount(s string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(s)
	for _, sym := range []string{" ", "\u00a0", "€", "$", "£", "EUR", "USD", "GBP", "CAD"} {
		cleaned = strings.ReplaceAll(cleaned, sym, "")
	}
	negative := false
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		cleaned = strings.Trim(cleaned, "()")
		negative = true
	}

	switch {
	case strings.Contains(cleaned, ".") && strings.Contains(cleaned, ","):
		if strings.LastIndex(cleaned, ",") > strings.LastIndex(cleaned, ".") {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case strings.Contains(cleaned, ","):
		parts := strings.Split(cleaned, ",")
		if len(parts) == 2 && len(parts[1]) <= 2 {
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unable to parse amount: %s (cleaned: %s)", s, cleaned)
	}
	if negative {
		amount = amount.Neg()
	}
	return amount, nil
}

// currencyFromSymbol guesses the ISO code from the first currency marker in text.
func currencyFromSymbol(text string) string {
	idx := -1
	code := ""
	for sym, c := range map[string]string{"$": "USD", "€": "EUR", "£": "GBP"} {
		if i := strings.Index(text, sym); i >= 0 && (idx < 0 || i < idx) {
			idx, code = i, c
		}
	}
	return code
}

// normalizeCurrency standardizes currency names and symbols to ISO codes.
func normalizeCurrency(currency string) string {
	normalized := strings.ToUpper(strings.TrimSpace(currency))

	switch normalized {
	case "":
		return ""
	case "€", "EURO", "EUROS", "EUR":
		return "EUR"
	case "$", "DOLLAR", "DOLLARS", "USD", "US$":
		return "USD"
	case "£", "POUND", "POUNDS", "GBP":
		return "GBP"
	case "CDN$", "CAD":
		return "CAD"
	default:
		if len(normalized) == 3 {
			return normalized
		}
		return ""
	}
}
