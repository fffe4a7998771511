package gmail

import "strings"

var (
	invoiceSenders = []string{
		"auto-confirm@amazon.",
		"digital-no-reply@amazon.",
		"invoice@amazon.",
		"payments-messages@amazon.",
		"order-update@amazon.",
	}

	invoiceSubjectKeywords = []string{
		"invoice",
		"your amazon.com order",
		"your amazon order",
		"order confirmation",
		"rechnung",
		"bestellbestätigung",
	}
)

// IsInvoiceMessage reports whether a message comes from an Amazon order sender and looks like
// an invoice or an order confirmation. Messages with a PDF attachment from Amazon always count.
func IsInvoiceMessage(m *Message) bool {
	from := strings.ToLower(m.From)
	amazon := false
	for _, s := range invoiceSenders {
		if strings.Contains(from, s) {
			amazon = true
			break
		}
	}
	if !amazon {
		return false
	}

	for _, a := range m.Attachments {
		if a.IsPDF() {
			return true
		}
	}

	subject := strings.ToLower(m.Subject)
	for _, kw := range invoiceSubjectKeywords {
		if strings.Contains(subject, kw) {
			return true
		}
	}
	return false
}
