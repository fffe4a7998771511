// Package extraction turns the text or PDF of an Amazon invoice into a staged invoice.
//
// Three extractors are available:
//   - TextParser reads the plain text layout of Amazon invoices and order confirmations
//     with regular expressions. It needs no network access and runs first.
//   - DocumentAIExtractor sends the PDF to a Google Document AI invoice processor.
//   - ChatGPTExtractor asks an OpenAI chat model to return the invoice as JSON.
//
// A Chain runs extractors in order and returns the first invoice that has an invoice number.
package extraction

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"faimport/internal/logger"
	"faimport/pkg/models"
)

// DefaultCurrency is used when a document names no currency.
const DefaultCurrency = "USD"

// Document is the raw material handed to an extractor.
type Document struct {
	// Source identifies the document in logs and results (file path, message id).
	Source string

	// Text is the OCR or text-layer content, possibly empty.
	Text string

	// PDF is the original file, possibly empty for e-mail bodies.
	PDF []byte
}

// Extractor builds an invoice from a document.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, doc Document) (*models.Invoice, error)
}

// Chain tries each extractor in order.
type Chain struct {
	extractors []Extractor
	log        zerolog.Logger
}

// NewChain skips nil extractors so optional cloud extractors can be passed unconditionally.
func NewChain(extractors ...Extractor) *Chain {
	c := &Chain{log: logger.WithComponent("extraction")}
	for _, e := range extractors {
		if e != nil {
			c.extractors = append(c.extractors, e)
		}
	}
	return c
}

func (c *Chain) Name() string {
	names := make([]string, 0, len(c.extractors))
	for _, e := range c.extractors {
		names = append(names, e.Name())
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// Extract returns the first successful result; when every extractor fails the errors are joined.
func (c *Chain) Extract(ctx context.Context, doc Document) (*models.Invoice, error) {
	const op = "Extract"

	if len(c.extractors) == 0 {
		return nil, WrapExtractionError(op, "", ErrNoExtractors, "")
	}

	var errs []error
	for _, e := range c.extractors {
		if err := ctx.Err(); err != nil {
			return nil, WrapExtractionError(op, "", err, doc.Source)
		}
		inv, err := e.Extract(ctx, doc)
		if err == nil {
			c.log.Debug().
				Str("extractor", e.Name()).
				Str("source", doc.Source).
				Str("invoice_number", inv.InvoiceNumber).
				Msg("Invoice extracted")
			return inv, nil
		}
		c.log.Debug().Err(err).Str("extractor", e.Name()).Str("source", doc.Source).Msg("Extractor failed")
		errs = append(errs, err)
	}
	return nil, WrapExtractionError(op, "", errors.Join(errs...), doc.Source)
}

// finish fills defaults shared by every extractor and rejects invoices without a number.
func finish(inv *models.Invoice, doc Document) (*models.Invoice, error) {
	if inv.InvoiceNumber == "" {
		return nil, ErrMissingInvoiceNumber
	}
	if inv.Currency == "" {
		inv.Currency = DefaultCurrency
	}
	if inv.Status == "" {
		inv.Status = models.StatusPending
	}
	if inv.RawData == "" {
		inv.RawData = doc.Text
	}
	return inv, nil
}
