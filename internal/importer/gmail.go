package importer

import (
	"context"
	"fmt"
	"time"

	"faimport/internal/extraction"
	"faimport/internal/gmail"
	"faimport/internal/ocr"
)

// DefaultGmailQuery finds Amazon order and invoice mail.
const DefaultGmailQuery = `from:amazon (invoice OR rechnung OR "your order" OR "order confirmation")`

// Mailbox is the part of the Gmail client the source uses.
type Mailbox interface {
	ListMessages(ctx context.Context, query string, limit int64) ([]gmail.MessageRef, error)
	GetMessageContent(ctx context.Context, id string) (*gmail.Message, error)
}

// GmailSource imports invoices from mail. PDF attachments are read like uploaded files;
// mails without one are parsed from their body.
type GmailSource struct {
	mailbox Mailbox
	reader  documentReader
	query   string
	limit   int64
}

func NewGmailSource(mb Mailbox, o ocr.OCRService, ex extraction.Extractor, query string, limit int64) *GmailSource {
	if query == "" {
		query = DefaultGmailQuery
	}
	return &GmailSource{mailbox: mb, reader: newDocumentReader(o, ex), query: query, limit: limit}
}

func (s *GmailSource) Name() string { return "gmail" }

func (s *GmailSource) Candidates(ctx context.Context) ([]Candidate, error) {
	refs, err := s.mailbox.ListMessages(ctx, s.query, s.limit)
	if err != nil {
		return nil, err
	}

	var out []Candidate
	for _, ref := range refs {
		msg, err := s.mailbox.GetMessageContent(ctx, ref.ID)
		if err != nil {
			out = append(out, Candidate{Ref: "gmail:" + ref.ID, Err: err})
			continue
		}
		if !gmail.IsInvoiceMessage(msg) {
			s.reader.log.Debug().Str("message_id", msg.ID).Str("subject", msg.Subject).Msg("Skipping non-invoice mail")
			continue
		}
		out = append(out, s.messageCandidates(ctx, msg)...)
	}
	return out, nil
}

func (s *GmailSource) messageCandidates(ctx context.Context, msg *gmail.Message) []Candidate {
	var out []Candidate
	for _, a := range msg.Attachments {
		if !a.IsPDF() {
			continue
		}
		c := Candidate{Ref: fmt.Sprintf("gmail:%s/%s", msg.ID, a.Filename)}
		c.Invoice, c.Err = s.reader.read(ctx, c.Ref, a.Data)
		out = append(out, c)
	}
	if len(out) > 0 {
		return out
	}

	c := Candidate{Ref: "gmail:" + msg.ID}
	c.Invoice, c.Err = s.reader.extractor.Extract(ctx, extraction.Document{Source: c.Ref, Text: msg.Body})
	if c.Invoice != nil && c.Invoice.InvoiceDate.IsZero() && !msg.Date.IsZero() {
		c.Invoice.InvoiceDate = msg.Date.Truncate(24 * time.Hour)
	}
	return append(out, c)
}
