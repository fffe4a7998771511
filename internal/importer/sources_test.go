package importer_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faimport/internal/extraction"
	"faimport/internal/gmail"
	"faimport/internal/importer"
	"faimport/internal/ocr"
	"faimport/pkg/models"
)

// fakeOCR returns the PDF bytes as text, or fails for documents starting with "scan".
type fakeOCR struct{}

func (fakeOCR) ProcessPDF(ctx context.Context, r io.Reader) (string, error) {
	res, err := fakeOCR{}.ProcessPDFWithMetadata(ctx, r)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

func (fakeOCR) ProcessPDFWithMetadata(_ context.Context, r io.Reader) (*ocr.OCRResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) >= 4 && string(data[:4]) == "scan" {
		return nil, ocr.ErrNoTextLayer
	}
	return &ocr.OCRResult{Text: string(data), PageCount: 1, Engine: ocr.EngineTextLayer}, nil
}

// recordingExtractor builds an invoice numbered after the document text.
type recordingExtractor struct {
	docs []extraction.Document
}

func (e *recordingExtractor) Name() string { return "recording" }

func (e *recordingExtractor) Extract(_ context.Context, doc extraction.Document) (*models.Invoice, error) {
	e.docs = append(e.docs, doc)
	if doc.Text == "" {
		return nil, extraction.ErrNoText
	}
	return models.NewInvoice("INV-"+doc.Text, "", time.Time{}, dec("1.00"), "USD"), nil
}

func TestSampleSource_Deterministic(t *testing.T) {
	src := importer.NewSampleSource(4, day("2024-05-01"))
	a, err := src.Candidates(context.Background())
	require.NoError(t, err)
	b, err := src.Candidates(context.Background())
	require.NoError(t, err)
	require.Len(t, a, 4)

	for i := range a {
		require.NoError(t, a[i].Err)
		assert.Equal(t, a[i].Invoice.InvoiceNumber, b[i].Invoice.InvoiceNumber)
		assert.Equal(t, a[i].Invoice.OrderNumber, b[i].Invoice.OrderNumber)
		assert.Empty(t, a[i].Invoice.Validate(), a[i].Invoice.InvoiceNumber)
	}
	assert.Equal(t, "AMZ-SAMPLE-0001", a[0].Invoice.InvoiceNumber)
	assert.Equal(t, day("2024-05-03"), a[2].Invoice.InvoiceDate)
	assert.Equal(t, models.PaymentGiftCard, a[2].Invoice.Payments[0].Method)
}

func TestPDFSource(t *testing.T) {
	ex := &recordingExtractor{}
	src := importer.NewPDFSource(fakeOCR{}, ex,
		importer.PDFFile{Name: "a.pdf", Path: "/uploads/a.pdf", Data: []byte("A1")},
		importer.PDFFile{Name: "scan.pdf", Data: []byte("scanned")},
	)

	got, err := src.Candidates(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "INV-A1", got[0].Invoice.InvoiceNumber)
	assert.Equal(t, "/uploads/a.pdf", got[0].Invoice.PDFPath)

	// OCR failed, the extractor still saw the PDF bytes.
	assert.ErrorIs(t, got[1].Err, extraction.ErrNoText)
	assert.Equal(t, []byte("scanned"), ex.docs[1].PDF)
}

func TestDirectorySource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.pdf"), []byte("B"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.PDF"), []byte("A"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("N"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.pdf"), 0o700))

	src := importer.NewDirectorySource(fakeOCR{}, &recordingExtractor{}, dir)
	got, err := src.Candidates(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "INV-A", got[0].Invoice.InvoiceNumber)
	assert.Equal(t, "INV-B", got[1].Invoice.InvoiceNumber)
	assert.True(t, filepath.IsAbs(got[1].Invoice.PDFPath))
	assert.Equal(t, "b.pdf", filepath.Base(got[1].Invoice.PDFPath))

	_, err = importer.NewDirectorySource(fakeOCR{}, &recordingExtractor{}, filepath.Join(dir, "missing")).Candidates(context.Background())
	assert.Error(t, err)
}

type fakeMailbox struct {
	refs     []gmail.MessageRef
	messages map[string]*gmail.Message
	query    string
}

func (m *fakeMailbox) ListMessages(_ context.Context, query string, _ int64) ([]gmail.MessageRef, error) {
	m.query = query
	return m.refs, nil
}

func (m *fakeMailbox) GetMessageContent(_ context.Context, id string) (*gmail.Message, error) {
	msg, ok := m.messages[id]
	if !ok {
		return nil, errors.New("message not found")
	}
	return msg, nil
}

func TestGmailSource(t *testing.T) {
	received := time.Date(2024, 6, 2, 14, 30, 0, 0, time.UTC)
	mb := &fakeMailbox{
		refs: []gmail.MessageRef{{ID: "m1"}, {ID: "m2"}, {ID: "m3"}, {ID: "gone"}},
		messages: map[string]*gmail.Message{
			"m1": {ID: "m1", From: "invoice@amazon.com", Subject: "Your invoice", Attachments: []gmail.Attachment{
				{Filename: "logo.png", MimeType: "image/png", Data: []byte("png")},
				{Filename: "invoice.pdf", MimeType: "application/pdf", Data: []byte("PDF1")},
			}},
			"m2": {ID: "m2", From: "store-news@amazon.com", Subject: "Deals"},
			"m3": {ID: "m3", From: "auto-confirm@amazon.com", Subject: "Your Amazon.com order", Body: "BODY", Date: received},
		},
	}

	src := importer.NewGmailSource(mb, fakeOCR{}, &recordingExtractor{}, "", 10)
	got, err := src.Candidates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, importer.DefaultGmailQuery, mb.query)

	require.Len(t, got, 3)
	assert.Equal(t, "gmail:m1/invoice.pdf", got[0].Ref)
	assert.Equal(t, "INV-PDF1", got[0].Invoice.InvoiceNumber)

	assert.Equal(t, "gmail:m3", got[1].Ref)
	assert.Equal(t, "INV-BODY", got[1].Invoice.InvoiceNumber)
	assert.Equal(t, day("2024-06-02"), got[1].Invoice.InvoiceDate)

	assert.Equal(t, "gmail:gone", got[2].Ref)
	assert.Error(t, got[2].Err)
}
