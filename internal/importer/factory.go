package importer

import (
	"errors"
	"time"

	"faimport/internal/extraction"
	"faimport/internal/ocr"
)

var ErrGmailNotConfigured = errors.New("gmail import is not configured")

// Factory builds sources that share one OCR service and extractor chain.
type Factory struct {
	OCR       ocr.OCRService
	Extractor extraction.Extractor

	// Mailbox stays nil when no Gmail credentials are configured.
	Mailbox    Mailbox
	GmailQuery string
	GmailLimit int64
}

func (f *Factory) Sample(count int, start time.Time) Source {
	return NewSampleSource(count, start)
}

func (f *Factory) PDF(files ...PDFFile) Source {
	return NewPDFSource(f.OCR, f.Extractor, files...)
}

func (f *Factory) Directory(dir string) Source {
	return NewDirectorySource(f.OCR, f.Extractor, dir)
}

func (f *Factory) Gmail() (Source, error) {
	if f.Mailbox == nil {
		return nil, ErrGmailNotConfigured
	}
	return NewGmailSource(f.Mailbox, f.OCR, f.Extractor, f.GmailQuery, f.GmailLimit), nil
}
