// Package ocr turns invoice PDFs into text.
//
// Two engines are available. The embedded text layer of a PDF is read locally with
// github.com/ledongthuc/pdf; Amazon's generated invoices always carry one. Scanned documents
// have no text layer and are sent to Google Cloud Vision document text detection, which accepts
// PDFs directly so no page rasterization is needed.
//
// Cloud Vision API Limitations:
//   - Maximum file size: 20MB for synchronous processing
//   - Maximum pages: 5 pages for synchronous processing
package ocr

import (
	"context"
	"io"
	"time"
)

// Engines reported in OCRResult.Engine.
const (
	EngineTextLayer = "text_layer"
	EngineVision    = "google_vision"
)

// OCRService defines the interface for OCR text extraction services.
type OCRService interface {
	// ProcessPDF extracts text from a PDF document.
	// Returns the concatenated text from all pages.
	ProcessPDF(ctx context.Context, pdfData io.Reader) (string, error)

	// ProcessPDFWithMetadata extracts text from a PDF document with additional metadata.
	ProcessPDFWithMetadata(ctx context.Context, pdfData io.Reader) (*OCRResult, error)
}

// OCRResult contains the results of OCR processing with metadata.
type OCRResult struct {
	// Text is the extracted text content from all pages, concatenated in reading order.
	Text string `json:"text"`

	PageCount int `json:"page_count"`

	// Confidence is the average confidence score across all detected text (0.0 to 1.0).
	// Text read from an embedded text layer reports 1.
	Confidence float32 `json:"confidence"`

	Engine string `json:"engine"`

	ProcessedAt        time.Time     `json:"processed_at"`
	LanguageCodes      []string      `json:"language_codes,omitempty"`
	ProcessingDuration time.Duration `json:"processing_duration"`
}
