package ocr

import (
	"errors"
	"fmt"
)

// Input checks, raised by both engines before any work is done.
var (
	// ErrPDFTooLarge is returned when the PDF exceeds MaxFileSizeBytes.
	ErrPDFTooLarge = errors.New("PDF file size exceeds the maximum limit (20MB)")

	// ErrInvalidPDF is returned when the data has no PDF header or cannot be parsed.
	ErrInvalidPDF = errors.New("invalid or corrupted PDF document")
)

// Text layer.
var (
	// ErrNoTextLayer is returned by LayeredOCRService when a PDF has no usable embedded text
	// and no OCR fallback is configured.
	ErrNoTextLayer = errors.New("PDF has no text layer")
)

// Cloud Vision.
var (
	// ErrMissingCredentials is only returned by NewGoogleVisionOCRService.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials")

	// ErrOCRFailed covers failed API calls and per-file or per-page API errors.
	ErrOCRFailed = errors.New("OCR processing failed")

	// ErrTooManyPages is returned when the PDF has more than MaxPagesSync pages.
	ErrTooManyPages = errors.New("PDF has too many pages (maximum 5 pages for synchronous processing)")

	// ErrEmptyDocument is returned when OCR finds no text on any page.
	ErrEmptyDocument = errors.New("document contains no readable text")
)

// OCRError wraps errors with the operation and engine that failed.
type OCRError struct {
	// Op is the operation that failed (e.g., "ProcessPDFWithMetadata", "ExtractTextLayer").
	Op string

	// Engine is EngineTextLayer or EngineVision, empty for input checks.
	Engine string

	Err     error
	Details string
}

func (e *OCRError) Error() string {
	prefix := "ocr: "
	if e.Engine != "" {
		prefix += e.Engine + ": "
	}
	if e.Details != "" {
		return fmt.Sprintf("%s%s failed: %s: %v", prefix, e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("%s%s failed: %v", prefix, e.Op, e.Err)
}

func (e *OCRError) Unwrap() error {
	return e.Err
}

func (e *OCRError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapOCRError wraps an error as an OCRError if it isn't already one.
func WrapOCRError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err
	}

	return &OCRError{Op: op, Err: err, Details: details}
}

// engineError is WrapOCRError that also records the engine. An OCRError without an engine,
// such as one from the shared input checks, is attributed to engine.
func engineError(engine, op string, err error, details string) error {
	err = WrapOCRError(op, err, details)
	var ocrErr *OCRError
	if errors.As(err, &ocrErr) && ocrErr.Engine == "" {
		ocrErr.Engine = engine
	}
	return err
}

// ErrorEngine reports the engine that produced err, or "" when it is not an engine error.
func ErrorEngine(err error) string {
	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return ocrErr.Engine
	}
	return ""
}
