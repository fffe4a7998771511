package extraction

import (
	"errors"
	"fmt"
)

// Common extraction errors
var (
	// ErrNoText is returned by text based extractors when the document carries no text.
	ErrNoText = errors.New("document has no text")

	// ErrNoPDF is returned by extractors that need the original PDF bytes.
	ErrNoPDF = errors.New("document has no PDF content")

	// ErrMissingInvoiceNumber is returned when no invoice number could be found.
	ErrMissingInvoiceNumber = errors.New("missing invoice number")

	// ErrExtractionFailed is returned when an upstream service fails to process the document.
	ErrExtractionFailed = errors.New("invoice extraction failed")

	ErrMissingCredentials = errors.New("missing Google Cloud credentials")

	// ErrInvalidConfiguration is returned when an extractor is built without required settings.
	ErrInvalidConfiguration = errors.New("invalid extractor configuration")

	ErrQuotaExceeded    = errors.New("API quota exceeded")
	ErrPermissionDenied = errors.New("permission denied")
	ErrProcessorMissing = errors.New("Document AI processor not found")

	// ErrNoExtractors is returned by an empty Chain.
	ErrNoExtractors = errors.New("no extractors configured")
)

// ExtractionError wraps errors with the extractor and operation that produced them.
type ExtractionError struct {
	// Op is the operation that failed (e.g., "Extract", "parseResponse").
	Op string

	// Extractor is the Name() of the extractor, empty for the chain itself.
	Extractor string

	Err error

	// Details provides additional context about the failure.
	Details string
}

func (e *ExtractionError) Error() string {
	prefix := "extraction: " + e.Op
	if e.Extractor != "" {
		prefix = fmt.Sprintf("extraction: %s %s", e.Extractor, e.Op)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s failed: %s: %v", prefix, e.Details, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", prefix, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func (e *ExtractionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapExtractionError wraps an error as an ExtractionError if it isn't already one.
func WrapExtractionError(op, extractor string, err error, details string) error {
	if err == nil {
		return nil
	}

	var extErr *ExtractionError
	if errors.As(err, &extErr) {
		return err
	}

	return &ExtractionError{Op: op, Extractor: extractor, Err: err, Details: details}
}
