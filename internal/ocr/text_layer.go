package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"

	"faimport/internal/logger"
)

// MinTextLayerChars is how much embedded text a PDF needs before OCR is skipped.
const MinTextLayerChars = 50

// ExtractTextLayer reads the text embedded in a PDF, one line per text row.
func ExtractTextLayer(pdfBytes []byte) (string, int, error) {
	const op = "ExtractTextLayer"

	r, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return "", 0, engineError(EngineTextLayer, op, ErrInvalidPDF, err.Error())
	}

	var text strings.Builder
	pages := r.NumPage()
	for i := 1; i <= pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return "", pages, engineError(EngineTextLayer, op, err, fmt.Sprintf("page %d", i))
		}
		for _, row := range rows {
			words := make([]string, 0, len(row.Content))
			for _, w := range row.Content {
				words = append(words, w.S)
			}
			text.WriteString(strings.Join(words, " "))
			text.WriteString("\n")
		}
	}
	return text.String(), pages, nil
}

// LayeredOCRService reads the embedded text layer and only calls the fallback engine when the
// layer is missing or too short.
type LayeredOCRService struct {
	fallback  OCRService
	textLayer func([]byte) (string, int, error)
	log       zerolog.Logger
}

// NewLayeredOCRService uses fallback for scanned documents; a nil fallback makes scanned
// documents fail with ErrNoTextLayer.
func NewLayeredOCRService(fallback OCRService) *LayeredOCRService {
	return &LayeredOCRService{
		fallback:  fallback,
		textLayer: ExtractTextLayer,
		log:       logger.WithComponent("ocr"),
	}
}

func (l *LayeredOCRService) ProcessPDF(ctx context.Context, pdfData io.Reader) (string, error) {
	result, err := l.ProcessPDFWithMetadata(ctx, pdfData)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

func (l *LayeredOCRService) ProcessPDFWithMetadata(ctx context.Context, pdfData io.Reader) (*OCRResult, error) {
	const op = "ProcessPDFWithMetadata"
	start := time.Now()

	pdfBytes, err := readPDF(op, pdfData)
	if err != nil {
		return nil, err
	}

	text, pages, err := l.textLayer(pdfBytes)
	if err == nil && len(strings.TrimSpace(text)) >= MinTextLayerChars {
		now := time.Now()
		return &OCRResult{
			Text:               text,
			PageCount:          pages,
			Confidence:         1,
			Engine:             EngineTextLayer,
			ProcessedAt:        now,
			ProcessingDuration: now.Sub(start),
		}, nil
	}
	if err != nil {
		l.log.Debug().Err(err).Msg("Text layer unreadable, falling back to OCR")
	}

	if l.fallback == nil {
		return nil, engineError(EngineTextLayer, op, ErrNoTextLayer, "no OCR engine configured")
	}
	return l.fallback.ProcessPDFWithMetadata(ctx, bytes.NewReader(pdfBytes))
}
