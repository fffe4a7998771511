package ocr

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
)

const (
	// MaxFileSizeBytes is the maximum file size for synchronous processing (20MB)
	MaxFileSizeBytes = 20 * 1024 * 1024

	// MaxPagesSync is the maximum number of pages for synchronous processing
	MaxPagesSync = 5
)

// FileAnnotator is the part of the Vision client used here.
type FileAnnotator interface {
	BatchAnnotateFiles(ctx context.Context, req *visionpb.BatchAnnotateFilesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateFilesResponse, error)
	Close() error
}

// GoogleVisionOCRService implements OCRService using Google Cloud Vision API.
type GoogleVisionOCRService struct {
	client FileAnnotator
}

// NewGoogleVisionOCRService creates a Vision client from a service account key file, or from
// application default credentials when credentialsFile is empty.
func NewGoogleVisionOCRService(ctx context.Context, credentialsFile string) (*GoogleVisionOCRService, error) {
	const op = "NewGoogleVisionOCRService"

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		if credentialsFile == "" {
			return nil, WrapOCRError(op, ErrMissingCredentials, err.Error())
		}
		return nil, WrapOCRError(op, err, "failed to create client with "+credentialsFile)
	}

	return &GoogleVisionOCRService{client: client}, nil
}

// NewGoogleVisionOCRServiceWithClient creates a new OCR service with an explicit client (for testing).
func NewGoogleVisionOCRServiceWithClient(client FileAnnotator) *GoogleVisionOCRService {
	return &GoogleVisionOCRService{client: client}
}

// ProcessPDF extracts text from a PDF document.
func (g *GoogleVisionOCRService) ProcessPDF(ctx context.Context, pdfData io.Reader) (string, error) {
	result, err := g.ProcessPDFWithMetadata(ctx, pdfData)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// ProcessPDFWithMetadata extracts text from a PDF document with additional metadata.
func (g *GoogleVisionOCRService) ProcessPDFWithMetadata(ctx context.Context, pdfData io.Reader) (*OCRResult, error) {
	const op = "ProcessPDFWithMetadata"
	startTime := time.Now()

	pdfBytes, err := readPDF(op, pdfData)
	if err != nil {
		return nil, engineError(EngineVision, op, err, "")
	}

	req := &visionpb.BatchAnnotateFilesRequest{
		Requests: []*visionpb.AnnotateFileRequest{
			{
				InputConfig: &visionpb.InputConfig{
					Content:  pdfBytes,
					MimeType: "application/pdf",
				},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}

	resp, err := g.client.BatchAnnotateFiles(ctx, req)
	if err != nil {
		return nil, engineError(EngineVision, op, ErrOCRFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}
	if len(resp.Responses) == 0 {
		return nil, engineError(EngineVision, op, ErrOCRFailed, "no response from Vision API")
	}

	fileResp := resp.Responses[0]
	if fileResp.Error != nil {
		return nil, engineError(EngineVision, op, ErrOCRFailed, fmt.Sprintf("Vision API error: %s", fileResp.Error.Message))
	}

	result, err := processVisionResponse(fileResp)
	if err != nil {
		return nil, engineError(EngineVision, op, err, "failed to process Vision API response")
	}

	result.ProcessedAt = time.Now()
	result.ProcessingDuration = result.ProcessedAt.Sub(startTime)
	return result, nil
}

// readPDF reads the whole document and checks size and header.
func readPDF(op string, r io.Reader) ([]byte, error) {
	pdfBytes, err := io.ReadAll(io.LimitReader(r, MaxFileSizeBytes+1))
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to read PDF data")
	}
	if len(pdfBytes) > MaxFileSizeBytes {
		return nil, WrapOCRError(op, ErrPDFTooLarge, fmt.Sprintf("more than %d bytes", MaxFileSizeBytes))
	}
	if len(pdfBytes) < 4 || string(pdfBytes[:4]) != "%PDF" {
		return nil, WrapOCRError(op, ErrInvalidPDF, "missing PDF header")
	}
	return pdfBytes, nil
}

// processVisionResponse joins page texts and averages confidence over the pages' blocks.
func processVisionResponse(fileResp *visionpb.AnnotateFileResponse) (*OCRResult, error) {
	if len(fileResp.Responses) == 0 {
		return nil, engineError(EngineVision, "processVisionResponse", ErrEmptyDocument, "no pages")
	}

	pageCount := len(fileResp.Responses)
	if pageCount > MaxPagesSync {
		return nil, engineError(EngineVision, "processVisionResponse", ErrTooManyPages, fmt.Sprintf("document has %d pages", pageCount))
	}

	var (
		allText         strings.Builder
		confidenceSum   float32
		confidenceCount int
		languageSet     = make(map[string]bool)
	)
	for pageIdx, page := range fileResp.Responses {
		if page.Error != nil {
			return nil, engineError(EngineVision, "processVisionResponse", ErrOCRFailed,
				fmt.Sprintf("page %d: %s", pageIdx+1, page.Error.Message))
		}
		if page.FullTextAnnotation == nil {
			continue
		}

		if pageIdx > 0 {
			fmt.Fprintf(&allText, "\n\n--- Page %d ---\n\n", pageIdx+1)
		}
		allText.WriteString(page.FullTextAnnotation.Text)

		for _, p := range page.FullTextAnnotation.Pages {
			for _, block := range p.Blocks {
				if block.Confidence > 0 {
					confidenceSum += block.Confidence
					confidenceCount++
				}
			}
			if p.Property != nil {
				for _, lang := range p.Property.DetectedLanguages {
					if lang.LanguageCode != "" {
						languageSet[lang.LanguageCode] = true
					}
				}
			}
		}
	}

	extractedText := allText.String()
	if strings.TrimSpace(extractedText) == "" {
		return nil, engineError(EngineVision, "processVisionResponse", ErrEmptyDocument, "")
	}

	var avgConfidence float32
	if confidenceCount > 0 {
		avgConfidence = confidenceSum / float32(confidenceCount)
	}

	languages := make([]string, 0, len(languageSet))
	for lang := range languageSet {
		languages = append(languages, lang)
	}
	sort.Strings(languages)

	return &OCRResult{
		Text:          extractedText,
		PageCount:     pageCount,
		Confidence:    avgConfidence,
		Engine:        EngineVision,
		LanguageCodes: languages,
	}, nil
}

// Close closes the underlying Vision client.
func (g *GoogleVisionOCRService) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
