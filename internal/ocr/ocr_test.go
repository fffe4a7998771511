package ocr

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/status"
)

type fakeAnnotator struct {
	resp   *visionpb.BatchAnnotateFilesResponse
	err    error
	calls  int
	closed bool
}

func (f *fakeAnnotator) BatchAnnotateFiles(_ context.Context, req *visionpb.BatchAnnotateFilesRequest, _ ...gax.CallOption) (*visionpb.BatchAnnotateFilesResponse, error) {
	f.calls++
	if len(req.Requests) != 1 || req.Requests[0].InputConfig.MimeType != "application/pdf" {
		return nil, errors.New("unexpected request")
	}
	return f.resp, f.err
}

func (f *fakeAnnotator) Close() error {
	f.closed = true
	return nil
}

func page(text string, confidence float32, lang string) *visionpb.AnnotateImageResponse {
	return &visionpb.AnnotateImageResponse{
		FullTextAnnotation: &visionpb.TextAnnotation{
			Text: text,
			Pages: []*visionpb.Page{{
				Blocks: []*visionpb.Block{{Confidence: confidence}},
				Property: &visionpb.TextAnnotation_TextProperty{
					DetectedLanguages: []*visionpb.TextAnnotation_DetectedLanguage{{LanguageCode: lang}},
				},
			}},
		},
	}
}

func filesResponse(pages ...*visionpb.AnnotateImageResponse) *visionpb.BatchAnnotateFilesResponse {
	return &visionpb.BatchAnnotateFilesResponse{
		Responses: []*visionpb.AnnotateFileResponse{{Responses: pages}},
	}
}

var fakePDF = []byte("%PDF-1.4 scanned")

func TestVision_ProcessPDFWithMetadata(t *testing.T) {
	client := &fakeAnnotator{resp: filesResponse(
		page("Invoice AMZ-001", 0.9, "en"),
		page("Total 99.99", 0.7, "de"),
	)}
	svc := NewGoogleVisionOCRServiceWithClient(client)

	result, err := svc.ProcessPDFWithMetadata(context.Background(), bytes.NewReader(fakePDF))
	require.NoError(t, err)
	assert.Equal(t, "Invoice AMZ-001\n\n--- Page 2 ---\n\nTotal 99.99", result.Text)
	assert.Equal(t, 2, result.PageCount)
	assert.InDelta(t, 0.8, result.Confidence, 0.001)
	assert.Equal(t, []string{"de", "en"}, result.LanguageCodes)
	assert.Equal(t, EngineVision, result.Engine)
	assert.False(t, result.ProcessedAt.IsZero())

	require.NoError(t, svc.Close())
	assert.True(t, client.closed)
}

func TestVision_Errors(t *testing.T) {
	many := make([]*visionpb.AnnotateImageResponse, MaxPagesSync+1)
	for i := range many {
		many[i] = page("x", 1, "en")
	}

	tests := []struct {
		name   string
		client *fakeAnnotator
		input  []byte
		want   error
	}{
		{"not a pdf", &fakeAnnotator{}, []byte("hello"), ErrInvalidPDF},
		{"too large", &fakeAnnotator{}, append([]byte("%PDF"), make([]byte, MaxFileSizeBytes)...), ErrPDFTooLarge},
		{"api failure", &fakeAnnotator{err: errors.New("unavailable")}, fakePDF, ErrOCRFailed},
		{"no responses", &fakeAnnotator{resp: &visionpb.BatchAnnotateFilesResponse{}}, fakePDF, ErrOCRFailed},
		{"file error", &fakeAnnotator{resp: &visionpb.BatchAnnotateFilesResponse{
			Responses: []*visionpb.AnnotateFileResponse{{Error: &status.Status{Message: "bad file"}}},
		}}, fakePDF, ErrOCRFailed},
		{"blank pages", &fakeAnnotator{resp: filesResponse(page("  ", 1, "en"))}, fakePDF, ErrEmptyDocument},
		{"too many pages", &fakeAnnotator{resp: filesResponse(many...)}, fakePDF, ErrTooManyPages},
		{"page error", &fakeAnnotator{resp: filesResponse(page("Invoice", 0.9, "en"),
			&visionpb.AnnotateImageResponse{Error: &status.Status{Message: "page unreadable"}})}, fakePDF, ErrOCRFailed},
		{"no pages", &fakeAnnotator{resp: filesResponse()}, fakePDF, ErrEmptyDocument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewGoogleVisionOCRServiceWithClient(tt.client)
			_, err := svc.ProcessPDF(context.Background(), bytes.NewReader(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var ocrErr *OCRError
			assert.True(t, errors.As(err, &ocrErr))
			assert.Equal(t, EngineVision, ErrorEngine(err))
		})
	}
}

func TestLayered_UsesTextLayer(t *testing.T) {
	fallback := &fakeAnnotator{}
	svc := NewLayeredOCRService(NewGoogleVisionOCRServiceWithClient(fallback))
	svc.textLayer = func([]byte) (string, int, error) {
		return strings.Repeat("Amazon invoice line\n", 5), 1, nil
	}

	result, err := svc.ProcessPDFWithMetadata(context.Background(), bytes.NewReader(fakePDF))
	require.NoError(t, err)
	assert.Equal(t, EngineTextLayer, result.Engine)
	assert.Equal(t, float32(1), result.Confidence)
	assert.Zero(t, fallback.calls)
}

func TestLayered_FallsBack(t *testing.T) {
	tests := []struct {
		name  string
		layer func([]byte) (string, int, error)
	}{
		{"short text", func([]byte) (string, int, error) { return "Page 1", 1, nil }},
		{"unreadable", func([]byte) (string, int, error) { return "", 0, ErrInvalidPDF }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fallback := &fakeAnnotator{resp: filesResponse(page("Scanned invoice", 0.5, "en"))}
			svc := NewLayeredOCRService(NewGoogleVisionOCRServiceWithClient(fallback))
			svc.textLayer = tt.layer

			text, err := svc.ProcessPDF(context.Background(), bytes.NewReader(fakePDF))
			require.NoError(t, err)
			assert.Equal(t, "Scanned invoice", text)
			assert.Equal(t, 1, fallback.calls)
		})
	}
}

func TestLayered_NoFallback(t *testing.T) {
	svc := NewLayeredOCRService(nil)
	svc.textLayer = func([]byte) (string, int, error) { return "", 1, nil }

	_, err := svc.ProcessPDF(context.Background(), bytes.NewReader(fakePDF))
	assert.ErrorIs(t, err, ErrNoTextLayer)
	assert.Equal(t, EngineTextLayer, ErrorEngine(err))
	assert.Contains(t, err.Error(), "ocr: text_layer: ")

	// Input checks run before either engine.
	_, err = svc.ProcessPDF(context.Background(), bytes.NewReader([]byte("hello")))
	assert.ErrorIs(t, err, ErrInvalidPDF)
	assert.Empty(t, ErrorEngine(err))
}

func TestExtractTextLayer_Invalid(t *testing.T) {
	_, _, err := ExtractTextLayer([]byte("%PDF-1.4 truncated"))
	assert.ErrorIs(t, err, ErrInvalidPDF)
}

func TestWrapOCRError(t *testing.T) {
	assert.Nil(t, WrapOCRError("op", nil, ""))

	first := WrapOCRError("inner", ErrOCRFailed, "details")
	assert.Same(t, first, WrapOCRError("outer", first, "ignored"))
	assert.Equal(t, "ocr: inner failed: details: OCR processing failed", first.Error())
	assert.Empty(t, ErrorEngine(first))
	assert.Empty(t, ErrorEngine(errors.New("plain")))
}
