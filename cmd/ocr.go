package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"faimport/internal/logger"
	"faimport/internal/ocr"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr [pdf-file]",
	Short: "Extract the text of an invoice PDF",
	Long: `Read the text of a PDF the same way the importer does.

The embedded text layer is used when the PDF has one. Scanned documents are
sent to Google Cloud Vision document text detection, which supports up to
5 pages and 20MB per file.

Environment variables:
  GOOGLE_SERVICE_ACCOUNT_KEY - service account JSON file used for Cloud Vision`,
	Example: `  # Print the text of invoice.pdf
  faimport ocr invoice.pdf

  # Save the text with processing details
  faimport ocr invoice.pdf --metadata -o invoice.txt

  # JSON output
  faimport ocr invoice.pdf --json`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

// OCROutput is printed with --json.
type OCROutput struct {
	Text               string    `json:"text"`
	Engine             string    `json:"engine"`
	PageCount          int       `json:"page_count,omitempty"`
	Confidence         float32   `json:"confidence,omitempty"`
	LanguageCodes      []string  `json:"language_codes,omitempty"`
	ProcessedAt        time.Time `json:"processed_at,omitempty"`
	ProcessingDuration string    `json:"processing_duration,omitempty"`
	FileName           string    `json:"file_name"`
	FileSize           int64     `json:"file_size"`
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	ocrCmd.Flags().BoolP("metadata", "m", false, "Include metadata in output")
	ocrCmd.Flags().Bool("json", false, "Output as JSON")
	ocrCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runOCR(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ocr")

	outputPath, _ := cmd.Flags().GetString("output")
	includeMetadata, _ := cmd.Flags().GetBool("metadata")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	pdfPath := args[0]
	fileInfo, data, err := readPDFFile(pdfPath, log)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(time.Duration(timeoutSecs) * time.Second)
	defer cancel()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	log.Info().Str("file", pdfPath).Int64("size", fileInfo.Size()).Msg("Processing PDF")

	result, err := a.sources.OCR.ProcessPDFWithMetadata(ctx, bytes.NewReader(data))
	if err != nil {
		return handleOCRError(err, log)
	}

	log.Info().
		Str("engine", result.Engine).
		Int("page_count", result.PageCount).
		Float32("confidence", result.Confidence).
		Dur("duration", result.ProcessingDuration).
		Int("text_length", len(result.Text)).
		Msg("Text extracted")

	var out bytes.Buffer
	if err := formatOCRResult(&out, result, fileInfo, jsonOutput, includeMetadata); err != nil {
		return err
	}
	return writeOutput(cmd, outputPath, out.Bytes(), log)
}

// readPDFFile checks that path is a non-empty regular file within the OCR size limit.
func readPDFFile(path string, log zerolog.Logger) (os.FileInfo, []byte, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("PDF file not found: %s", path)
		}
		if os.IsPermission(err) {
			return nil, nil, fmt.Errorf("permission denied accessing PDF file: %s", path)
		}
		return nil, nil, fmt.Errorf("error accessing PDF file: %w", err)
	}
	if !fileInfo.Mode().IsRegular() {
		return nil, nil, fmt.Errorf("path is not a regular file: %s", path)
	}
	if !strings.HasSuffix(strings.ToLower(path), ".pdf") {
		log.Warn().Str("file", path).Msg("File does not have .pdf extension")
	}
	if fileInfo.Size() == 0 {
		return nil, nil, fmt.Errorf("PDF file is empty: %s", path)
	}
	if fileInfo.Size() > ocr.MaxFileSizeBytes {
		return nil, nil, fmt.Errorf("PDF file too large (%d bytes). Maximum size is %d bytes (20MB)",
			fileInfo.Size(), ocr.MaxFileSizeBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read PDF file: %w", err)
	}
	return fileInfo, data, nil
}

// handleOCRError turns engine errors into messages a user can act on.
func handleOCRError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Str("engine", ocr.ErrorEngine(err)).Msg("OCR processing failed")

	errStr := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("OCR processing timed out. Try increasing --timeout or processing a smaller file")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("OCR processing was canceled")
	case errors.Is(err, ocr.ErrNoTextLayer):
		return fmt.Errorf("the PDF has no text layer and GOOGLE_SERVICE_ACCOUNT_KEY is not set, so it cannot be OCRed")
	case errors.Is(err, ocr.ErrPDFTooLarge):
		return fmt.Errorf("PDF file is too large (maximum 20MB). Try compressing or splitting the file")
	case errors.Is(err, ocr.ErrTooManyPages):
		return fmt.Errorf("PDF has too many pages (maximum 5 pages). Try splitting into smaller files")
	case errors.Is(err, ocr.ErrInvalidPDF):
		return fmt.Errorf("invalid or corrupted PDF file. Please check the file integrity")
	case errors.Is(err, ocr.ErrEmptyDocument):
		return fmt.Errorf("no readable text found in the document")
	case strings.Contains(errStr, "Unauthenticated") ||
		strings.Contains(errStr, "invalid_grant") ||
		strings.Contains(errStr, "transport: per-RPC creds failed"):
		return fmt.Errorf("Google Cloud authentication failed. Check that GOOGLE_SERVICE_ACCOUNT_KEY points to a valid service account key: %v", err)
	case strings.Contains(errStr, "PERMISSION_DENIED"):
		return fmt.Errorf("permission denied. Please ensure the service account has the 'Cloud Vision API User' role")
	case strings.Contains(errStr, "QUOTA_EXCEEDED") || strings.Contains(errStr, "quota"):
		return fmt.Errorf("Google Cloud Vision API quota exceeded. Check your project quotas in the Google Cloud Console")
	default:
		return fmt.Errorf("OCR processing failed: %w", err)
	}
}

func formatOCRResult(w io.Writer, result *ocr.OCRResult, fileInfo os.FileInfo, jsonOutput, includeMetadata bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(OCROutput{
			Text:               result.Text,
			Engine:             result.Engine,
			FileName:           filepath.Base(fileInfo.Name()),
			FileSize:           fileInfo.Size(),
			PageCount:          result.PageCount,
			Confidence:         result.Confidence,
			LanguageCodes:      result.LanguageCodes,
			ProcessedAt:        result.ProcessedAt,
			ProcessingDuration: result.ProcessingDuration.String(),
		})
	}

	if includeMetadata {
		fmt.Fprintf(w, "=== OCR Results for %s ===\n", filepath.Base(fileInfo.Name()))
		fmt.Fprintf(w, "File size: %d bytes\n", fileInfo.Size())
		fmt.Fprintf(w, "Engine: %s\n", result.Engine)
		if result.PageCount > 0 {
			fmt.Fprintf(w, "Pages processed: %d\n", result.PageCount)
		}
		if result.Confidence > 0 {
			fmt.Fprintf(w, "Confidence: %.1f%%\n", result.Confidence*100)
		}
		if len(result.LanguageCodes) > 0 {
			fmt.Fprintf(w, "Languages: %s\n", strings.Join(result.LanguageCodes, ", "))
		}
		fmt.Fprintf(w, "Processing time: %v\n", result.ProcessingDuration)
		fmt.Fprintf(w, "Processed at: %s\n", result.ProcessedAt.Format(time.RFC3339))
		fmt.Fprint(w, "\n=== Extracted Text ===\n\n")
	}
	_, err := fmt.Fprintln(w, result.Text)
	return err
}

// writeOutput writes to outputPath, or to the command's stdout when it is empty.
func writeOutput(cmd *cobra.Command, outputPath string, data []byte, log zerolog.Logger) error {
	if outputPath == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	log.Info().Str("output_file", outputPath).Int("bytes", len(data)).Msg("Output written to file")
	return nil
}
