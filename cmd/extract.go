package cmd

import (
	"bytes"
	"time"

	"github.com/spf13/cobra"

	"faimport/internal/extraction"
	"faimport/internal/logger"
	"faimport/pkg/models"
)

var extractCmd = &cobra.Command{
	Use:   "extract [pdf-file]",
	Short: "Show the invoice the importer would read from a PDF",
	Long: `Run a PDF through OCR and the extractor chain without touching the
database. The result is printed as JSON together with the validation issues
an import would record in the invoice notes.

Extractors are tried in order: the Amazon text parser, Google Document AI
(when GOOGLE_CLOUD_PROJECT, GOOGLE_CLOUD_LOCATION and DOCUMENT_AI_PROCESSOR_ID
are set) and ChatGPT (when OPENAI_API_KEY is set).`,
	Example: `  faimport extract invoice.pdf
  faimport extract invoice.pdf -o invoice.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

// ExtractOutput is the document printed by the extract command.
type ExtractOutput struct {
	Invoice  *models.Invoice `json:"invoice"`
	Issues   []string        `json:"issues"`
	Metadata ExtractMetadata `json:"metadata"`
}

type ExtractMetadata struct {
	FileName           string        `json:"file_name"`
	FileSize           int64         `json:"file_size_bytes"`
	OCREngine          string        `json:"ocr_engine,omitempty"`
	Extractors         string        `json:"extractors"`
	ProcessedAt        time.Time     `json:"processed_at"`
	ProcessingDuration time.Duration `json:"processing_duration"`
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	extractCmd.Flags().Int("timeout", 120, "Processing timeout in seconds")
}

func runExtract(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("extract")

	outputPath, _ := cmd.Flags().GetString("output")
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

	start := time.Now()
	doc := extraction.Document{Source: pdfPath, PDF: data}
	var engine string
	if result, err := a.sources.OCR.ProcessPDFWithMetadata(ctx, bytes.NewReader(data)); err != nil {
		log.Warn().Err(err).Msg("No text available, extractors get the PDF only")
	} else {
		doc.Text = result.Text
		engine = result.Engine
	}

	inv, err := a.sources.Extractor.Extract(ctx, doc)
	if err != nil {
		return err
	}
	inv.PDFPath = pdfPath

	out := ExtractOutput{
		Invoice: inv,
		Issues:  inv.Validate(),
		Metadata: ExtractMetadata{
			FileName:           fileInfo.Name(),
			FileSize:           fileInfo.Size(),
			OCREngine:          engine,
			Extractors:         a.sources.Extractor.Name(),
			ProcessedAt:        time.Now(),
			ProcessingDuration: time.Since(start),
		},
	}
	log.Info().
		Str("invoice_number", inv.InvoiceNumber).
		Int("items", len(inv.Items)).
		Int("issues", len(out.Issues)).
		Msg("Invoice extracted")

	var buf bytes.Buffer
	if err := printJSON(&buf, out); err != nil {
		return err
	}
	return writeOutput(cmd, outputPath, buf.Bytes(), log)
}
