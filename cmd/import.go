package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"faimport/internal/importer"
	"faimport/internal/logger"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import Amazon invoices into staging",
	Long: `Import invoices from a source, check them for duplicates, store them in
staging and auto-match their items against the matching rules.

Every invoice is reported as success, duplicate, duplicate_invoice or failed.
A failed invoice never stops the rest of the batch.`,
}

var importSampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Import generated sample invoices",
	Long: `Import deterministic sample invoices. Running the command twice reports
the second batch as duplicate_invoice, which is a quick way to try the
duplicate handling against a fresh database.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		count, _ := cmd.Flags().GetInt("count")
		start, _ := cmd.Flags().GetString("start")
		day, err := time.Parse("2006-01-02", start)
		if err != nil {
			return fmt.Errorf("invalid --start date %q: %w", start, err)
		}
		return runImport(cmd, false, func(f *importer.Factory) (importer.Source, error) {
			return f.Sample(count, day), nil
		})
	},
}

var importPDFCmd = &cobra.Command{
	Use:   "pdf [pdf-file...]",
	Short: "Import invoice PDFs",
	Example: `  faimport import pdf invoice-112-1234567.pdf
  faimport import pdf ~/Downloads/*.pdf --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd, true, func(f *importer.Factory) (importer.Source, error) {
			files := make([]importer.PDFFile, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return nil, err
				}
				abs, err := filepath.Abs(path)
				if err != nil {
					abs = path
				}
				files = append(files, importer.PDFFile{Name: filepath.Base(path), Path: abs, Data: data})
			}
			return f.PDF(files...), nil
		})
	},
}

var importDirCmd = &cobra.Command{
	Use:   "dir [directory]",
	Short: "Import every PDF in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd, true, func(f *importer.Factory) (importer.Source, error) {
			return f.Directory(args[0]), nil
		})
	},
}

var importGmailCmd = &cobra.Command{
	Use:   "gmail",
	Short: "Import invoices from the configured Gmail mailbox",
	Long: `Search the mailbox of GMAIL_USER for Amazon invoice mail. PDF attachments
are read like uploaded files; mails without one are parsed from their body.

Required environment variables:
  GOOGLE_SERVICE_ACCOUNT_KEY - service account key with domain-wide delegation
  GMAIL_USER                 - mailbox to read`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		query, _ := cmd.Flags().GetString("query")
		limit, _ := cmd.Flags().GetInt64("limit")
		return runImport(cmd, true, func(f *importer.Factory) (importer.Source, error) {
			if query != "" {
				f.GmailQuery = query
			}
			f.GmailLimit = limit
			return f.Gmail()
		})
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.AddCommand(importSampleCmd, importPDFCmd, importDirCmd, importGmailCmd)

	importCmd.PersistentFlags().Bool("json", false, "Print the batch result as JSON")
	importCmd.PersistentFlags().Int("timeout", 600, "Import timeout in seconds")

	importSampleCmd.Flags().Int("count", 3, "Number of invoices to generate")
	importSampleCmd.Flags().String("start", time.Now().UTC().Format("2006-01-02"), "Date of the first invoice (YYYY-MM-DD)")

	importGmailCmd.Flags().String("query", "", "Gmail search query (default: GMAIL_QUERY)")
	importGmailCmd.Flags().Int64("limit", 50, "Maximum number of messages to read")
}

func runImport(cmd *cobra.Command, withSources bool, source func(*importer.Factory) (importer.Source, error)) error {
	log := logger.WithComponent("import")

	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	asJSON, _ := cmd.Flags().GetBool("json")

	ctx, cancel := signalContext(time.Duration(timeoutSecs) * time.Second)
	defer cancel()

	a, err := newApp(ctx, withSources)
	if err != nil {
		return err
	}
	defer a.Close()

	factory := a.sources
	if factory == nil {
		factory = &importer.Factory{}
	}
	src, err := source(factory)
	if err != nil {
		return err
	}

	batch, err := a.pipeline.Run(ctx, a.actor(cmd), src)
	if err != nil {
		return err
	}
	log.Debug().Str("batch_id", batch.ID).Msg("Import finished")

	if asJSON {
		return printJSON(cmd.OutOrStdout(), batch)
	}
	printBatch(cmd.OutOrStdout(), batch)
	return nil
}

func printBatch(out io.Writer, batch *importer.BatchResult) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REF\tSTATUS\tINVOICE\tID\tMATCHED\tDETAILS")
	for _, r := range batch.Results {
		details := r.Error
		switch {
		case r.DuplicateOf > 0:
			details = fmt.Sprintf("duplicate of #%d (%.0f%%)", r.DuplicateOf, r.Confidence*100)
		case details == "" && len(r.Issues) > 0:
			details = strings.Join(r.Issues, "; ")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			r.Ref, r.Status, r.InvoiceNumber, idOrDash(r.InvoiceID), r.MatchedItems, details)
	}
	w.Flush()

	s := batch.Summary()
	fmt.Fprintf(out, "\n%d imported, %d duplicate, %d duplicate invoice number, %d failed\n",
		s[importer.StatusSuccess], s[importer.StatusDuplicate], s[importer.StatusDuplicateInvoice], s[importer.StatusFailed])
}

func idOrDash(id int64) string {
	if id == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", id)
}
