package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"faimport/internal/staging"
	"faimport/pkg/models"
)

var invoicesCmd = &cobra.Command{
	Use:     "invoices",
	Aliases: []string{"inv"},
	Short:   "Review and maintain staged invoices",
}

var invoicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List staged invoices",
	Example: `  faimport invoices list --status pending
  faimport invoices list --from 2024-01-01 --to 2024-01-31 --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		status, _ := cmd.Flags().GetString("status")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		order, _ := cmd.Flags().GetString("order")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		asJSON, _ := cmd.Flags().GetBool("json")

		f := staging.Filter{OrderNumber: order}
		if status != "" {
			st, err := models.ParseStatus(status)
			if err != nil {
				return err
			}
			f.Status = st
		}
		var err error
		if f.DateFrom, err = optionalDate("from", from); err != nil {
			return err
		}
		if f.DateTo, err = optionalDate("to", to); err != nil {
			return err
		}

		return withApp(cmd, func(a *app) error {
			invoices, err := a.repo.FindAll(cmd.Context(), f, limit, offset)
			if err != nil {
				return err
			}
			total, err := a.repo.Count(cmd.Context(), f)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), map[string]any{"invoices": invoices, "total": total})
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tINVOICE\tORDER\tDATE\tTOTAL\tSTATUS\tITEMS\tUNMATCHED")
			for _, inv := range invoices {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s %s\t%s\t%d\t%d\n",
					inv.ID, inv.InvoiceNumber, inv.OrderNumber, inv.InvoiceDate.Format("2006-01-02"),
					inv.TotalAmount.StringFixed(2), inv.Currency, inv.Status, len(inv.Items), inv.UnmatchedItemCount())
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d invoice(s)\n", len(invoices), total)
			return nil
		})
	},
}

var invoicesShowCmd = &cobra.Command{
	Use:   "show [invoice-id]",
	Short: "Show an invoice with its items, payments and processing log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		return withApp(cmd, func(a *app) error {
			inv, err := a.repo.FindByID(cmd.Context(), id)
			if err != nil {
				return err
			}
			if inv == nil {
				return fmt.Errorf("invoice %d: %w", id, errNotFound)
			}
			logs, err := a.repo.ProcessingLogs(cmd.Context(), id)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"invoice":        inv,
					"issues":         inv.ReviewIssues(),
					"processing_log": logs,
				})
			}
			return printInvoice(cmd.OutOrStdout(), inv, logs)
		})
	},
}

var invoicesMarkProcessedCmd = &cobra.Command{
	Use:   "mark-processed [invoice-id]",
	Short: "Mark an invoice as posted in FrontAccounting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		transNo, _ := cmd.Flags().GetInt64("trans-no")
		notes, _ := cmd.Flags().GetString("notes")

		return withApp(cmd, func(a *app) error {
			var tn *int64
			if transNo > 0 {
				tn = &transNo
			}
			found, err := a.repo.UpdateStatus(cmd.Context(), id, models.StatusCompleted, notes, tn)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("invoice %d: %w", id, errNotFound)
			}
			details := "Marked as processed"
			if tn != nil {
				details = fmt.Sprintf("Marked as processed, FA transaction %d", transNo)
			}
			if err := a.repo.AddProcessingLog(cmd.Context(), a.actor(cmd), id, staging.ActionStatusChanged, details); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Invoice %d completed\n", id)
			return nil
		})
	},
}

var invoicesDeleteCmd = &cobra.Command{
	Use:   "delete [invoice-id]",
	Short: "Delete an invoice with its items and payments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(a *app) error {
			found, err := a.repo.Delete(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("invoice %d: %w", id, errNotFound)
			}
			a.log.Info().Int64("invoice_id", id).Str("actor", string(a.actor(cmd))).Msg("Invoice deleted")
			fmt.Fprintf(cmd.OutOrStdout(), "Invoice %d deleted\n", id)
			return nil
		})
	},
}

var invoicesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show staging statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return withApp(cmd, func(a *app) error {
			stats, err := a.repo.Statistics(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), stats)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, s := range models.Statuses {
				fmt.Fprintf(w, "%s\t%d\n", s, stats.ByStatus[s])
			}
			fmt.Fprintf(w, "total\t%d\n", stats.TotalInvoices)
			fmt.Fprintf(w, "amount\t%s\n", stats.TotalAmount.StringFixed(2))
			fmt.Fprintf(w, "unmatched items\t%d\n", stats.UnmatchedItems)
			return w.Flush()
		})
	},
}

var invoicesCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete completed invoices processed before the cutoff",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		days, _ := cmd.Flags().GetInt("days")
		return withApp(cmd, func(a *app) error {
			age := a.cfg.CleanupAge
			if days > 0 {
				age = time.Duration(days) * 24 * time.Hour
			}
			cutoff := time.Now().Add(-age)
			n, err := a.repo.Cleanup(cmd.Context(), a.actor(cmd), cutoff)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d invoice(s) processed before %s removed\n", n, cutoff.Format("2006-01-02"))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(invoicesCmd)
	invoicesCmd.AddCommand(invoicesListCmd, invoicesShowCmd, invoicesMarkProcessedCmd,
		invoicesDeleteCmd, invoicesStatsCmd, invoicesCleanupCmd)

	invoicesListCmd.Flags().String("status", "", "pending, processing, matched, completed or error")
	invoicesListCmd.Flags().String("from", "", "First invoice date (YYYY-MM-DD)")
	invoicesListCmd.Flags().String("to", "", "Last invoice date (YYYY-MM-DD)")
	invoicesListCmd.Flags().String("order", "", "Order number substring")
	invoicesListCmd.Flags().Int("limit", 50, "Maximum number of invoices")
	invoicesListCmd.Flags().Int("offset", 0, "Invoices to skip")
	invoicesListCmd.Flags().Bool("json", false, "Print as JSON")

	invoicesShowCmd.Flags().Bool("json", false, "Print as JSON")
	invoicesStatsCmd.Flags().Bool("json", false, "Print as JSON")

	invoicesMarkProcessedCmd.Flags().Int64("trans-no", 0, "FrontAccounting transaction number")
	invoicesMarkProcessedCmd.Flags().String("notes", "", "Notes stored on the invoice")

	invoicesCleanupCmd.Flags().Int("days", 0, "Age in days (default: CLEANUP_AGE)")
}

func optionalDate(flag, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s date %q", flag, s)
	}
	return t, nil
}

func printInvoice(out io.Writer, inv *models.Invoice, logs []staging.LogEntry) error {
	fmt.Fprintf(out, "Invoice %s (#%d)\n", inv.InvoiceNumber, inv.ID)
	fmt.Fprintf(out, "Order:    %s\n", inv.OrderNumber)
	fmt.Fprintf(out, "Date:     %s\n", inv.InvoiceDate.Format("2006-01-02"))
	fmt.Fprintf(out, "Total:    %s %s (tax %s, shipping %s)\n", inv.TotalAmount.StringFixed(2), inv.Currency,
		inv.TaxAmount.StringFixed(2), inv.ShippingAmount.StringFixed(2))
	fmt.Fprintf(out, "Status:   %s\n", inv.Status)
	if inv.FATransNo != nil {
		fmt.Fprintf(out, "FA trans: %d\n", *inv.FATransNo)
	}
	if inv.Notes != "" {
		fmt.Fprintf(out, "Notes:    %s\n", inv.Notes)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\nITEM\tLINE\tPRODUCT\tASIN/SKU\tQTY\tUNIT\tTOTAL\tSTOCK")
	for _, it := range inv.Items {
		code := it.ASIN
		if code == "" {
			code = it.SKU
		}
		stock := "-"
		if it.Matched {
			stock = fmt.Sprintf("%s (%s)", it.FAStockID, it.MatchType)
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%d\t%s\t%s\t%s\n", it.ID, it.LineNumber, it.ProductName, code,
			it.Quantity, it.UnitPrice.StringFixed(2), it.TotalPrice.StringFixed(2), stock)
	}
	fmt.Fprintln(w, "\nPAYMENT\tMETHOD\tREFERENCE\tAMOUNT\tALLOCATED")
	for _, p := range inv.Payments {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\n", p.ID, p.Method, p.Reference, p.Amount.StringFixed(2), p.AllocationComplete)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if issues := inv.ReviewIssues(); len(issues) > 0 {
		fmt.Fprintf(out, "\nOpen issues:\n  - %s\n", strings.Join(issues, "\n  - "))
	}
	if len(logs) > 0 {
		fmt.Fprintln(out, "\nProcessing log:")
		for _, l := range logs {
			fmt.Fprintf(out, "  %s  %-15s %-10s %s\n", l.CreatedAt.Format("2006-01-02 15:04"), l.Action, l.CreatedBy, l.Details)
		}
	}
	return nil
}
