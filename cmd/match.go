package cmd

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"faimport/internal/matching"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match invoice items to FrontAccounting stock items",
}

var matchAutoCmd = &cobra.Command{
	Use:   "auto [invoice-id]",
	Short: "Apply the matching rules to every unmatched item of an invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(a *app) error {
			n, err := a.matcher.AutoMatchInvoiceItems(cmd.Context(), a.actor(cmd), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d item(s) matched\n", n)
			return nil
		})
	},
}

var matchFindCmd = &cobra.Command{
	Use:   "find",
	Short: "Show which rule would match a product",
	Example: `  faimport match find --asin B004YAVF8I
  faimport match find --name "Logitech M185 Wireless Mouse"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		asin, _ := cmd.Flags().GetString("asin")
		sku, _ := cmd.Flags().GetString("sku")
		name, _ := cmd.Flags().GetString("name")
		if asin == "" && sku == "" && name == "" {
			return fmt.Errorf("one of --asin, --sku or --name is required")
		}
		return withApp(cmd, func(a *app) error {
			m, err := a.matcher.FindMatchingStockItem(cmd.Context(), asin, sku, name)
			if err != nil {
				return err
			}
			if m == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No rule matches")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (rule #%d, %s)\n", m.StockID, m.RuleID, m.RuleType)
			return nil
		})
	},
}

var matchSuggestCmd = &cobra.Command{
	Use:   "suggest [product-name]",
	Short: "Suggest stock items for a product name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withApp(cmd, func(a *app) error {
			suggestions, err := a.matcher.GetSuggestedStockItems(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if len(suggestions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No suggestions")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STOCK ID\tSCORE\tREASON\tDESCRIPTION")
			for _, s := range suggestions {
				fmt.Fprintf(w, "%s\t%.2f\t%s\t%s\n", s.StockID, s.Score, s.Reason, s.Description)
			}
			return w.Flush()
		})
	},
}

var matchManualCmd = &cobra.Command{
	Use:   "manual [item-id] [stock-id]",
	Short: "Match an item to a stock item by hand",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemID, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(a *app) error {
			if err := a.matcher.ManualMatch(cmd.Context(), a.actor(cmd), itemID, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Item %d matched to %s\n", itemID, args[1])
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)
	matchCmd.AddCommand(matchAutoCmd, matchFindCmd, matchSuggestCmd, matchManualCmd)

	matchFindCmd.Flags().String("asin", "", "Amazon ASIN")
	matchFindCmd.Flags().String("sku", "", "Seller SKU")
	matchFindCmd.Flags().String("name", "", "Product name")

	matchSuggestCmd.Flags().Int("limit", matching.DefaultSuggestionLimit, "Maximum number of suggestions")
}

// withApp runs fn with a database-only app bound to the command's context.
func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	ctx, cancel := signalContext(0)
	defer cancel()
	cmd.SetContext(ctx)

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
