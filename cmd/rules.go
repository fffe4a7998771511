package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"faimport/internal/matching"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage product matching rules",
	Long: `Matching rules map an Amazon product to a FrontAccounting stock item.

Rules are tried by type: asin, then sku, then product_name (exact), then
keyword (the value appears anywhere in the product name, ignoring case).
Within a type the lowest priority wins.`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List matching rules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		all, _ := cmd.Flags().GetBool("all")
		asJSON, _ := cmd.Flags().GetBool("json")
		return withApp(cmd, func(a *app) error {
			rules, err := a.matcher.GetMatchingRules(cmd.Context(), !all)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), rules)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tVALUE\tSTOCK ID\tPRIORITY\tACTIVE\tDESCRIPTION")
			for _, r := range rules {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%t\t%s\n",
					r.ID, r.MatchType, r.MatchValue, r.StockID, r.Priority, r.Active, r.StockDescription)
			}
			return w.Flush()
		})
	},
}

var rulesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a matching rule",
	Example: `  faimport rules add --type asin --value B004YAVF8I --stock MOUSE-M185
  faimport rules add --type keyword --value toner --stock TONER --priority 50`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		typ, _ := cmd.Flags().GetString("type")
		value, _ := cmd.Flags().GetString("value")
		stock, _ := cmd.Flags().GetString("stock")
		priority, _ := cmd.Flags().GetInt("priority")

		switch matching.RuleType(typ) {
		case matching.RuleASIN, matching.RuleSKU, matching.RuleProductName, matching.RuleKeyword:
		default:
			return fmt.Errorf("invalid --type %q: use asin, sku, product_name or keyword", typ)
		}

		return withApp(cmd, func(a *app) error {
			id, err := a.matcher.AddMatchingRule(cmd.Context(), a.actor(cmd), matching.RuleType(typ), value, stock, priority)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rule %d added\n", id)
			return nil
		})
	},
}

func ruleIDCommand(use, short, done string, fn func(a *app, cmd *cobra.Command, id int64) (bool, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [rule-id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(a *app) error {
				found, err := fn(a, cmd, id)
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("rule %d: %w", id, errNotFound)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Rule %d %s\n", id, done)
				return nil
			})
		},
	}
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(
		rulesListCmd,
		rulesAddCmd,
		ruleIDCommand("enable", "Activate a rule", "enabled", func(a *app, cmd *cobra.Command, id int64) (bool, error) {
			return a.matcher.UpdateRuleStatus(cmd.Context(), id, true)
		}),
		ruleIDCommand("disable", "Deactivate a rule", "disabled", func(a *app, cmd *cobra.Command, id int64) (bool, error) {
			return a.matcher.UpdateRuleStatus(cmd.Context(), id, false)
		}),
		ruleIDCommand("delete", "Delete a rule", "deleted", func(a *app, cmd *cobra.Command, id int64) (bool, error) {
			return a.matcher.DeleteRule(cmd.Context(), id)
		}),
	)

	rulesListCmd.Flags().Bool("all", false, "Include inactive rules")
	rulesListCmd.Flags().Bool("json", false, "Print as JSON")

	rulesAddCmd.Flags().String("type", "", "Rule type: asin, sku, product_name or keyword")
	rulesAddCmd.Flags().String("value", "", "Value to match")
	rulesAddCmd.Flags().String("stock", "", "FrontAccounting stock id")
	rulesAddCmd.Flags().Int("priority", 10, "Lower priorities are tried first")
	for _, f := range []string{"type", "value", "stock"} {
		_ = rulesAddCmd.MarkFlagRequired(f)
	}
}
