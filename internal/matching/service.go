// Package matching resolves Amazon products to FrontAccounting stock records through an ordered
// set of matching rules.
package matching

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"faimport/internal/database"
	"faimport/internal/logger"
	"faimport/internal/metrics"
	"faimport/pkg/models"
)

var (
	ErrItemNotFound       = errors.New("invoice item not found")
	ErrItemAlreadyMatched = errors.New("invoice item is already matched")
	ErrUnknownStockItem   = errors.New("stock item does not exist or is inactive")
)

// actionMatched is the processing log action written for every match.
const actionMatched = "matched"

// DefaultSuggestionLimit applies when GetSuggestedStockItems is called without a limit.
const DefaultSuggestionLimit = 10

// ItemStore is the slice of the staging repository the matcher needs.
type ItemStore interface {
	UnmatchedItems(ctx context.Context, invoiceID int64) ([]*models.InvoiceItem, error)
	FindItem(ctx context.Context, itemID int64) (*models.InvoiceItem, error)
	MarkItemMatched(ctx context.Context, itemID int64, stockID string, matchType models.MatchType) (bool, error)
}

// AuditLogger records matches in the processing log.
type AuditLogger interface {
	AddProcessingLog(ctx context.Context, actor models.Actor, invoiceID int64, action, details string) error
}

// Service owns the matching rules and applies them to staged items.
type Service struct {
	db    database.Gateway
	items ItemStore
	audit AuditLogger
	log   zerolog.Logger
}

func NewService(db database.Gateway, items ItemStore, audit AuditLogger) *Service {
	return &Service{
		db:    db,
		items: items,
		audit: audit,
		log:   logger.WithComponent("matching"),
	}
}

// FindMatchingStockItem tries ASIN rules, then SKU rules, then exact product name rules, then
// keyword rules, and returns the first hit. Within a tier the lowest priority wins. Empty inputs
// skip their tier. Keyword rules compare case-insensitively. A nil Match means no rule applies.
func (s *Service) FindMatchingStockItem(ctx context.Context, asin, sku, productName string) (*Match, error) {
	rules := s.db.Table(database.TableRules)
	exact := "SELECT id, fa_stock_id FROM " + rules +
		" WHERE active = 1 AND match_type = ? AND match_value = ? ORDER BY priority, id LIMIT 1"

	tiers := []struct {
		typ   RuleType
		value string
		query string
	}{
		{RuleASIN, asin, exact},
		{RuleSKU, sku, exact},
		{RuleProductName, productName, exact},
		{RuleKeyword, productName, "SELECT id, fa_stock_id FROM " + rules +
			" WHERE active = 1 AND match_type = ? AND INSTR(LOWER(?), LOWER(match_value)) > 0 ORDER BY priority, id LIMIT 1"},
	}

	for _, tier := range tiers {
		if strings.TrimSpace(tier.value) == "" {
			continue
		}
		m := Match{RuleType: tier.typ}
		err := s.db.QueryRow(ctx, tier.query, string(tier.typ), tier.value).Scan(&m.RuleID, &m.StockID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("find %s rule: %w", tier.typ, err)
		}
		return &m, nil
	}
	return nil, nil
}

// AutoMatchInvoiceItems matches every unmatched item of the invoice it can and returns how many
// were matched. Items that are already matched are not looked at again.
func (s *Service) AutoMatchInvoiceItems(ctx context.Context, actor models.Actor, invoiceID int64) (int, error) {
	const op = "AutoMatchInvoiceItems"

	items, err := s.items.UnmatchedItems(ctx, invoiceID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	matched := 0
	for _, it := range items {
		m, err := s.FindMatchingStockItem(ctx, it.ASIN, it.SKU, it.ProductName)
		if err != nil {
			return matched, fmt.Errorf("%s: item %d: %w", op, it.ID, err)
		}
		if m == nil {
			continue
		}

		ok, err := s.items.MarkItemMatched(ctx, it.ID, m.StockID, models.MatchAuto)
		if err != nil {
			return matched, fmt.Errorf("%s: item %d: %w", op, it.ID, err)
		}
		if !ok {
			continue
		}
		it.MatchToStock(m.StockID, models.MatchAuto)
		matched++
		metrics.ItemMatches.WithLabelValues(string(models.MatchAuto)).Inc()

		details := fmt.Sprintf("Line %d %q matched to %s by %s rule #%d", it.LineNumber, it.ProductName, m.StockID, m.RuleType, m.RuleID)
		if err := s.audit.AddProcessingLog(ctx, actor, invoiceID, actionMatched, details); err != nil {
			return matched, fmt.Errorf("%s: %w", op, err)
		}
	}

	s.log.Info().
		Int64("invoice_id", invoiceID).
		Int("candidates", len(items)).
		Int("matched", matched).
		Msg("Auto-match finished")
	return matched, nil
}

// ManualMatch ties an unmatched item to an active stock record chosen by a user.
func (s *Service) ManualMatch(ctx context.Context, actor models.Actor, itemID int64, stockID string) error {
	const op = "ManualMatch"

	it, err := s.items.FindItem(ctx, itemID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if it == nil {
		return fmt.Errorf("%s: %w: %d", op, ErrItemNotFound, itemID)
	}
	if it.Matched {
		return fmt.Errorf("%s: %w: %d", op, ErrItemAlreadyMatched, itemID)
	}

	var n int
	err = s.db.QueryRow(ctx, "SELECT COUNT(*) FROM "+s.db.Table(database.TableStock)+
		" WHERE stock_id = ? AND inactive = 0", stockID).Scan(&n)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w: %s", op, ErrUnknownStockItem, stockID)
	}

	ok, err := s.items.MarkItemMatched(ctx, itemID, stockID, models.MatchManual)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w: %d", op, ErrItemAlreadyMatched, itemID)
	}
	metrics.ItemMatches.WithLabelValues(string(models.MatchManual)).Inc()

	details := fmt.Sprintf("Line %d %q matched to %s manually", it.LineNumber, it.ProductName, stockID)
	return s.audit.AddProcessingLog(ctx, actor, it.InvoiceID, actionMatched, details)
}

// GetSuggestedStockItems ranks stock records for a product name, best first. A rule hit always
// ranks first, even when its stock id is inactive or missing from stock_master. The rest are
// active records scored by the share of the product's words found in the stock description,
// ties broken by stock id.
func (s *Service) GetSuggestedStockItems(ctx context.Context, productName string, limit int) ([]Suggestion, error) {
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}

	var out []Suggestion
	ruleStock := ""
	if m, err := s.FindMatchingStockItem(ctx, "", "", productName); err != nil {
		return nil, err
	} else if m != nil {
		ruleStock = m.StockID
		var desc string
		err := s.db.QueryRow(ctx, "SELECT description FROM "+s.db.Table(database.TableStock)+
			" WHERE stock_id = ?", ruleStock).Scan(&desc)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		out = append(out, Suggestion{StockID: ruleStock, Description: desc, Score: 1, Reason: "rule"})
	}

	words := significantWords(productName)
	rows, err := s.db.Query(ctx, "SELECT stock_id, description FROM "+s.db.Table(database.TableStock)+
		" WHERE inactive = 0 ORDER BY stock_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scored []Suggestion
	for rows.Next() {
		var id, desc string
		if err := rows.Scan(&id, &desc); err != nil {
			return nil, err
		}
		if id == ruleStock {
			continue
		}
		if score := overlap(words, significantWords(desc)); score > 0 {
			scored = append(scored, Suggestion{StockID: id, Description: desc, Score: score, Reason: "words"})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].StockID < scored[j].StockID
	})
	out = append(out, scored...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// significantWords lowercases s and keeps the distinct words of two or more letters or digits.
func significantWords(s string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(w)) >= 2 {
			words[w] = struct{}{}
		}
	}
	return words
}

// overlap is the share of product words that also appear in the description.
func overlap(product, description map[string]struct{}) float64 {
	if len(product) == 0 {
		return 0
	}
	hits := 0
	for w := range product {
		if _, ok := description[w]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(product))
}
