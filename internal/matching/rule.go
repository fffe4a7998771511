package matching

import (
	"time"

	"faimport/pkg/models"
)

// RuleType selects which invoice item attribute a rule is compared against.
type RuleType string

// Rule tiers in the order they are tried.
const (
	RuleASIN        RuleType = "asin"
	RuleSKU         RuleType = "sku"
	RuleProductName RuleType = "product_name"
	RuleKeyword     RuleType = "keyword" // substring of the product name
)

// Rule maps a product attribute value to a stock record.
type Rule struct {
	ID               int64        `json:"id"`
	MatchType        RuleType     `json:"match_type"`
	MatchValue       string       `json:"match_value"`
	StockID          string       `json:"fa_stock_id"`
	StockDescription string       `json:"stock_description,omitempty"` // from stock_master, empty when the stock row is gone
	Priority         int          `json:"priority"`                    // lower is tried first
	Active           bool         `json:"active"`
	CreatedBy        models.Actor `json:"created_by"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Match is the rule that resolved a product.
type Match struct {
	RuleID   int64
	RuleType RuleType
	StockID  string
}

// Suggestion is a ranked stock candidate for an unmatched product.
type Suggestion struct {
	StockID     string  `json:"stock_id"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
	Reason      string  `json:"reason"` // "rule" or "words"
}
