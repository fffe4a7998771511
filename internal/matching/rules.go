package matching

import (
	"context"
	"database/sql"

	"faimport/internal/database"
	"faimport/pkg/models"
)

// AddMatchingRule stores a new active rule and returns its id. The rule type is stored as
// given; callers are expected to pass one of the RuleType constants. The priority is stored as
// given as well, so 0 or a negative value sorts ahead of the default 1.
func (s *Service) AddMatchingRule(ctx context.Context, actor models.Actor, matchType RuleType, matchValue, stockID string, priority int) (int64, error) {
	res, err := s.db.Exec(ctx, "INSERT INTO "+s.db.Table(database.TableRules)+
		" (match_type, match_value, fa_stock_id, priority, active, created_by, created_at) VALUES (?, ?, ?, ?, 1, ?, ?)",
		string(matchType), matchValue, stockID, priority, string(actor.OrSystem()), database.Now())
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	s.log.Info().
		Int64("rule_id", id).
		Str("match_type", string(matchType)).
		Str("stock_id", stockID).
		Str("actor", string(actor.OrSystem())).
		Msg("Matching rule added")
	return id, nil
}

// GetMatchingRules lists rules with the description of their stock record, ordered by
// priority, then type, then value.
func (s *Service) GetMatchingRules(ctx context.Context, activeOnly bool) ([]Rule, error) {
	q := "SELECT r.id, r.match_type, r.match_value, r.fa_stock_id, r.priority, r.active, r.created_by, r.created_at, s.description" +
		" FROM " + s.db.Table(database.TableRules) + " r" +
		" LEFT JOIN " + s.db.Table(database.TableStock) + " s ON s.stock_id = r.fa_stock_id"
	if activeOnly {
		q += " WHERE r.active = 1"
	}
	q += " ORDER BY r.priority, r.match_type, r.match_value"

	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var (
			r                    Rule
			matchType            string
			createdBy, stockDesc sql.NullString
			createdAt            database.NullTime
		)
		if err := rows.Scan(&r.ID, &matchType, &r.MatchValue, &r.StockID, &r.Priority, &r.Active,
			&createdBy, &createdAt, &stockDesc); err != nil {
			return nil, err
		}
		r.MatchType = RuleType(matchType)
		r.CreatedBy = models.Actor(createdBy.String)
		r.CreatedAt = createdAt.Time
		r.StockDescription = stockDesc.String
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// UpdateRuleStatus activates or deactivates a rule and reports whether it exists.
func (s *Service) UpdateRuleStatus(ctx context.Context, ruleID int64, active bool) (bool, error) {
	res, err := s.db.Exec(ctx, "UPDATE "+s.db.Table(database.TableRules)+" SET active = ? WHERE id = ?", active, ruleID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteRule removes a rule and reports whether it existed.
func (s *Service) DeleteRule(ctx context.Context, ruleID int64) (bool, error) {
	res, err := s.db.Exec(ctx, "DELETE FROM "+s.db.Table(database.TableRules)+" WHERE id = ?", ruleID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
