package staging

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"faimport/internal/database"
	"faimport/pkg/models"
)

// Statistics summarizes the staging area for the dashboard.
type Statistics struct {
	ByStatus       map[models.Status]int `json:"by_status"`
	TotalInvoices  int                   `json:"total_invoices"`
	TotalAmount    decimal.Decimal       `json:"total_amount"`
	UnmatchedItems int                   `json:"unmatched_items"`
}

// Statistics counts invoices per status, sums their totals and counts unmatched items.
func (r *Repository) Statistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{ByStatus: make(map[models.Status]int, len(models.Statuses))}
	for _, s := range models.Statuses {
		stats.ByStatus[s] = 0
	}

	rows, err := r.db.Query(ctx, "SELECT status, COUNT(*), COALESCE(SUM(invoice_total), 0) FROM "+
		r.db.Table(database.TableInvoices)+" GROUP BY status")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var (
			status string
			n      int
			sum    decimal.Decimal
		)
		if err := rows.Scan(&status, &n, &sum); err != nil {
			rows.Close()
			return nil, err
		}
		stats.ByStatus[models.Status(status)] = n
		stats.TotalInvoices += n
		stats.TotalAmount = stats.TotalAmount.Add(sum)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	err = r.db.QueryRow(ctx, "SELECT COUNT(*) FROM "+r.db.Table(database.TableItems)+
		" WHERE fa_item_matched = 0").Scan(&stats.UnmatchedItems)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Cleanup deletes completed invoices processed before cutoff and returns how many were removed.
func (r *Repository) Cleanup(ctx context.Context, actor models.Actor, cutoff time.Time) (int, error) {
	rows, err := r.db.Query(ctx, "SELECT id FROM "+r.db.Table(database.TableInvoices)+
		" WHERE status = ? AND processed_at IS NOT NULL AND processed_at < ? ORDER BY id",
		string(models.StatusCompleted), database.Timestamp(cutoff))
	if err != nil {
		return 0, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	removed := 0
	for _, id := range ids {
		ok, err := r.Delete(ctx, id)
		if err != nil {
			return removed, err
		}
		if !ok {
			continue
		}
		removed++
		if err := r.AddProcessingLog(ctx, actor, id, ActionDeleted, "cleanup"); err != nil {
			return removed, fmt.Errorf("log cleanup of invoice %d: %w", id, err)
		}
	}

	r.log.Info().Int("removed", removed).Time("cutoff", cutoff).Msg("Staging cleanup finished")
	return removed, nil
}
