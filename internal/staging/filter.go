package staging

import (
	"strings"
	"time"

	"faimport/internal/database"
	"faimport/pkg/models"
)

// Filter narrows FindAll and Count. Zero fields are ignored.
type Filter struct {
	Status      models.Status
	DateFrom    time.Time // inclusive, compared on invoice date
	DateTo      time.Time // inclusive
	OrderNumber string    // substring
}

func (f Filter) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.DateFrom.IsZero() {
		conds = append(conds, "invoice_date >= ?")
		args = append(args, database.Date(f.DateFrom))
	}
	if !f.DateTo.IsZero() {
		conds = append(conds, "invoice_date <= ?")
		args = append(args, database.Date(f.DateTo))
	}
	if f.OrderNumber != "" {
		conds = append(conds, "order_number LIKE ?")
		args = append(args, "%"+f.OrderNumber+"%")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
