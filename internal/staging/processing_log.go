package staging

import (
	"context"
	"database/sql"
	"time"

	"faimport/internal/database"
	"faimport/pkg/models"
)

// Processing log actions.
const (
	ActionImported      = "imported"
	ActionMatched       = "matched"
	ActionStatusChanged = "status_changed"
	ActionDeleted       = "deleted"
	ActionAllocated     = "allocated"
)

// LogEntry is one row of the processing log.
type LogEntry struct {
	ID        int64        `json:"id"`
	InvoiceID int64        `json:"staging_invoice_id"`
	Action    string       `json:"action"`
	Details   string       `json:"details,omitempty"`
	CreatedBy models.Actor `json:"created_by"`
	CreatedAt time.Time    `json:"created_at"`
}

// AddProcessingLog appends an audit entry for the invoice.
func (r *Repository) AddProcessingLog(ctx context.Context, actor models.Actor, invoiceID int64, action, details string) error {
	_, err := r.db.Exec(ctx, "INSERT INTO "+r.db.Table(database.TableLog)+
		" (staging_invoice_id, action, details, created_by, created_at) VALUES (?, ?, ?, ?, ?)",
		invoiceID, action, database.NullString(details), string(actor.OrSystem()), database.Now())
	return err
}

// ProcessingLogs returns the invoice's audit trail, oldest first.
func (r *Repository) ProcessingLogs(ctx context.Context, invoiceID int64) ([]LogEntry, error) {
	rows, err := r.db.Query(ctx, "SELECT id, staging_invoice_id, action, details, created_by, created_at FROM "+
		r.db.Table(database.TableLog)+" WHERE staging_invoice_id = ? ORDER BY created_at, id", invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var (
			e                  LogEntry
			details, createdBy sql.NullString
			createdAt          database.NullTime
		)
		if err := rows.Scan(&e.ID, &e.InvoiceID, &e.Action, &details, &createdBy, &createdAt); err != nil {
			return nil, err
		}
		e.Details = details.String
		e.CreatedBy = models.Actor(createdBy.String)
		e.CreatedAt = createdAt.Time
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
