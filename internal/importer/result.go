package importer

import "time"

// ResultStatus is the outcome of importing one candidate.
type ResultStatus string

const (
	StatusSuccess          ResultStatus = "success"
	StatusDuplicate        ResultStatus = "duplicate"         // same order, total and date as a staged invoice
	StatusDuplicateInvoice ResultStatus = "duplicate_invoice" // invoice number already staged
	StatusFailed           ResultStatus = "failed"
)

// Result describes what happened to one candidate.
type Result struct {
	Ref           string       `json:"ref"`
	Status        ResultStatus `json:"status"`
	Success       bool         `json:"success"`
	InvoiceID     int64        `json:"invoice_id,omitempty"`
	InvoiceNumber string       `json:"invoice_number,omitempty"`
	DuplicateOf   int64        `json:"duplicate_of,omitempty"`
	Confidence    float64      `json:"confidence,omitempty"`
	MatchedItems  int          `json:"matched_items,omitempty"`
	Issues        []string     `json:"issues,omitempty"`
	Error         string       `json:"error,omitempty"`
}

// BatchResult collects the per-candidate results of one Run.
type BatchResult struct {
	ID         string    `json:"batch_id"`
	Source     string    `json:"source"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Results    []Result  `json:"results"`
}

// Count returns how many results have the given status.
func (b *BatchResult) Count(status ResultStatus) int {
	n := 0
	for _, r := range b.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}

// Summary counts results per status; every status is present.
func (b *BatchResult) Summary() map[ResultStatus]int {
	return map[ResultStatus]int{
		StatusSuccess:          b.Count(StatusSuccess),
		StatusDuplicate:        b.Count(StatusDuplicate),
		StatusDuplicateInvoice: b.Count(StatusDuplicateInvoice),
		StatusFailed:           b.Count(StatusFailed),
	}
}
