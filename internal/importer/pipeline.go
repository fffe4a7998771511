// Package importer drives invoices from an external source through duplicate checks,
// validation, staging, auto-matching and the processing log.
package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"faimport/internal/logger"
	"faimport/internal/metrics"
	"faimport/internal/staging"
	"faimport/pkg/models"
)

// DefaultDuplicateThreshold is the confidence from which a fingerprint hit counts as duplicate.
const DefaultDuplicateThreshold = 0.9

var ErrNilCandidate = errors.New("source produced no invoice")

// Candidate is one invoice produced by a source, or the error that prevented producing it.
type Candidate struct {
	Ref     string
	Invoice *models.Invoice
	Err     error
}

// Source produces import candidates. An error aborts the whole batch; per-document problems
// belong in Candidate.Err.
type Source interface {
	Name() string
	Candidates(ctx context.Context) ([]Candidate, error)
}

// InvoiceStore is the slice of the staging repository the pipeline needs.
type InvoiceStore interface {
	Save(ctx context.Context, inv *models.Invoice) (*models.Invoice, error)
	FindByInvoiceNumber(ctx context.Context, invoiceNumber string) (*models.Invoice, error)
	UpdateStatus(ctx context.Context, id int64, status models.Status, notes string, transNo *int64) (bool, error)
	AddProcessingLog(ctx context.Context, actor models.Actor, invoiceID int64, action, details string) error
}

// Matcher auto-matches the items of a staged invoice.
type Matcher interface {
	AutoMatchInvoiceItems(ctx context.Context, actor models.Actor, invoiceID int64) (int, error)
}

// Pipeline imports candidates one at a time.
type Pipeline struct {
	store     InvoiceStore
	matcher   Matcher
	dups      DuplicateFinder
	threshold float64
	now       func() time.Time
	log       zerolog.Logger
}

// NewPipeline wires the pipeline; dups may be nil to skip fingerprint checks and a threshold
// outside (0, 1] falls back to DefaultDuplicateThreshold.
func NewPipeline(store InvoiceStore, matcher Matcher, dups DuplicateFinder, threshold float64) *Pipeline {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultDuplicateThreshold
	}
	return &Pipeline{
		store:     store,
		matcher:   matcher,
		dups:      dups,
		threshold: threshold,
		now:       func() time.Time { return time.Now().UTC() },
		log:       logger.WithComponent("importer"),
	}
}

// Run imports every candidate of the source. Per-candidate failures are recorded in the
// result and never stop the batch.
func (p *Pipeline) Run(ctx context.Context, actor models.Actor, src Source) (*BatchResult, error) {
	batch := &BatchResult{
		ID:        uuid.NewString(),
		Source:    src.Name(),
		StartedAt: p.now(),
	}
	log := p.log.With().Str("batch_id", batch.ID).Str("source", batch.Source).Logger()

	candidates, err := src.Candidates(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Source failed")
		return nil, fmt.Errorf("import from %s: %w", src.Name(), err)
	}

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		res := p.Import(ctx, actor, c)
		metrics.ImportResults.WithLabelValues(batch.Source, string(res.Status)).Inc()

		event := log.Info()
		if res.Status == StatusFailed {
			event = log.Warn().Str("error", res.Error)
		}
		event.Str("ref", res.Ref).
			Str("status", string(res.Status)).
			Int64("invoice_id", res.InvoiceID).
			Msg("Candidate processed")

		batch.Results = append(batch.Results, res)
	}

	batch.FinishedAt = p.now()
	log.Info().
		Int("candidates", len(candidates)).
		Int("success", batch.Count(StatusSuccess)).
		Int("duplicates", batch.Count(StatusDuplicate)+batch.Count(StatusDuplicateInvoice)).
		Int("failed", batch.Count(StatusFailed)).
		Msg("Import batch finished")
	return batch, nil
}

// Import stages a single candidate.
func (p *Pipeline) Import(ctx context.Context, actor models.Actor, c Candidate) Result {
	res := Result{Ref: c.Ref}
	fail := func(err error) Result {
		res.Status = StatusFailed
		res.Success = false
		res.Error = err.Error()
		return res
	}

	if c.Err != nil {
		return fail(c.Err)
	}
	inv := c.Invoice
	if inv == nil {
		return fail(ErrNilCandidate)
	}
	res.InvoiceNumber = inv.InvoiceNumber

	existing, err := p.store.FindByInvoiceNumber(ctx, inv.InvoiceNumber)
	if err != nil {
		return fail(err)
	}
	if existing != nil {
		res.Status = StatusDuplicateInvoice
		res.DuplicateOf = existing.ID
		res.Confidence = 1
		return res
	}

	if p.dups != nil {
		dup, err := p.dups.FindDuplicate(ctx, inv)
		if err != nil {
			return fail(err)
		}
		if dup != nil && dup.Confidence >= p.threshold {
			res.Status = StatusDuplicate
			res.DuplicateOf = dup.InvoiceID
			res.Confidence = dup.Confidence
			return res
		}
	}

	if inv.InvoiceDate.IsZero() {
		inv.InvoiceDate = p.now().Truncate(24 * time.Hour)
		res.Issues = append(res.Issues, "Invoice date missing, import date used")
	}
	if inv.Currency == "" {
		inv.Currency = "USD"
	}
	inv.Status = models.StatusPending
	res.Issues = append(res.Issues, inv.Validate()...)
	if len(res.Issues) > 0 && inv.Notes == "" {
		inv.Notes = strings.Join(res.Issues, "; ")
	}

	if _, err := p.store.Save(ctx, inv); err != nil {
		return fail(err)
	}
	res.InvoiceID = inv.ID

	details := fmt.Sprintf("Imported from %s with %d item(s) and %d payment(s)", c.Ref, len(inv.Items), len(inv.Payments))
	if len(res.Issues) > 0 {
		details += fmt.Sprintf(", %d validation issue(s)", len(res.Issues))
	}
	if err := p.store.AddProcessingLog(ctx, actor, inv.ID, staging.ActionImported, details); err != nil {
		return fail(err)
	}

	if err := p.setStatus(ctx, actor, inv, models.StatusProcessing); err != nil {
		return fail(err)
	}
	matched, err := p.matcher.AutoMatchInvoiceItems(ctx, actor, inv.ID)
	if err != nil {
		_ = p.setStatus(ctx, actor, inv, models.StatusError)
		return fail(err)
	}
	res.MatchedItems = matched

	// Items of a fresh invoice start unmatched, so the count tells whether all were resolved.
	final := models.StatusPending
	if len(inv.Items) > 0 && matched >= len(inv.Items) {
		final = models.StatusMatched
	}
	if err := p.setStatus(ctx, actor, inv, final); err != nil {
		return fail(err)
	}

	res.Status = StatusSuccess
	res.Success = true
	return res
}

func (p *Pipeline) setStatus(ctx context.Context, actor models.Actor, inv *models.Invoice, status models.Status) error {
	if _, err := p.store.UpdateStatus(ctx, inv.ID, status, "", nil); err != nil {
		return err
	}
	from := inv.Status
	inv.Status = status
	return p.store.AddProcessingLog(ctx, actor, inv.ID, staging.ActionStatusChanged,
		fmt.Sprintf("%s -> %s", from, status))
}
