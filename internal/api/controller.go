// Package api is the HTTP entry point of the import module. Like the FrontAccounting page it
// replaces, every screen is reached through one URL and an action query parameter; the "api"
// action is the JSON endpoint used by scripts and always answers JSON.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"faimport/internal/importer"
	"faimport/internal/logger"
	"faimport/internal/staging"
	"faimport/pkg/models"
)

// Actions dispatched by Handle.
const (
	ActionDashboard      = "dashboard"
	ActionEmails         = "emails"
	ActionUpload         = "upload"
	ActionDirectory      = "directory"
	ActionReview         = "review"
	ActionInvoiceDetails = "invoice-details"
	ActionMarkProcessed  = "mark-processed"
	ActionStatistics     = "statistics"
	ActionCleanup        = "cleanup"
	ActionAPI            = "api"
)

// ActorHeader carries the FrontAccounting user name set by the host application.
const ActorHeader = "X-FA-User"

// MaxUploadBytes matches the synchronous Cloud Vision limit.
const MaxUploadBytes = 20 * 1024 * 1024

const (
	defaultPageSize    = 25
	dashboardListLimit = 10
)

var ErrNotFound = errors.New("invoice not found")

// InvoiceStore is the staging repository as seen by the controller.
type InvoiceStore interface {
	FindByID(ctx context.Context, id int64) (*models.Invoice, error)
	FindByStatus(ctx context.Context, status models.Status, limit int) ([]*models.Invoice, error)
	FindAll(ctx context.Context, f staging.Filter, limit, offset int) ([]*models.Invoice, error)
	Count(ctx context.Context, f staging.Filter) (int, error)
	UpdateStatus(ctx context.Context, id int64, status models.Status, notes string, transNo *int64) (bool, error)
	AddProcessingLog(ctx context.Context, actor models.Actor, invoiceID int64, action, details string) error
	ProcessingLogs(ctx context.Context, invoiceID int64) ([]staging.LogEntry, error)
	Statistics(ctx context.Context) (*staging.Statistics, error)
	Cleanup(ctx context.Context, actor models.Actor, cutoff time.Time) (int, error)
}

// Importer runs a source through the import pipeline.
type Importer interface {
	Run(ctx context.Context, actor models.Actor, src importer.Source) (*importer.BatchResult, error)
}

// Sources builds import sources on demand.
type Sources interface {
	PDF(files ...importer.PDFFile) importer.Source
	Directory(dir string) importer.Source
	Gmail() (importer.Source, error)
}

// Options configures a Controller.
type Options struct {
	DefaultActor models.Actor
	UploadDir    string        // uploads are kept here; empty keeps them in memory only
	CleanupAge   time.Duration // completed invoices older than this are removed by cleanup
}

// Controller serves the import screens and the JSON API.
type Controller struct {
	invoices InvoiceStore
	importer Importer
	sources  Sources
	opts     Options
	validate *validator.Validate
	now      func() time.Time
}

func NewController(invoices InvoiceStore, imp Importer, sources Sources, opts Options) *Controller {
	if opts.DefaultActor == "" {
		opts.DefaultActor = models.SystemActor
	}
	if opts.CleanupAge <= 0 {
		opts.CleanupAge = 90 * 24 * time.Hour
	}
	return &Controller{
		invoices: invoices,
		importer: imp,
		sources:  sources,
		opts:     opts,
		validate: validator.New(),
		now:      time.Now,
	}
}

// actionOf maps the query parameter to a known action; anything else is the dashboard.
func actionOf(c *gin.Context) string {
	switch a := c.Query("action"); a {
	case ActionDashboard, ActionEmails, ActionUpload, ActionDirectory, ActionReview,
		ActionInvoiceDetails, ActionMarkProcessed, ActionStatistics, ActionCleanup, ActionAPI:
		return a
	}
	return ActionDashboard
}

func mutating(action string) bool {
	switch action {
	case ActionEmails, ActionUpload, ActionDirectory, ActionMarkProcessed, ActionCleanup, ActionAPI:
		return true
	}
	return false
}

// Handle dispatches on the action query parameter.
func (ctl *Controller) Handle(c *gin.Context) {
	action := actionOf(c)
	if mutating(action) && c.Request.Method != http.MethodPost {
		c.Header("Allow", http.MethodPost)
		fail(c, http.StatusMethodNotAllowed, fmt.Errorf("action %s requires POST", action))
		return
	}

	switch action {
	case ActionEmails:
		ctl.emails(c)
	case ActionUpload:
		ctl.upload(c)
	case ActionDirectory:
		ctl.directory(c)
	case ActionReview:
		ctl.review(c)
	case ActionInvoiceDetails:
		ctl.invoiceDetails(c)
	case ActionMarkProcessed:
		ctl.markProcessed(c)
	case ActionStatistics:
		ctl.statistics(c)
	case ActionCleanup:
		ctl.cleanup(c)
	case ActionAPI:
		ctl.api(c)
	default:
		ctl.dashboard(c)
	}
}

// Health reports whether the staging tables answer.
func (ctl *Controller) Health(c *gin.Context) {
	if _, err := ctl.invoices.Count(c.Request.Context(), staging.Filter{}); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (ctl *Controller) actor(c *gin.Context) models.Actor {
	if a := strings.TrimSpace(c.GetHeader(ActorHeader)); a != "" {
		return models.Actor(a)
	}
	return ctl.opts.DefaultActor
}

func ok(c *gin.Context, body gin.H) {
	body["success"] = true
	c.JSON(http.StatusOK, body)
}

func fail(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error().Err(err).Msg("Request failed")
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, importer.ErrGmailNotConfigured):
		return http.StatusServiceUnavailable
	case errors.As(err, &verrs):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (ctl *Controller) bind(c *gin.Context, req any) error {
	if err := c.ShouldBind(req); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return ctl.validate.Struct(req)
}

func (ctl *Controller) runImport(c *gin.Context, src importer.Source) {
	batch, err := ctl.importer.Run(c.Request.Context(), ctl.actor(c), src)
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	ok(c, gin.H{"batch": batch, "summary": batch.Summary()})
}

func (ctl *Controller) dashboard(c *gin.Context) {
	ctx := c.Request.Context()
	stats, err := ctl.invoices.Statistics(ctx)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	pending, err := ctl.invoices.FindByStatus(ctx, models.StatusPending, dashboardListLimit)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, gin.H{
		"statistics": stats,
		"pending":    views(pending),
		"actions": []string{ActionEmails, ActionUpload, ActionDirectory, ActionReview,
			ActionStatistics, ActionCleanup},
	})
}

func (ctl *Controller) emails(c *gin.Context) {
	src, err := ctl.sources.Gmail()
	if err != nil {
		fail(c, statusFor(err), err)
		return
	}
	ctl.runImport(c, src)
}

// upload stores each PDF under the upload directory and imports it. Files that are not PDFs or
// are too large become failed results instead of failing the request.
func (ctl *Controller) upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		fail(c, http.StatusBadRequest, fmt.Errorf("expected a multipart upload: %w", err))
		return
	}
	headers := append(form.File["files"], form.File["file"]...)
	if len(headers) == 0 {
		fail(c, http.StatusBadRequest, errors.New("no files uploaded"))
		return
	}

	var (
		files    []importer.PDFFile
		rejected []importer.Candidate
	)
	for _, fh := range headers {
		f, err := ctl.readUpload(fh)
		if err != nil {
			rejected = append(rejected, importer.Candidate{Ref: fh.Filename, Err: err})
			continue
		}
		files = append(files, f)
	}
	ctl.runImport(c, withCandidates(ctl.sources.PDF(files...), rejected))
}

func (ctl *Controller) readUpload(fh *multipart.FileHeader) (importer.PDFFile, error) {
	name := filepath.Base(fh.Filename)
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return importer.PDFFile{}, fmt.Errorf("%s: only PDF files are accepted", name)
	}
	if fh.Size > MaxUploadBytes {
		return importer.PDFFile{}, fmt.Errorf("%s: file exceeds %d MB", name, MaxUploadBytes>>20)
	}

	r, err := fh.Open()
	if err != nil {
		return importer.PDFFile{}, err
	}
	defer r.Close()
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return importer.PDFFile{}, err
	}

	file := importer.PDFFile{Name: name, Data: data}
	if ctl.opts.UploadDir != "" {
		path := filepath.Join(ctl.opts.UploadDir, uuid.NewString()+"-"+name)
		if err := os.WriteFile(path, data, 0o640); err != nil {
			return importer.PDFFile{}, fmt.Errorf("%s: store upload: %w", name, err)
		}
		file.Path = path
	}
	return file, nil
}

type directoryRequest struct {
	Path string `form:"path" json:"path" validate:"required"`
}

func (ctl *Controller) directory(c *gin.Context) {
	var req directoryRequest
	if err := ctl.bind(c, &req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	info, err := os.Stat(req.Path)
	if err != nil || !info.IsDir() {
		fail(c, http.StatusBadRequest, fmt.Errorf("%s is not a readable directory", req.Path))
		return
	}
	ctl.runImport(c, ctl.sources.Directory(req.Path))
}

type reviewRequest struct {
	Status   string `form:"status" validate:"omitempty,oneof=pending processing matched completed error"`
	DateFrom string `form:"date_from" validate:"omitempty,datetime=2006-01-02"`
	DateTo   string `form:"date_to" validate:"omitempty,datetime=2006-01-02"`
	Order    string `form:"order"`
	Page     int    `form:"page" validate:"gte=0"`
	Limit    int    `form:"limit" validate:"gte=0,lte=200"`
}

func (r reviewRequest) filter() staging.Filter {
	f := staging.Filter{Status: models.Status(r.Status), OrderNumber: r.Order}
	f.DateFrom, _ = time.Parse("2006-01-02", r.DateFrom)
	f.DateTo, _ = time.Parse("2006-01-02", r.DateTo)
	return f
}

func (ctl *Controller) review(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if err := ctl.validate.Struct(req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if req.Status == "" {
		req.Status = string(models.StatusPending)
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit == 0 {
		req.Limit = defaultPageSize
	}

	ctx := c.Request.Context()
	f := req.filter()
	total, err := ctl.invoices.Count(ctx, f)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	invoices, err := ctl.invoices.FindAll(ctx, f, req.Limit, (req.Page-1)*req.Limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, gin.H{"invoices": views(invoices), "total": total, "page": req.Page, "limit": req.Limit})
}

type idRequest struct {
	ID int64 `form:"id" json:"invoice_id" validate:"required,gt=0"`
}

func (ctl *Controller) invoiceDetails(c *gin.Context) {
	var req idRequest
	if err := ctl.bind(c, &req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	ctx := c.Request.Context()
	inv, err := ctl.invoices.FindByID(ctx, req.ID)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	if inv == nil {
		fail(c, http.StatusNotFound, ErrNotFound)
		return
	}
	logs, err := ctl.invoices.ProcessingLogs(ctx, inv.ID)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, gin.H{"invoice": view(inv), "processing_log": logs})
}

type markProcessedRequest struct {
	ID        int64  `form:"id" json:"invoice_id" validate:"required,gt=0"`
	FATransNo int64  `form:"fa_trans_no" json:"fa_trans_no" validate:"gte=0"`
	Notes     string `form:"notes" json:"notes" validate:"max=1000"`
}

func (ctl *Controller) markProcessed(c *gin.Context) {
	var req markProcessedRequest
	if err := ctl.bind(c, &req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if err := ctl.doMarkProcessed(c.Request.Context(), ctl.actor(c), req); err != nil {
		fail(c, statusFor(err), err)
		return
	}
	ok(c, gin.H{"invoice_id": req.ID, "status": models.StatusCompleted})
}

// doMarkProcessed completes an invoice after it was posted in FrontAccounting.
func (ctl *Controller) doMarkProcessed(ctx context.Context, actor models.Actor, req markProcessedRequest) error {
	var transNo *int64
	if req.FATransNo > 0 {
		transNo = &req.FATransNo
	}
	found, err := ctl.invoices.UpdateStatus(ctx, req.ID, models.StatusCompleted, req.Notes, transNo)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}

	details := "Marked as processed"
	if transNo != nil {
		details = fmt.Sprintf("Marked as processed, FA transaction %d", *transNo)
	}
	return ctl.invoices.AddProcessingLog(ctx, actor, req.ID, staging.ActionStatusChanged, details)
}

func (ctl *Controller) statistics(c *gin.Context) {
	stats, err := ctl.invoices.Statistics(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, gin.H{"statistics": stats})
}

type cleanupRequest struct {
	Days int `form:"days" json:"days" validate:"gte=0,lte=3650"`
}

func (ctl *Controller) cleanup(c *gin.Context) {
	var req cleanupRequest
	if err := ctl.bind(c, &req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	age := ctl.opts.CleanupAge
	if req.Days > 0 {
		age = time.Duration(req.Days) * 24 * time.Hour
	}
	cutoff := ctl.now().Add(-age)

	removed, err := ctl.invoices.Cleanup(c.Request.Context(), ctl.actor(c), cutoff)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, gin.H{"removed": removed, "cutoff": cutoff.UTC().Format(time.RFC3339)})
}

// invoiceView adds the open review issues to an invoice.
type invoiceView struct {
	*models.Invoice
	Issues []string `json:"issues,omitempty"`
}

func view(inv *models.Invoice) invoiceView {
	return invoiceView{Invoice: inv, Issues: inv.ReviewIssues()}
}

func views(invs []*models.Invoice) []invoiceView {
	out := make([]invoiceView, 0, len(invs))
	for _, inv := range invs {
		out = append(out, view(inv))
	}
	return out
}

// withCandidates prepends ready-made candidates to a source's own.
func withCandidates(src importer.Source, extra []importer.Candidate) importer.Source {
	if len(extra) == 0 {
		return src
	}
	return extendedSource{Source: src, extra: extra}
}

type extendedSource struct {
	importer.Source
	extra []importer.Candidate
}

func (s extendedSource) Candidates(ctx context.Context) ([]importer.Candidate, error) {
	own, err := s.Source.Candidates(ctx)
	if err != nil {
		return nil, err
	}
	return append(append([]importer.Candidate(nil), s.extra...), own...), nil
}
