package extraction

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"google.golang.org/api/option"

	"faimport/internal/logger"
	"faimport/pkg/models"
)

// MaxDocumentSizeBytes is the maximum document size for online processing (20MB)
const MaxDocumentSizeBytes = 20 * 1024 * 1024

var reASINValue = regexp.MustCompile(`^B0[A-Z0-9]{8}$`)

// DocumentAIConfig holds configuration for Google Document AI processing.
type DocumentAIConfig struct {
	ProjectID string

	// Location is the processing location (e.g., "us", "eu").
	// Should match where your Document AI processor is created.
	Location string

	ProcessorID      string
	ProcessorVersion string

	// CredentialsFile is a service account key; empty uses application default credentials.
	CredentialsFile string

	// Timeout is the maximum time to wait for processing.
	// Default: 60 seconds.
	Timeout time.Duration
}

// DocumentProcessor is the part of the Document AI client used here.
type DocumentProcessor interface {
	ProcessDocument(ctx context.Context, req *documentaipb.ProcessRequest, opts ...gax.CallOption) (*documentaipb.ProcessResponse, error)
	Close() error
}

// DocumentAIExtractor reads invoices with a Document AI invoice parser processor.
type DocumentAIExtractor struct {
	client DocumentProcessor
	config DocumentAIConfig
	log    zerolog.Logger
}

// NewDocumentAIExtractor connects to the regional Document AI endpoint.
func NewDocumentAIExtractor(ctx context.Context, config DocumentAIConfig) (*DocumentAIExtractor, error) {
	const op = "NewDocumentAIExtractor"

	if config.ProjectID == "" || config.ProcessorID == "" {
		return nil, WrapExtractionError(op, "document_ai", ErrInvalidConfiguration, "project and processor id are required")
	}
	if config.Location == "" {
		config.Location = "us"
	}

	clientOptions := []option.ClientOption{
		option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", config.Location)),
	}
	if config.CredentialsFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(config.CredentialsFile))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		if config.CredentialsFile == "" {
			return nil, WrapExtractionError(op, "document_ai", ErrMissingCredentials, err.Error())
		}
		return nil, WrapExtractionError(op, "document_ai", err, fmt.Sprintf("failed to create Document AI client for location: %s", config.Location))
	}

	return NewDocumentAIExtractorWithClient(config, client), nil
}

// NewDocumentAIExtractorWithClient creates an extractor with an explicit client (for testing).
func NewDocumentAIExtractorWithClient(config DocumentAIConfig, client DocumentProcessor) *DocumentAIExtractor {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.Location == "" {
		config.Location = "us"
	}
	return &DocumentAIExtractor{
		client: client,
		config: config,
		log:    logger.WithComponent("document-ai"),
	}
}

func (p *DocumentAIExtractor) Name() string { return "document_ai" }

func (p *DocumentAIExtractor) Extract(ctx context.Context, doc Document) (*models.Invoice, error) {
	const op = "Extract"

	if len(doc.PDF) == 0 {
		return nil, WrapExtractionError(op, p.Name(), ErrNoPDF, doc.Source)
	}
	if len(doc.PDF) > MaxDocumentSizeBytes {
		return nil, WrapExtractionError(op, p.Name(), ErrExtractionFailed, fmt.Sprintf("file size: %d bytes", len(doc.PDF)))
	}

	processCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	req := &documentaipb.ProcessRequest{
		Name: p.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  doc.PDF,
				MimeType: "application/pdf",
			},
		},
	}

	resp, err := p.client.ProcessDocument(processCtx, req)
	if err != nil {
		return nil, p.handleProcessingError(op, err)
	}
	if resp.Document == nil {
		return nil, WrapExtractionError(op, p.Name(), ErrExtractionFailed, "no document in response")
	}

	inv, err := p.invoiceFromDocument(resp.Document)
	if err != nil {
		return nil, WrapExtractionError(op, p.Name(), err, doc.Source)
	}
	if doc.Text == "" {
		doc.Text = resp.Document.Text
	}
	inv, err = finish(inv, doc)
	if err != nil {
		return nil, WrapExtractionError(op, p.Name(), err, doc.Source)
	}
	return inv, nil
}

func (p *DocumentAIExtractor) processorName() string {
	if p.config.ProcessorVersion != "" {
		return fmt.Sprintf("projects/%s/locations/%s/processors/%s/processorVersions/%s",
			p.config.ProjectID, p.config.Location, p.config.ProcessorID, p.config.ProcessorVersion)
	}
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		p.config.ProjectID, p.config.Location, p.config.ProcessorID)
}

// handleProcessingError converts Document AI errors to extraction errors.
func (p *DocumentAIExtractor) handleProcessingError(op string, err error) error {
	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "PermissionDenied") || strings.Contains(errStr, "PERMISSION_DENIED"):
		return WrapExtractionError(op, p.Name(), ErrPermissionDenied, "insufficient permissions for Document AI")
	case strings.Contains(errStr, "ResourceExhausted") || strings.Contains(errStr, "QUOTA_EXCEEDED"):
		return WrapExtractionError(op, p.Name(), ErrQuotaExceeded, "Document AI API quota exceeded")
	case strings.Contains(errStr, "NotFound") || strings.Contains(errStr, "NOT_FOUND"):
		return WrapExtractionError(op, p.Name(), ErrProcessorMissing, p.processorName())
	case strings.Contains(errStr, "context deadline exceeded"):
		return WrapExtractionError(op, p.Name(), context.DeadlineExceeded, "processing timeout")
	default:
		return WrapExtractionError(op, p.Name(), ErrExtractionFailed, fmt.Sprintf("Document AI error: %v", err))
	}
}

// invoiceFromDocument converts invoice parser entities to an invoice.
func (p *DocumentAIExtractor) invoiceFromDocument(doc *documentaipb.Document) (*models.Invoice, error) {
	inv := &models.Invoice{Status: models.StatusPending}

	for _, entity := range doc.Entities {
		value := strings.TrimSpace(entity.MentionText)

		p.log.Debug().
			Str("entity_type", entity.Type).
			Str("value", value).
			Float32("confidence", entity.Confidence).
			Msg("Processing Document AI entity")

		switch entity.Type {
		case "invoice_id":
			inv.InvoiceNumber = value
		case "purchase_order":
			inv.OrderNumber = value
		case "invoice_date":
			if date, err := entityDate(entity); err == nil {
				inv.InvoiceDate = date
			} else {
				p.log.Warn().Err(err).Str("raw_value", value).Msg("Failed to extract invoice date")
			}
		case "total_amount":
			inv.TotalAmount = p.money(entity, inv)
		case "total_tax_amount":
			inv.TaxAmount = p.money(entity, inv)
		case "freight_amount":
			inv.ShippingAmount = p.money(entity, inv)
		case "currency":
			if c := normalizeCurrency(value); c != "" {
				inv.Currency = c
			}
		case "line_item":
			if item := p.lineItem(entity, inv); item != nil {
				inv.AddItem(item)
			}
		}
	}

	if inv.OrderNumber == "" {
		inv.OrderNumber = reAmazonOrderID.FindString(doc.Text)
	}
	if inv.InvoiceNumber == "" {
		inv.InvoiceNumber = inv.OrderNumber
	}
	if inv.Currency == "" {
		inv.Currency = currencyFromSymbol(doc.Text)
	}

	p.log.Info().
		Str("invoice_number", inv.InvoiceNumber).
		Str("total", inv.TotalAmount.StringFixed(2)).
		Int("items", len(inv.Items)).
		Str("currency", inv.Currency).
		Msg("Document AI extraction completed")

	return inv, nil
}

// lineItem reads the line_item/* properties; unit price falls back to amount / quantity.
func (p *DocumentAIExtractor) lineItem(entity *documentaipb.Document_Entity, inv *models.Invoice) *models.InvoiceItem {
	var (
		description string
		code        string
		quantity    = 1
		unitPrice   decimal.Decimal
		amount      decimal.Decimal
	)
	for _, prop := range entity.Properties {
		value := strings.TrimSpace(prop.MentionText)
		switch prop.Type {
		case "line_item/description":
			description = value
		case "line_item/product_code":
			code = value
		case "line_item/quantity":
			if q, err := strconv.Atoi(strings.Fields(value + " 1")[0]); err == nil && q > 0 {
				quantity = q
			}
		case "line_item/unit_price":
			unitPrice = p.money(prop, inv)
		case "line_item/amount":
			amount = p.money(prop, inv)
		}
	}
	if description == "" {
		description = strings.TrimSpace(entity.MentionText)
	}
	if description == "" {
		return nil
	}

	if unitPrice.IsZero() && !amount.IsZero() {
		unitPrice = amount.Div(decimal.NewFromInt(int64(quantity))).Round(2)
	}
	item := models.NewInvoiceItem(description, quantity, unitPrice)
	if !amount.IsZero() {
		item.TotalPrice = amount
	}
	if reASINValue.MatchString(code) {
		item.ASIN = code
	} else {
		item.SKU = code
	}
	return item
}

// money prefers the normalized value and records its currency on the invoice.
func (p *DocumentAIExtractor) money(entity *documentaipb.Document_Entity, inv *models.Invoice) decimal.Decimal {
	if entity.NormalizedValue != nil {
		if m := entity.NormalizedValue.GetMoneyValue(); m != nil {
			if inv.Currency == "" && m.CurrencyCode != "" {
				inv.Currency = m.CurrencyCode
			}
			return decimal.New(m.Units, 0).Add(decimal.New(int64(m.Nanos), -9))
		}
	}
	amount, err := parseAmount(entity.MentionText)
	if err != nil {
		p.log.Warn().Err(err).Str("entity_type", entity.Type).Msg("Failed to extract amount")
		return decimal.Zero
	}
	return amount
}

// entityDate prefers the normalized date and falls back to parsing the mention text.
func entityDate(entity *documentaipb.Document_Entity) (time.Time, error) {
	if entity.NormalizedValue != nil {
		if d := entity.NormalizedValue.GetDateValue(); d != nil {
			return time.Date(int(d.Year), time.Month(d.Month), int(d.Day), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return parseDate(entity.MentionText)
}

// Close closes the underlying Document AI client.
func (p *DocumentAIExtractor) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
