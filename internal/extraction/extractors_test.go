package extraction

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/googleapis/gax-go/v2"
	"github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/type/date"
	"google.golang.org/genproto/googleapis/type/money"

	"faimport/pkg/models"
)

type stubExtractor struct {
	name  string
	inv   *models.Invoice
	err   error
	calls int
}

func (s *stubExtractor) Name() string { return s.name }

func (s *stubExtractor) Extract(context.Context, Document) (*models.Invoice, error) {
	s.calls++
	return s.inv, s.err
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	want := &models.Invoice{InvoiceNumber: "AMZ-1"}
	failing := &stubExtractor{name: "a", err: ErrNoText}
	ok := &stubExtractor{name: "b", inv: want}
	unused := &stubExtractor{name: "c", inv: &models.Invoice{InvoiceNumber: "other"}}

	chain := NewChain(failing, nil, ok, unused)
	assert.Equal(t, "chain(a,b,c)", chain.Name())

	got, err := chain.Extract(ctx, Document{})
	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.Equal(t, 1, failing.calls)
	assert.Zero(t, unused.calls)

	_, err = NewChain(failing, &stubExtractor{name: "d", err: ErrNoPDF}).Extract(ctx, Document{})
	assert.ErrorIs(t, err, ErrNoText)
	assert.ErrorIs(t, err, ErrNoPDF)

	_, err = NewChain().Extract(ctx, Document{})
	assert.ErrorIs(t, err, ErrNoExtractors)

	_, err = NewChatGPTExtractor("", DefaultChatGPTConfig())
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

type fakeProcessor struct {
	resp *documentaipb.ProcessResponse
	err  error
	req  *documentaipb.ProcessRequest
}

func (f *fakeProcessor) ProcessDocument(_ context.Context, req *documentaipb.ProcessRequest, _ ...gax.CallOption) (*documentaipb.ProcessResponse, error) {
	f.req = req
	return f.resp, f.err
}

func (f *fakeProcessor) Close() error { return nil }

func moneyEntity(typ string, units int64, nanos int32) *documentaipb.Document_Entity {
	return &documentaipb.Document_Entity{
		Type: typ,
		NormalizedValue: &documentaipb.Document_Entity_NormalizedValue{
			StructuredValue: &documentaipb.Document_Entity_NormalizedValue_MoneyValue{
				MoneyValue: &money.Money{CurrencyCode: "EUR", Units: units, Nanos: nanos},
			},
		},
	}
}

func textEntity(typ, text string) *documentaipb.Document_Entity {
	return &documentaipb.Document_Entity{Type: typ, MentionText: text}
}

func TestDocumentAIExtractor(t *testing.T) {
	dateEntity := &documentaipb.Document_Entity{
		Type: "invoice_date",
		NormalizedValue: &documentaipb.Document_Entity_NormalizedValue{
			StructuredValue: &documentaipb.Document_Entity_NormalizedValue_DateValue{
				DateValue: &date.Date{Year: 2024, Month: 2, Day: 29},
			},
		},
	}
	lineItem := &documentaipb.Document_Entity{
		Type: "line_item",
		Properties: []*documentaipb.Document_Entity{
			textEntity("line_item/description", "Echo Dot (5th Gen)"),
			textEntity("line_item/product_code", "B09B8V1LZ3"),
			textEntity("line_item/quantity", "2"),
			moneyEntity("line_item/amount", 79, 980000000),
		},
	}
	client := &fakeProcessor{resp: &documentaipb.ProcessResponse{Document: &documentaipb.Document{
		Text: "Bestellnummer 304-1111111-2222222",
		Entities: []*documentaipb.Document_Entity{
			textEntity("invoice_id", "DE4-ABC123"),
			dateEntity,
			moneyEntity("total_amount", 84, 970000000),
			moneyEntity("total_tax_amount", 13, 560000000),
			textEntity("freight_amount", "4,99 €"),
			lineItem,
			textEntity("line_item", ""),
		},
	}}}

	ex := NewDocumentAIExtractorWithClient(DocumentAIConfig{ProjectID: "p", Location: "eu", ProcessorID: "abc"}, client)
	inv, err := ex.Extract(context.Background(), Document{Source: "a.pdf", PDF: []byte("%PDF-1.7")})
	require.NoError(t, err)

	assert.Equal(t, "projects/p/locations/eu/processors/abc", client.req.Name)
	assert.Equal(t, "DE4-ABC123", inv.InvoiceNumber)
	assert.Equal(t, "304-1111111-2222222", inv.OrderNumber)
	assert.Equal(t, 2024, inv.InvoiceDate.Year())
	assert.Equal(t, "EUR", inv.Currency)
	assert.True(t, decimal.RequireFromString("84.97").Equal(inv.TotalAmount))
	assert.True(t, decimal.RequireFromString("13.56").Equal(inv.TaxAmount))
	assert.True(t, decimal.RequireFromString("4.99").Equal(inv.ShippingAmount))
	assert.Equal(t, "Bestellnummer 304-1111111-2222222", inv.RawData)

	require.Len(t, inv.Items, 1)
	item := inv.Items[0]
	assert.Equal(t, "Echo Dot (5th Gen)", item.ProductName)
	assert.Equal(t, "B09B8V1LZ3", item.ASIN)
	assert.Empty(t, item.SKU)
	assert.Equal(t, 2, item.Quantity)
	assert.True(t, decimal.RequireFromString("39.99").Equal(item.UnitPrice))
	assert.True(t, decimal.RequireFromString("79.98").Equal(item.TotalPrice))
}

func TestDocumentAIExtractor_Errors(t *testing.T) {
	cfg := DocumentAIConfig{ProjectID: "p", ProcessorID: "abc", ProcessorVersion: "v2"}
	tests := []struct {
		name   string
		client *fakeProcessor
		doc    Document
		want   error
	}{
		{"no pdf", &fakeProcessor{}, Document{Text: "text only"}, ErrNoPDF},
		{"quota", &fakeProcessor{err: errors.New("rpc error: code = ResourceExhausted")}, Document{PDF: []byte("%PDF")}, ErrQuotaExceeded},
		{"not found", &fakeProcessor{err: errors.New("rpc error: code = NotFound")}, Document{PDF: []byte("%PDF")}, ErrProcessorMissing},
		{"other", &fakeProcessor{err: errors.New("boom")}, Document{PDF: []byte("%PDF")}, ErrExtractionFailed},
		{"empty response", &fakeProcessor{resp: &documentaipb.ProcessResponse{}}, Document{PDF: []byte("%PDF")}, ErrExtractionFailed},
		{"no number", &fakeProcessor{resp: &documentaipb.ProcessResponse{Document: &documentaipb.Document{}}}, Document{PDF: []byte("%PDF")}, ErrMissingInvoiceNumber},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDocumentAIExtractorWithClient(cfg, tt.client).Extract(context.Background(), tt.doc)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	ex := NewDocumentAIExtractorWithClient(cfg, &fakeProcessor{})
	assert.Equal(t, "projects/p/locations/us/processors/abc/processorVersions/v2", ex.processorName())

	_, err := NewDocumentAIExtractor(context.Background(), DocumentAIConfig{ProjectID: "p"})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

type fakeCompleter struct {
	replies []string
	errs    []error
	calls   int
	last    openai.ChatCompletionRequest
}

func (f *fakeCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	i := f.calls
	f.calls++
	f.last = req
	if i < len(f.errs) && f.errs[i] != nil {
		return openai.ChatCompletionResponse{}, f.errs[i]
	}
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{
		{Message: openai.ChatCompletionMessage{Content: f.replies[i]}},
	}}, nil
}

func TestChatGPTExtractor(t *testing.T) {
	reply := "```json\n" + `{
		"invoice_number": "", "order_number": "113-0000000-0000001", "invoice_date": "2024-05-02",
		"currency": "usd", "total": "$31.48", "tax": 1.5, "shipping": null,
		"items": [
			{"product_name": "Notebook A5", "asin": "b07xyz1234", "quantity": 2, "unit_price": 9.99},
			{"product_name": "", "quantity": 1, "unit_price": 1},
			{"product_name": "Gel pens", "sku": "GP-10", "quantity": 0, "unit_price": "11.50"}
		],
		"payments": [
			{"method": "credit_card", "reference": "Visa ending in 4242", "amount": 31.48},
			{"method": "barter", "amount": 1}
		]
	}` + "\n```"
	client := &fakeCompleter{replies: []string{"", "not json", reply}, errs: []error{errors.New("timeout")}}
	ex := NewChatGPTExtractorWithClient(client, ChatGPTConfig{MaxRetries: 3})

	inv, err := ex.Extract(context.Background(), Document{Text: "some OCR text"})
	require.NoError(t, err)
	assert.Equal(t, 3, client.calls)
	assert.Equal(t, openai.GPT4oMini, client.last.Model)
	assert.Equal(t, "some OCR text", client.last.Messages[1].Content)

	assert.Equal(t, "113-0000000-0000001", inv.InvoiceNumber)
	assert.Equal(t, "USD", inv.Currency)
	assert.True(t, decimal.RequireFromString("31.48").Equal(inv.TotalAmount))
	assert.True(t, decimal.RequireFromString("1.5").Equal(inv.TaxAmount))
	assert.True(t, inv.ShippingAmount.IsZero())
	require.Len(t, inv.Items, 2)
	assert.Equal(t, "B07XYZ1234", inv.Items[0].ASIN)
	assert.Equal(t, 1, inv.Items[1].Quantity)
	assert.Equal(t, 2, inv.Items[1].LineNumber)
	require.Len(t, inv.Payments, 1)
	assert.Equal(t, models.PaymentCreditCard, inv.Payments[0].Method)
	assert.Empty(t, inv.Validate())
}

func TestChatGPTExtractor_GivesUp(t *testing.T) {
	client := &fakeCompleter{replies: []string{`{"invoice_number": ""}`, `{"invoice_number": ""}`}}
	ex := NewChatGPTExtractorWithClient(client, ChatGPTConfig{MaxRetries: 2})

	_, err := ex.Extract(context.Background(), Document{Text: "x"})
	assert.ErrorIs(t, err, ErrExtractionFailed)
	assert.ErrorIs(t, err, ErrMissingInvoiceNumber)
	assert.Equal(t, 2, client.calls)

	_, err = ex.Extract(context.Background(), Document{})
	assert.ErrorIs(t, err, ErrNoText)
}
