package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"

	"faimport/internal/logger"
	"faimport/pkg/models"
)

// maxPromptChars keeps very long OCR output inside the model's context window.
const maxPromptChars = 12000

// ChatCompleter is the part of the OpenAI client used here.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ChatGPTConfig configures the ChatGPT extractor.
type ChatGPTConfig struct {
	Model       string  // gpt-4o-mini, gpt-4o
	Temperature float32 // ChatGPT temperature
	MaxRetries  int     // attempts per document
}

// DefaultChatGPTConfig returns a ChatGPTConfig with sensible defaults.
func DefaultChatGPTConfig() ChatGPTConfig {
	return ChatGPTConfig{
		Model:       openai.GPT4oMini,
		Temperature: 0.1,
		MaxRetries:  3,
	}
}

// ChatGPTExtractor asks a chat model to transcribe invoice text into JSON.
type ChatGPTExtractor struct {
	client ChatCompleter
	config ChatGPTConfig
	log    zerolog.Logger
}

// NewChatGPTExtractor creates an extractor backed by the OpenAI API.
func NewChatGPTExtractor(apiKey string, config ChatGPTConfig) (*ChatGPTExtractor, error) {
	if apiKey == "" {
		return nil, WrapExtractionError("NewChatGPTExtractor", "chatgpt", ErrInvalidConfiguration, "OpenAI API key is required")
	}
	return NewChatGPTExtractorWithClient(openai.NewClient(apiKey), config), nil
}

// NewChatGPTExtractorWithClient creates an extractor with an explicit client (for testing).
func NewChatGPTExtractorWithClient(client ChatCompleter, config ChatGPTConfig) *ChatGPTExtractor {
	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	return &ChatGPTExtractor{
		client: client,
		config: config,
		log:    logger.WithComponent("chatgpt"),
	}
}

func (s *ChatGPTExtractor) Name() string { return "chatgpt" }

// chatInvoice is the JSON shape requested from the model.
type chatInvoice struct {
	InvoiceNumber string     `json:"invoice_number"`
	OrderNumber   string     `json:"order_number"`
	InvoiceDate   string     `json:"invoice_date"`
	Currency      string     `json:"currency"`
	Total         flexAmount `json:"total"`
	Tax           flexAmount `json:"tax"`
	Shipping      flexAmount `json:"shipping"`
	Items         []struct {
		ProductName string     `json:"product_name"`
		ASIN        string     `json:"asin"`
		SKU         string     `json:"sku"`
		Quantity    int        `json:"quantity"`
		UnitPrice   flexAmount `json:"unit_price"`
	} `json:"items"`
	Payments []struct {
		Method    string     `json:"method"`
		Reference string     `json:"reference"`
		Amount    flexAmount `json:"amount"`
	} `json:"payments"`
}

// flexAmount accepts a JSON number or a string such as "$9.99".
type flexAmount string

func (a *flexAmount) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*a = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = flexAmount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("amount must be a number or string: %s", b)
	}
	*a = flexAmount(n.String())
	return nil
}

func (s *ChatGPTExtractor) Extract(ctx context.Context, doc Document) (*models.Invoice, error) {
	const op = "Extract"

	text := strings.TrimSpace(doc.Text)
	if text == "" {
		return nil, WrapExtractionError(op, s.Name(), ErrNoText, doc.Source)
	}
	if len(text) > maxPromptChars {
		text = text[:maxPromptChars]
	}

	s.log.Debug().
		Int("prompt_length", len(text)).
		Str("model", s.config.Model).
		Float32("temperature", s.config.Temperature).
		Msg("Sending extraction request to ChatGPT")

	var lastErr error
	for attempt := 1; attempt <= s.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, WrapExtractionError(op, s.Name(), err, doc.Source)
		}

		resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       s.config.Model,
			Temperature: s.config.Temperature,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: text},
			},
			MaxTokens: 1500,
		})
		if err != nil {
			lastErr = err
			s.log.Warn().
				Err(err).
				Int("attempt", attempt).
				Int("max_retries", s.config.MaxRetries).
				Msg("ChatGPT request failed, retrying")
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = errors.New("no response choices from ChatGPT")
			continue
		}

		content := resp.Choices[0].Message.Content
		inv, err := s.parseResponse(content)
		if err != nil {
			lastErr = err
			s.log.Warn().
				Err(err).
				Str("response", content).
				Int("attempt", attempt).
				Msg("Failed to parse ChatGPT response, retrying")
			continue
		}

		inv, err = finish(inv, doc)
		if err != nil {
			lastErr = err
			continue
		}
		s.log.Info().
			Str("invoice_number", inv.InvoiceNumber).
			Int("items", len(inv.Items)).
			Int("attempt", attempt).
			Msg("Successfully extracted invoice data from ChatGPT")
		return inv, nil
	}

	return nil, WrapExtractionError(op, s.Name(), fmt.Errorf("%w: %w", ErrExtractionFailed, lastErr),
		fmt.Sprintf("all %d attempts failed", s.config.MaxRetries))
}

func (s *ChatGPTExtractor) parseResponse(content string) (*models.Invoice, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.Trim(content, "`\n ")

	var raw chatInvoice
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse ChatGPT JSON response: %w", err)
	}

	inv := &models.Invoice{
		InvoiceNumber: strings.TrimSpace(raw.InvoiceNumber),
		OrderNumber:   strings.TrimSpace(raw.OrderNumber),
		Currency:      normalizeCurrency(raw.Currency),
		Status:        models.StatusPending,
	}
	if inv.InvoiceNumber == "" {
		inv.InvoiceNumber = inv.OrderNumber
	}
	if raw.InvoiceDate != "" {
		date, err := parseDate(raw.InvoiceDate)
		if err != nil {
			return nil, err
		}
		inv.InvoiceDate = date
	}

	var err error
	if inv.TotalAmount, err = optionalFlex(raw.Total); err != nil {
		return nil, err
	}
	if inv.TaxAmount, err = optionalFlex(raw.Tax); err != nil {
		return nil, err
	}
	if inv.ShippingAmount, err = optionalFlex(raw.Shipping); err != nil {
		return nil, err
	}

	for _, it := range raw.Items {
		if strings.TrimSpace(it.ProductName) == "" {
			continue
		}
		qty := it.Quantity
		if qty < 1 {
			qty = 1
		}
		price, err := optionalFlex(it.UnitPrice)
		if err != nil {
			return nil, err
		}
		item := models.NewInvoiceItem(strings.TrimSpace(it.ProductName), qty, price)
		item.ASIN = strings.ToUpper(strings.TrimSpace(it.ASIN))
		item.SKU = strings.TrimSpace(it.SKU)
		inv.AddItem(item)
	}

	for _, pm := range raw.Payments {
		amount, err := optionalFlex(pm.Amount)
		if err != nil {
			return nil, err
		}
		p, err := models.NewPayment(pm.Method, amount.Abs(), pm.Reference)
		if err != nil {
			s.log.Warn().Err(err).Msg("Skipping payment with unknown method")
			continue
		}
		inv.AddPayment(p)
	}
	return inv, nil
}

func optionalFlex(a flexAmount) (decimal.Decimal, error) {
	if strings.TrimSpace(string(a)) == "" {
		return decimal.Zero, nil
	}
	return parseAmount(string(a))
}

const systemPrompt = `You transcribe Amazon purchase invoices and order confirmations into JSON.
Answer with one JSON object and nothing else, using exactly these keys:
{"invoice_number": string, "order_number": string, "invoice_date": "YYYY-MM-DD",
 "currency": ISO 4217 code, "total": number, "tax": number, "shipping": number,
 "items": [{"product_name": string, "asin": string, "sku": string, "quantity": integer, "unit_price": number}],
 "payments": [{"method": "credit_card"|"bank_transfer"|"paypal"|"gift_card"|"points", "reference": string, "amount": number}]}
Use an empty string or 0 for anything the document does not state. Never invent values.`
