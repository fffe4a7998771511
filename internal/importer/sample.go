package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"faimport/pkg/models"
)

type sampleProduct struct {
	name  string
	asin  string
	sku   string
	price string
}

var sampleCatalog = []sampleProduct{
	{"Anker USB-C to USB-C Cable 2m", "B07DC5PPFV", "", "12.99"},
	{"Logitech M185 Wireless Mouse", "B004YAVF8I", "", "14.99"},
	{"AmazonBasics Multipurpose Copy Paper A4 500 Sheets", "B01M0RPRP9", "", "6.49"},
	{"Brother TN-2420 Toner Cartridge Black", "B06XWQGFK2", "TN2420", "59.90"},
	{"Post-it Notes 76x76mm Yellow 12 Pads", "B0007L8B2E", "", "8.75"},
}

// SampleSource generates deterministic Amazon-style invoices. Running it twice yields the same
// invoice numbers, which exercises duplicate handling.
type SampleSource struct {
	count int
	start time.Time
}

// NewSampleSource generates count invoices dated one day apart from start.
func NewSampleSource(count int, start time.Time) *SampleSource {
	if count <= 0 {
		count = 3
	}
	return &SampleSource{count: count, start: start.UTC().Truncate(24 * time.Hour)}
}

func (s *SampleSource) Name() string { return "sample" }

func (s *SampleSource) Candidates(ctx context.Context) ([]Candidate, error) {
	out := make([]Candidate, 0, s.count)
	for i := 1; i <= s.count; i++ {
		inv, err := s.invoice(i)
		out = append(out, Candidate{Ref: fmt.Sprintf("sample:%d", i), Invoice: inv, Err: err})
	}
	return out, nil
}

func (s *SampleSource) invoice(i int) (*models.Invoice, error) {
	inv := models.NewInvoice(
		fmt.Sprintf("AMZ-SAMPLE-%04d", i),
		fmt.Sprintf("%03d-%07d-%07d", 100+i, 1000000+i*137, 2000000+i*911),
		s.start.AddDate(0, 0, i-1),
		decimal.Zero,
		"USD",
	)

	lines := i%3 + 1
	for k := 0; k < lines; k++ {
		p := sampleCatalog[(i+k)%len(sampleCatalog)]
		item := models.NewInvoiceItem(p.name, k+1, decimal.RequireFromString(p.price))
		item.ASIN = p.asin
		item.SKU = p.sku
		inv.AddItem(item)
	}
	inv.TotalAmount = inv.ItemsTotal()

	card := inv.TotalAmount
	if i%3 == 0 {
		gift := decimal.NewFromInt(5)
		gc, err := models.NewPayment(string(models.PaymentGiftCard), gift, "Amazon gift card balance")
		if err != nil {
			return nil, err
		}
		inv.AddPayment(gc)
		card = card.Sub(gift)
	}
	cc, err := models.NewPayment(string(models.PaymentCreditCard), card, "Visa ending in 4242")
	if err != nil {
		return nil, err
	}
	inv.AddPayment(cc)
	return inv, nil
}
