package matching_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faimport/internal/database"
	"faimport/internal/database/dbtest"
	"faimport/internal/matching"
	"faimport/internal/staging"
	"faimport/pkg/models"
)

type fixture struct {
	ctx  context.Context
	gw   database.Gateway
	repo *staging.Repository
	svc  *matching.Service
}

func setup(t *testing.T) fixture {
	t.Helper()
	gw := dbtest.New(t)
	repo := staging.NewRepository(gw)
	return fixture{
		ctx:  context.Background(),
		gw:   gw,
		repo: repo,
		svc:  matching.NewService(gw, repo, repo),
	}
}

func (f fixture) rule(t *testing.T, typ matching.RuleType, value, stock string, priority int) int64 {
	t.Helper()
	id, err := f.svc.AddMatchingRule(f.ctx, "tester", typ, value, stock, priority)
	require.NoError(t, err)
	return id
}

func TestFindMatchingStockItem_Precedence(t *testing.T) {
	f := setup(t)
	f.rule(t, matching.RuleASIN, "X123", "STK1", 1)
	f.rule(t, matching.RuleProductName, "Widget", "STK2", 1)

	m, err := f.svc.FindMatchingStockItem(f.ctx, "X123", "", "Widget")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "STK1", m.StockID)
	assert.Equal(t, matching.RuleASIN, m.RuleType)

	m, err = f.svc.FindMatchingStockItem(f.ctx, "", "", "Widget")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "STK2", m.StockID)
}

func TestFindMatchingStockItem_Tiers(t *testing.T) {
	f := setup(t)
	f.rule(t, matching.RuleSKU, "SKU-9", "STK-SKU", 1)
	f.rule(t, matching.RuleKeyword, "Widget", "STK-KW", 1)
	f.rule(t, matching.RuleKeyword, "widget", "STK-KW-LOW", 5)
	f.rule(t, matching.RuleProductName, "Blue Widget Pro", "STK-NAME", 1)

	tests := []struct {
		name        string
		asin, sku   string
		productName string
		want        string
	}{
		{"sku beats name", "", "SKU-9", "Blue Widget Pro", "STK-SKU"},
		{"unknown asin falls through", "B0NOPE", "", "Blue Widget Pro", "STK-NAME"},
		{"keyword substring", "", "", "Blue Widget Pro Max", "STK-KW"},
		{"keyword ignores case", "", "", "BLUE WIDGET MINI", "STK-KW"},
		{"no hit", "", "", "Garden Hose", ""},
		{"empty inputs", "", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := f.svc.FindMatchingStockItem(f.ctx, tt.asin, tt.sku, tt.productName)
			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, m)
				return
			}
			require.NotNil(t, m)
			assert.Equal(t, tt.want, m.StockID)
		})
	}
}

func TestFindMatchingStockItem_PriorityAndActive(t *testing.T) {
	f := setup(t)
	low := f.rule(t, matching.RuleASIN, "B001", "STK-LOW", 1)
	f.rule(t, matching.RuleASIN, "B001", "STK-HIGH", 3)

	m, err := f.svc.FindMatchingStockItem(f.ctx, "B001", "", "")
	require.NoError(t, err)
	assert.Equal(t, "STK-LOW", m.StockID)

	ok, err := f.svc.UpdateRuleStatus(f.ctx, low, false)
	require.NoError(t, err)
	require.True(t, ok)

	m, err = f.svc.FindMatchingStockItem(f.ctx, "B001", "", "")
	require.NoError(t, err)
	assert.Equal(t, "STK-HIGH", m.StockID)

	// Priorities below the default are kept and win.
	f.rule(t, matching.RuleASIN, "B001", "STK-ZERO", 0)
	m, err = f.svc.FindMatchingStockItem(f.ctx, "B001", "", "")
	require.NoError(t, err)
	assert.Equal(t, "STK-ZERO", m.StockID)
}

func TestRules_CRUD(t *testing.T) {
	f := setup(t)
	dbtest.AddStock(t, f.gw, "STK1", "Blue widget", false)

	a := f.rule(t, matching.RuleSKU, "b", "STK1", 2)
	b := f.rule(t, matching.RuleASIN, "z", "GONE", 1)
	c := f.rule(t, matching.RuleASIN, "a", "STK1", 0)
	// Unknown types are stored as given.
	f.rule(t, matching.RuleType("regex"), ".*", "STK1", 9)

	rules, err := f.svc.GetMatchingRules(f.ctx, true)
	require.NoError(t, err)
	require.Len(t, rules, 4)
	assert.Equal(t, []int64{c, b, a}, []int64{rules[0].ID, rules[1].ID, rules[2].ID})
	assert.Equal(t, 0, rules[0].Priority)
	assert.Equal(t, "Blue widget", rules[0].StockDescription)
	assert.Empty(t, rules[1].StockDescription)
	assert.Equal(t, models.Actor("tester"), rules[0].CreatedBy)

	ok, err := f.svc.UpdateRuleStatus(f.ctx, b, false)
	require.NoError(t, err)
	assert.True(t, ok)

	rules, err = f.svc.GetMatchingRules(f.ctx, true)
	require.NoError(t, err)
	assert.Len(t, rules, 3)
	rules, err = f.svc.GetMatchingRules(f.ctx, false)
	require.NoError(t, err)
	assert.Len(t, rules, 4)

	ok, err = f.svc.DeleteRule(f.ctx, a)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.svc.DeleteRule(f.ctx, a)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = f.svc.UpdateRuleStatus(f.ctx, 999, true)
	require.NoError(t, err)
	assert.False(t, ok)
}

func savedInvoice(t *testing.T, f fixture) *models.Invoice {
	t.Helper()
	inv := models.NewInvoice("AMZ-M1", "ORD-M1", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), decimal.RequireFromString("30.00"), "USD")
	for _, name := range []string{"Paper", "Stapler", "Blue Widget"} {
		inv.AddItem(models.NewInvoiceItem(name, 1, decimal.RequireFromString("10.00")))
	}
	inv.Items[0].MatchToStock("PAPER", models.MatchManual)
	inv.Items[1].MatchToStock("STAPLER", models.MatchNew)
	inv.Items[2].ASIN = "B00WIDGET"
	_, err := f.repo.Save(f.ctx, inv)
	require.NoError(t, err)
	return inv
}

func TestAutoMatchInvoiceItems(t *testing.T) {
	f := setup(t)
	inv := savedInvoice(t, f)
	f.rule(t, matching.RuleASIN, "B00WIDGET", "WIDGET", 1)
	// Would match the already matched items if they were looked at again.
	f.rule(t, matching.RuleKeyword, "a", "ANYTHING", 1)

	n, err := f.svc.AutoMatchInvoiceItems(f.ctx, "alice", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.repo.FindByID(f.ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchManual, got.Items[0].MatchType)
	assert.Equal(t, "PAPER", got.Items[0].FAStockID)
	assert.Equal(t, models.MatchNew, got.Items[1].MatchType)
	assert.Equal(t, "WIDGET", got.Items[2].FAStockID)
	assert.Equal(t, models.MatchAuto, got.Items[2].MatchType)

	logs, err := f.repo.ProcessingLogs(f.ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, staging.ActionMatched, logs[0].Action)
	assert.Equal(t, models.Actor("alice"), logs[0].CreatedBy)

	n, err = f.svc.AutoMatchInvoiceItems(f.ctx, "alice", inv.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestManualMatch(t *testing.T) {
	f := setup(t)
	inv := savedInvoice(t, f)
	dbtest.AddStock(t, f.gw, "WIDGET", "Blue widget", false)
	dbtest.AddStock(t, f.gw, "OLD", "Retired widget", true)
	target := inv.Items[2].ID

	err := f.svc.ManualMatch(f.ctx, "bob", target, "OLD")
	assert.ErrorIs(t, err, matching.ErrUnknownStockItem)

	err = f.svc.ManualMatch(f.ctx, "bob", 999, "WIDGET")
	assert.ErrorIs(t, err, matching.ErrItemNotFound)

	require.NoError(t, f.svc.ManualMatch(f.ctx, "bob", target, "WIDGET"))
	it, err := f.repo.FindItem(f.ctx, target)
	require.NoError(t, err)
	assert.Equal(t, models.MatchManual, it.MatchType)
	assert.Equal(t, "WIDGET", it.FAStockID)

	err = f.svc.ManualMatch(f.ctx, "bob", target, "WIDGET")
	assert.ErrorIs(t, err, matching.ErrItemAlreadyMatched)
}

func TestGetSuggestedStockItems(t *testing.T) {
	f := setup(t)
	dbtest.AddStock(t, f.gw, "CBL-USB", "USB cable 2m", false)
	dbtest.AddStock(t, f.gw, "CBL-HDMI", "HDMI cable", false)
	dbtest.AddStock(t, f.gw, "ADP-USB", "USB adapter", false)
	dbtest.AddStock(t, f.gw, "CBL-OLD", "USB cable 2m", true)
	dbtest.AddStock(t, f.gw, "ZZZ", "Garden hose", false)
	f.rule(t, matching.RuleKeyword, "hose", "ZZZ", 1)

	got, err := f.svc.GetSuggestedStockItems(f.ctx, "Anker USB Cable 2m", 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, s := range got {
		ids = append(ids, s.StockID)
	}
	assert.Equal(t, []string{"CBL-USB", "ADP-USB", "CBL-HDMI"}, ids)
	assert.Equal(t, 0.75, got[0].Score)

	got, err = f.svc.GetSuggestedStockItems(f.ctx, "Garden hose USB", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ZZZ", got[0].StockID)
	assert.Equal(t, "rule", got[0].Reason)
	assert.Equal(t, "Garden hose", got[0].Description)

	// A rule is reported even when its stock record is inactive or gone.
	f.rule(t, matching.RuleKeyword, "sprinkler", "SPR-GONE", 1)
	got, err = f.svc.GetSuggestedStockItems(f.ctx, "Lawn sprinkler USB", 0)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "SPR-GONE", got[0].StockID)
	assert.Equal(t, "rule", got[0].Reason)
	assert.Empty(t, got[0].Description)
	assert.Equal(t, []string{"ADP-USB", "CBL-USB"}, []string{got[1].StockID, got[2].StockID})
}
