package staging_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faimport/internal/database"
	"faimport/internal/database/dbtest"
	"faimport/internal/staging"
	"faimport/pkg/models"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func newInvoice(number, order, date, total string) *models.Invoice {
	inv := models.NewInvoice(number, order, day(date), dec(total), "USD")
	inv.AddItem(models.NewInvoiceItem("Blue Widget", 2, dec("24.99")))
	inv.Items[0].ASIN = "B000123"
	inv.AddItem(models.NewInvoiceItem("USB Cable", 1, dec("9.99")))
	p, _ := models.NewPayment("credit_card", dec(total), "Visa ending in 1234")
	inv.AddPayment(p)
	return inv
}

func setup(t *testing.T) (context.Context, database.Gateway, *staging.Repository) {
	t.Helper()
	gw := dbtest.New(t)
	return context.Background(), gw, staging.NewRepository(gw)
}

func TestRepository_SaveAndFindByID(t *testing.T) {
	ctx, _, repo := setup(t)

	inv := newInvoice("AMZ-001", "111-2223334-5556667", "2024-01-15", "59.97")
	inv.ShippingAmount = dec("4.99")
	inv.RawData = `{"source":"sample"}`

	saved, err := repo.Save(ctx, inv)
	require.NoError(t, err)
	require.True(t, saved.IsPersisted())
	for _, it := range saved.Items {
		assert.NotZero(t, it.ID)
		assert.Equal(t, saved.ID, it.InvoiceID)
	}

	got, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "AMZ-001", got.InvoiceNumber)
	assert.Equal(t, "111-2223334-5556667", got.OrderNumber)
	assert.Equal(t, "2024-01-15", got.InvoiceDate.Format("2006-01-02"))
	assert.True(t, dec("59.97").Equal(got.TotalAmount))
	assert.True(t, dec("4.99").Equal(got.ShippingAmount))
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, `{"source":"sample"}`, got.RawData)
	assert.Nil(t, got.ProcessedAt)

	require.Len(t, got.Items, 2)
	assert.Equal(t, 1, got.Items[0].LineNumber)
	assert.Equal(t, "B000123", got.Items[0].ASIN)
	assert.True(t, dec("49.98").Equal(got.Items[0].TotalPrice))
	assert.False(t, got.Items[0].Matched)
	assert.Equal(t, 2, got.Items[1].LineNumber)

	require.Len(t, got.Payments, 1)
	assert.Equal(t, models.PaymentCreditCard, got.Payments[0].Method)
	assert.Equal(t, "Visa ending in 1234", got.Payments[0].Reference)
	assert.Nil(t, got.Payments[0].FABankAccount)
}

func TestRepository_FindMissingReturnsNil(t *testing.T) {
	ctx, _, repo := setup(t)

	inv, err := repo.FindByID(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, inv)

	inv, err = repo.FindByInvoiceNumber(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, inv)
}

func TestRepository_SaveTwiceReplacesChildren(t *testing.T) {
	ctx, gw, repo := setup(t)

	inv := newInvoice("AMZ-002", "ORD-2", "2024-02-01", "59.97")
	_, err := repo.Save(ctx, inv)
	require.NoError(t, err)
	_, err = repo.Save(ctx, inv)
	require.NoError(t, err)

	assert.Equal(t, 1, dbtest.Count(t, gw, database.TableInvoices, ""))
	assert.Equal(t, 2, dbtest.Count(t, gw, database.TableItems, "staging_invoice_id = ?", inv.ID))
	assert.Equal(t, 1, dbtest.Count(t, gw, database.TablePayments, "staging_invoice_id = ?", inv.ID))

	// Omitting an item from the collection deletes it.
	inv.Items = inv.Items[:1]
	inv.Notes = "second cable returned"
	_, err = repo.Save(ctx, inv)
	require.NoError(t, err)

	got, err := repo.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)
	assert.Equal(t, "second cable returned", got.Notes)
}

func TestRepository_SaveRollsBackOnFailure(t *testing.T) {
	ctx, gw, repo := setup(t)

	_, err := repo.Save(ctx, newInvoice("AMZ-003", "ORD-3", "2024-02-01", "59.97"))
	require.NoError(t, err)

	dup := newInvoice("AMZ-003", "ORD-3", "2024-02-01", "59.97")
	_, err = repo.Save(ctx, dup)

	require.Error(t, err)
	assert.True(t, staging.IsRepositoryError(err))
	assert.Contains(t, err.Error(), "failed to save invoice")
	assert.False(t, dup.IsPersisted())
	assert.Equal(t, 1, dbtest.Count(t, gw, database.TableInvoices, ""))
	assert.Equal(t, 2, dbtest.Count(t, gw, database.TableItems, ""))
}

func TestRepository_SaveRollbackRestoresChildIDs(t *testing.T) {
	ctx, gw, repo := setup(t)

	_, err := gw.Exec(ctx, "CREATE TRIGGER reject_payment BEFORE INSERT ON "+gw.Table(database.TablePayments)+
		" BEGIN SELECT RAISE(ABORT, 'payments locked'); END")
	require.NoError(t, err)

	inv := newInvoice("AMZ-005", "ORD-5", "2024-02-01", "59.97")
	_, err = repo.Save(ctx, inv)
	require.Error(t, err)

	assert.Zero(t, inv.ID)
	for _, it := range inv.Items {
		assert.Zero(t, it.ID)
		assert.Zero(t, it.InvoiceID)
	}
	assert.Zero(t, inv.Payments[0].ID)
	assert.Zero(t, inv.Payments[0].InvoiceID)
	assert.Equal(t, 0, dbtest.Count(t, gw, database.TableItems, ""))
}

func TestRepository_SaveUnknownIDFails(t *testing.T) {
	ctx, _, repo := setup(t)

	inv := newInvoice("AMZ-004", "ORD-4", "2024-02-01", "59.97")
	inv.ID = 41

	_, err := repo.Save(ctx, inv)
	assert.ErrorIs(t, err, staging.ErrInvoiceNotFound)
	assert.Equal(t, int64(41), inv.ID)
}

func TestRepository_Delete(t *testing.T) {
	ctx, gw, repo := setup(t)

	keep := newInvoice("AMZ-KEEP", "ORD-K", "2024-03-01", "59.97")
	_, err := repo.Save(ctx, keep)
	require.NoError(t, err)
	inv := newInvoice("AMZ-DEL", "ORD-D", "2024-03-01", "59.97")
	_, err = repo.Save(ctx, inv)
	require.NoError(t, err)

	ok, err := repo.Delete(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, 0, dbtest.Count(t, gw, database.TableItems, "staging_invoice_id = ?", inv.ID))
	assert.Equal(t, 0, dbtest.Count(t, gw, database.TablePayments, "staging_invoice_id = ?", inv.ID))
	got, err := repo.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Equal(t, 2, dbtest.Count(t, gw, database.TableItems, "staging_invoice_id = ?", keep.ID))

	ok, err = repo.Delete(ctx, inv.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepository_FindAllFilters(t *testing.T) {
	ctx, _, repo := setup(t)

	fixtures := []struct {
		number, order, date string
		status              models.Status
	}{
		{"AMZ-10", "111-0000001-0000001", "2024-01-05", models.StatusPending},
		{"AMZ-11", "111-0000002-0000002", "2024-01-20", models.StatusMatched},
		{"AMZ-12", "222-0000003-0000003", "2024-02-10", models.StatusPending},
		{"AMZ-13", "222-0000004-0000004", "2024-03-01", models.StatusCompleted},
	}
	for _, f := range fixtures {
		inv := newInvoice(f.number, f.order, f.date, "59.97")
		inv.Status = f.status
		_, err := repo.Save(ctx, inv)
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		filter staging.Filter
		want   []string
	}{
		{"no filter newest first", staging.Filter{}, []string{"AMZ-13", "AMZ-12", "AMZ-11", "AMZ-10"}},
		{"status", staging.Filter{Status: models.StatusPending}, []string{"AMZ-12", "AMZ-10"}},
		{"inclusive date range", staging.Filter{DateFrom: day("2024-01-20"), DateTo: day("2024-02-10")}, []string{"AMZ-12", "AMZ-11"}},
		{"order substring", staging.Filter{OrderNumber: "222-"}, []string{"AMZ-13", "AMZ-12"}},
		{"combined", staging.Filter{Status: models.StatusPending, OrderNumber: "111"}, []string{"AMZ-10"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.FindAll(ctx, tt.filter, 0, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, numbers(got))

			n, err := repo.Count(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), n)
		})
	}

	page, err := repo.FindAll(ctx, staging.Filter{}, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"AMZ-12", "AMZ-11"}, numbers(page))
	for _, inv := range page {
		assert.Len(t, inv.Items, 2)
	}

	byDate, err := repo.FindByDateRange(ctx, day("2024-01-01"), day("2024-01-31"), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"AMZ-11", "AMZ-10"}, numbers(byDate))

	pending, err := repo.FindByStatus(ctx, models.StatusPending, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"AMZ-12"}, numbers(pending))
}

func numbers(invs []*models.Invoice) []string {
	out := make([]string, 0, len(invs))
	for _, inv := range invs {
		out = append(out, inv.InvoiceNumber)
	}
	return out
}

func TestRepository_UpdateStatus(t *testing.T) {
	ctx, _, repo := setup(t)

	inv := newInvoice("AMZ-20", "ORD-20", "2024-04-01", "59.97")
	_, err := repo.Save(ctx, inv)
	require.NoError(t, err)

	trans := int64(1234)
	ok, err := repo.UpdateStatus(ctx, inv.ID, models.StatusCompleted, "posted", &trans)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, "posted", got.Notes)
	require.NotNil(t, got.ProcessedAt)
	require.NotNil(t, got.FATransNo)
	assert.Equal(t, int64(1234), *got.FATransNo)

	// Empty notes keep the stored value.
	_, err = repo.UpdateStatus(ctx, inv.ID, models.StatusMatched, "", nil)
	require.NoError(t, err)
	got, err = repo.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "posted", got.Notes)
	assert.Equal(t, int64(1234), *got.FATransNo)

	ok, err = repo.UpdateStatus(ctx, 999, models.StatusMatched, "", nil)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.UpdateStatus(ctx, inv.ID, models.Status("archived"), "", nil)
	assert.Error(t, err)
}

func TestRepository_ExistsByInvoiceNumber(t *testing.T) {
	ctx, _, repo := setup(t)

	exists, err := repo.ExistsByInvoiceNumber(ctx, "AMZ-30")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = repo.Save(ctx, newInvoice("AMZ-30", "ORD-30", "2024-04-01", "59.97"))
	require.NoError(t, err)

	exists, err = repo.ExistsByInvoiceNumber(ctx, "AMZ-30")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRepository_ItemsAndPayments(t *testing.T) {
	ctx, _, repo := setup(t)

	inv := newInvoice("AMZ-40", "ORD-40", "2024-04-01", "59.97")
	inv.Items[1].MatchToStock("CABLE", models.MatchManual)
	_, err := repo.Save(ctx, inv)
	require.NoError(t, err)

	unmatched, err := repo.UnmatchedItems(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, unmatched, 1)
	assert.Equal(t, "Blue Widget", unmatched[0].ProductName)

	ok, err := repo.MarkItemMatched(ctx, unmatched[0].ID, "WIDGET", models.MatchAuto)
	require.NoError(t, err)
	assert.True(t, ok)

	// A matched item is never re-matched.
	ok, err = repo.MarkItemMatched(ctx, unmatched[0].ID, "OTHER", models.MatchManual)
	require.NoError(t, err)
	assert.False(t, ok)

	it, err := repo.FindItem(ctx, unmatched[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "WIDGET", it.FAStockID)
	assert.Equal(t, models.MatchAuto, it.MatchType)
	assert.True(t, it.Matched)

	missing, err := repo.FindItem(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	ok, err = repo.AllocatePayment(ctx, inv.Payments[0].ID, 2, 3, "bank 2")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ReviewIssues())
}

func TestRepository_ProcessingLog(t *testing.T) {
	ctx, _, repo := setup(t)

	require.NoError(t, repo.AddProcessingLog(ctx, "alice", 7, staging.ActionImported, "from sample"))
	require.NoError(t, repo.AddProcessingLog(ctx, "", 7, staging.ActionMatched, ""))
	require.NoError(t, repo.AddProcessingLog(ctx, "bob", 8, staging.ActionImported, ""))

	entries, err := repo.ProcessingLogs(ctx, 7)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, staging.ActionImported, entries[0].Action)
	assert.Equal(t, models.Actor("alice"), entries[0].CreatedBy)
	assert.Equal(t, "from sample", entries[0].Details)
	assert.Equal(t, models.SystemActor, entries[1].CreatedBy)
	assert.False(t, entries[1].CreatedAt.IsZero())
}

func TestRepository_StatisticsAndCleanup(t *testing.T) {
	ctx, gw, repo := setup(t)

	for i, status := range []models.Status{models.StatusPending, models.StatusCompleted, models.StatusCompleted} {
		inv := newInvoice(fmt.Sprintf("AMZ-5%d", i), "ORD", "2024-05-01", "59.97")
		_, err := repo.Save(ctx, inv)
		require.NoError(t, err)
		_, err = repo.UpdateStatus(ctx, inv.ID, status, "", nil)
		require.NoError(t, err)
	}

	stats, err := repo.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalInvoices)
	assert.Equal(t, 1, stats.ByStatus[models.StatusPending])
	assert.Equal(t, 2, stats.ByStatus[models.StatusCompleted])
	assert.Equal(t, 0, stats.ByStatus[models.StatusError])
	assert.Equal(t, "179.91", stats.TotalAmount.StringFixed(2))
	assert.Equal(t, 6, stats.UnmatchedItems)

	removed, err := repo.Cleanup(ctx, "alice", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = repo.Cleanup(ctx, "alice", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, dbtest.Count(t, gw, database.TableInvoices, ""))
	assert.Equal(t, 2, dbtest.Count(t, gw, database.TableLog, "action = ?", staging.ActionDeleted))
}
