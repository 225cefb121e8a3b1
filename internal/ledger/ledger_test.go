package ledger

import (
	"errors"
	"testing"
	"time"

	"atelier-backend/internal/metrics"
	"atelier-backend/internal/models"
	"atelier-backend/internal/testutil"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestUpsertInvoiceCashSaleIsIdempotent(t *testing.T) {
	f := testutil.NewFixture(t)
	inv := f.Invoice(t, models.InvoicePaid, 10000)
	paidAt := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	first, err := UpsertInvoiceCashSale(f.DB, &inv, paidAt)
	require.NoError(t, err)

	inv.TotalCents = 12000
	second, err := UpsertInvoiceCashSale(f.DB, &inv, paidAt.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var entries []models.LedgerEntry
	require.NoError(t, f.DB.Where("source_type = ? AND source_id = ?", models.SourceInvoiceCashSale, inv.ID).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(12000), entries[0].AmountCents)
	assert.Equal(t, AccountBank, entries[0].DebitAccount)
	assert.Equal(t, AccountSales, entries[0].CreditAccount)
}

func TestSourcesDoNotCollide(t *testing.T) {
	f := testutil.NewFixture(t)
	inv := f.Invoice(t, models.InvoicePaid, 10000)
	now := time.Now()

	_, err := UpsertInvoiceCashSale(f.DB, &inv, now)
	require.NoError(t, err)
	_, err = UpsertStockConsumption(f.DB, &inv, 2500, now)
	require.NoError(t, err)

	var count int64
	f.DB.Model(&models.LedgerEntry{}).Where("source_id = ?", inv.ID).Count(&count)
	assert.Equal(t, int64(2), count)

	require.NoError(t, DeleteBySource(f.DB, inv.BusinessID, models.SourceInvoiceStockConsumption, inv.ID))
	f.DB.Model(&models.LedgerEntry{}).Where("source_id = ?", inv.ID).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestMovementAccounts(t *testing.T) {
	cost := int64(250)
	cases := []struct {
		typ    models.MovementType
		qty    int64
		debit  string
		credit string
	}{
		{models.MovementIn, 4, AccountStock, AccountBank},
		{models.MovementOut, 4, AccountPurchases, AccountStock},
		{models.MovementAdjust, 4, AccountStock, AccountPurchases},
		{models.MovementAdjust, -4, AccountPurchases, AccountStock},
	}
	for _, tc := range cases {
		mv := &models.InventoryMovement{Type: tc.typ, Quantity: tc.qty, UnitCostCents: &cost}
		d, c := MovementAccounts(mv)
		assert.Equal(t, tc.debit, d, "%s %d", tc.typ, tc.qty)
		assert.Equal(t, tc.credit, c, "%s %d", tc.typ, tc.qty)
		assert.Equal(t, int64(1000), MovementAmount(mv))
	}

	assert.Equal(t, int64(0), MovementAmount(&models.InventoryMovement{Quantity: 3}))
}

func TestBalances(t *testing.T) {
	entries := []models.LedgerEntry{
		{DebitAccount: AccountBank, CreditAccount: AccountSales, AmountCents: 10000},
		{DebitAccount: AccountStock, CreditAccount: AccountBank, AmountCents: 3000},
	}
	got := Balances(entries)
	require.Len(t, got, 3)
	assert.Equal(t, AccountBalance{Account: AccountBank, DebitCents: 10000, CreditCents: 3000, BalanceCents: 7000}, got[0])
	assert.Equal(t, int64(-10000), got[1].BalanceCents)
}

func TestWritesAreCountedEvenWhenRolledBack(t *testing.T) {
	f := testutil.NewFixture(t)
	inv := f.Invoice(t, models.InvoicePaid, 10000)
	created := metrics.LedgerWrites.WithLabelValues(string(models.SourceInvoiceCashSale), "created")
	updated := metrics.LedgerWrites.WithLabelValues(string(models.SourceInvoiceCashSale), "updated")
	startCreated, startUpdated := promtest.ToFloat64(created), promtest.ToFloat64(updated)

	rollback := errors.New("later step failed")
	err := f.DB.Transaction(func(tx *gorm.DB) error {
		if _, err := UpsertInvoiceCashSale(tx, &inv, time.Now()); err != nil {
			return err
		}
		return rollback
	})
	require.ErrorIs(t, err, rollback)

	var n int64
	f.DB.Model(&models.LedgerEntry{}).Where("source_id = ?", inv.ID).Count(&n)
	assert.Zero(t, n)
	assert.Equal(t, startCreated+1, promtest.ToFloat64(created))

	_, err = UpsertInvoiceCashSale(f.DB, &inv, time.Now())
	require.NoError(t, err)
	_, err = UpsertInvoiceCashSale(f.DB, &inv, time.Now())
	require.NoError(t, err)
	assert.Equal(t, startCreated+2, promtest.ToFloat64(created))
	assert.Equal(t, startUpdated+1, promtest.ToFloat64(updated))
}
