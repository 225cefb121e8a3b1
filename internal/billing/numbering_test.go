package billing

import (
	"testing"
	"time"

	"atelier-backend/internal/models"
	"atelier-backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestNextNumberIsSequentialPerKindAndYear(t *testing.T) {
	f := testutil.NewFixture(t)
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	next := func(kind models.DocumentKind, when time.Time) string {
		var n string
		err := f.DB.Transaction(func(tx *gorm.DB) error {
			var err error
			n, err = NextNumber(tx, f.Business.ID, kind, when)
			return err
		})
		require.NoError(t, err)
		return n
	}

	assert.Equal(t, "FAC-2026-0001", next(models.KindInvoice, at))
	assert.Equal(t, "FAC-2026-0002", next(models.KindInvoice, at))
	assert.Equal(t, "DEV-2026-0001", next(models.KindQuote, at))
	assert.Equal(t, "FAC-2027-0001", next(models.KindInvoice, at.AddDate(1, 0, 0)))

	var counters int64
	f.DB.Model(&models.DocumentCounter{}).Count(&counters)
	assert.Equal(t, int64(3), counters)
}

func TestIssueInvoiceFillsSnapshots(t *testing.T) {
	f := testutil.NewFixture(t)
	inv := f.Invoice(t, models.InvoiceDraft, 5000)
	now := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, f.DB.Transaction(func(tx *gorm.DB) error {
		return IssueInvoice(tx, &inv, now)
	}))

	require.NotNil(t, inv.Number)
	assert.Equal(t, "FAC-2026-0001", *inv.Number)
	require.NotNil(t, inv.DueAt)
	assert.Equal(t, now.AddDate(0, 0, 30), *inv.DueAt)
	assert.Contains(t, string(inv.IssuerSnapshot), "Atelier Lune SARL")
	assert.Contains(t, string(inv.ClientSnapshot), "Claire Martin")
	assert.JSONEq(t, `["Maquettes","Intégration"]`, string(inv.PrestationsSnapshot))

	// Issuing again keeps the number and snapshots.
	number := *inv.Number
	require.NoError(t, f.DB.Transaction(func(tx *gorm.DB) error {
		return IssueInvoice(tx, &inv, now.AddDate(0, 0, 1))
	}))
	assert.Equal(t, number, *inv.Number)
}

func TestIsEmptyJSON(t *testing.T) {
	assert.True(t, IsEmptyJSON(nil))
	assert.True(t, IsEmptyJSON([]byte(" null ")))
	assert.False(t, IsEmptyJSON([]byte(`[]`)))
}
